package game

import (
	"encoding/json"
	"time"
)

// EventType enum for audit log event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeTick              // Tick boundary marker
	EventTypePlayerJoin
	EventTypePlayerLeave
	EventTypeFire
	EventTypeHit
	EventTypeKill
	EventTypeDeploy // Portal deploy (join or respawn)
	EventTypeCapture
	EventTypeTicAward
	EventTypeHolding
	EventTypeTip
	EventTypeFactionChange
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event is the core event structure for the audit log
type Event struct {
	Version   uint8     `json:"version"`   // Schema version
	Type      EventType `json:"type"`      // Event type
	Timestamp int64     `json:"timestamp"` // Unix nano
	Sequence  uint64    `json:"sequence"`  // Monotonic sequence
	TickNum   uint64    `json:"tickNum"`   // Game tick this occurred in
	PlayerID  string    `json:"playerId"`  // Acting player (for rate limiting)
	Payload   []byte    `json:"payload"`   // JSON-encoded payload
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeTick:
		return "tick"
	case EventTypePlayerJoin:
		return "player_join"
	case EventTypePlayerLeave:
		return "player_leave"
	case EventTypeFire:
		return "fire"
	case EventTypeHit:
		return "hit"
	case EventTypeKill:
		return "kill"
	case EventTypeDeploy:
		return "deploy"
	case EventTypeCapture:
		return "capture"
	case EventTypeTicAward:
		return "tic_award"
	case EventTypeHolding:
		return "holding"
	case EventTypeTip:
		return "tip"
	case EventTypeFactionChange:
		return "faction_change"
	default:
		return "unknown"
	}
}

// Typed payloads for different event types

// TickPayload contains tick boundary information for replay
type TickPayload struct {
	PlayerCount     int   `json:"playerCount"`
	BotCount        int   `json:"botCount"`
	ProjectileCount int   `json:"projectileCount"`
	DeltaTimeNs     int64 `json:"deltaTimeNs"`
}

// FirePayload contains cannon fire details
type FirePayload struct {
	PlayerID     string  `json:"playerId"`
	ProjectileID uint64  `json:"projectileId"`
	Power        float64 `json:"power"`
	Cost         int64   `json:"cost"`
}

// HitPayload contains projectile hit details
type HitPayload struct {
	AttackerID string `json:"attackerId"`
	VictimID   string `json:"victimId"`
	Damage     int    `json:"damage"`
	VictimHP   int    `json:"victimHp"`
}

// KillPayload contains kill event details
type KillPayload struct {
	KillerID      string  `json:"killerId"`
	VictimID      string  `json:"victimId"`
	KillerFaction Faction `json:"killerFaction"`
}

// DeployPayload contains portal deploy details
type DeployPayload struct {
	PlayerID string  `json:"playerId"`
	Tile     int     `json:"tile"`
	Theta    float64 `json:"theta"`
	Phi      float64 `json:"phi"`
}

// CapturePayload contains an ownership transition
type CapturePayload struct {
	ClusterID int    `json:"clusterId"`
	Owner     string `json:"owner"` // faction, sponsor-<id> or "" for unowned
	Tics      [3]int `json:"tics"`
}

// TicAwardPayload contains a tic-contribution crypto award
type TicAwardPayload struct {
	PlayerID  string `json:"playerId"`
	ClusterID int    `json:"clusterId"`
	Amount    int64  `json:"amount"`
}

// HoldingPayload contains a holding payout
type HoldingPayload struct {
	PlayerID string `json:"playerId"`
	Clusters int    `json:"clusters"`
	Amount   int64  `json:"amount"`
}

// TipPayload contains a commander tip transfer
type TipPayload struct {
	FromID string `json:"fromId"`
	ToID   string `json:"toId"`
	Amount int64  `json:"amount"`
}

// FactionChangePayload contains a faction switch
type FactionChangePayload struct {
	PlayerID string  `json:"playerId"`
	From     Faction `json:"from"`
	To       Faction `json:"to"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, tickNum uint64, playerID string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		PlayerID:  playerID,
		Payload:   EncodePayload(payload),
	}
}
