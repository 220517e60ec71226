package game

import "tankwar/internal/world"

// Wire event names, client to server.
const (
	MsgInput         = "input"
	MsgFire          = "fire"
	MsgChoosePortal  = "choose-portal"
	MsgProfile       = "profile"
	MsgChat          = "chat"
	MsgFactionChange = "faction-change"
	MsgCommanderPing = "commander-ping"
	MsgCommanderDraw = "commander-draw"
	MsgTip           = "tip"
)

// Wire event names, server to client.
const (
	MsgWelcome              = "welcome"
	MsgState                = "state"
	MsgPlayerJoined         = "player-joined"
	MsgPlayerLeft           = "player-left"
	MsgPlayerFired          = "player-fired"
	MsgPlayerHit            = "player-hit"
	MsgPlayerKilled         = "player-killed"
	MsgPlayerActivated      = "player-activated"
	MsgPlayerFactionChanged = "player-faction-changed"
	MsgPortalConfirmed      = "portal-confirmed"
	MsgPortalFailed         = "portal-failed"
	MsgFireFailed           = "fire-failed"
	MsgFactionChangeFailed  = "faction-change-failed"
	MsgJoinFailed           = "join-failed"
	MsgTerritoryUpdate      = "territory-update"
	MsgCaptureProgress      = "capture-progress"
	MsgSponsorsReloaded     = "sponsors-reloaded"
	MsgCommanderUpdate      = "commander-update"
	MsgCommanderSync        = "commander-sync"
	MsgCommanderPingRelay   = "commander-ping"
	MsgCommanderDrawing     = "commander-drawing"
	MsgTipConfirmed         = "tip-confirmed"
	MsgTipFailed            = "tip-failed"
	MsgTipReceived          = "tip-received"
	MsgCryptoUpdate         = "crypto-update"
	MsgTicCrypto            = "tic-crypto"
	MsgHoldingCrypto        = "holding-crypto"
	MsgChatMessage          = "chat-message"
	MsgTuskChat             = "tusk-chat"
)

// PlayerBrief is the minimal per-player info listed in welcome packets.
type PlayerBrief struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Faction Faction `json:"faction"`
	Level   int     `json:"level"`
	Deploy  int     `json:"deploy"`
}

// SponsorInfo is the room's view of one sponsor slot, pattern already baked
// to an on-disk URL. The room never sees base64 image data.
type SponsorInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"` // moon, billboard or cluster
	Slot       int    `json:"slot"`
	ClusterID  int    `json:"clusterId,omitempty"`
	PatternURL string `json:"patternUrl,omitempty"`
}

// WelcomePacket is the first message every connection receives.
type WelcomePacket struct {
	PlayerID    string             `json:"playerId"`
	Name        string             `json:"name"`
	Faction     Faction            `json:"faction"`
	TickRate    int                `json:"tickRate"`
	Crypto      int64              `json:"crypto"`
	TotalCrypto int64              `json:"totalCrypto"`
	Level       int                `json:"level"`
	World       *world.Description `json:"world"`
	Capture     []ClusterChange    `json:"capture"`
	Commanders  []CommanderState   `json:"commanders"`
	Players     []PlayerBrief      `json:"players"`
	Sponsors    []SponsorInfo      `json:"sponsors"`
}

// JoinedMessage announces a new player.
type JoinedMessage struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Faction Faction `json:"faction"`
	Level   int     `json:"level"`
}

// LeftMessage announces a departed player.
type LeftMessage struct {
	ID string `json:"id"`
}

// FiredMessage announces a new projectile.
type FiredMessage struct {
	ID      uint64  `json:"id"`
	OwnerID string  `json:"ownerId"`
	Faction Faction `json:"f"`
	Theta   float64 `json:"t"`
	Phi     float64 `json:"p"`
	Heading float64 `json:"h"`
	Speed   float64 `json:"s"`
	Power   float64 `json:"pw"`
}

// HitMessage reports a projectile hit.
type HitMessage struct {
	AttackerID string `json:"attackerId"`
	TargetID   string `json:"targetId"`
	Damage     int    `json:"damage"`
	HPAfter    int    `json:"hp_after"`
}

// KilledMessage reports a lethal hit.
type KilledMessage struct {
	VictimID      string  `json:"victimId"`
	KillerID      string  `json:"killerId"`
	KillerFaction Faction `json:"killerFaction"`
}

// ActivatedMessage reports a waiting tank deploying into the world.
type ActivatedMessage struct {
	ID      string  `json:"id"`
	Theta   float64 `json:"t"`
	Phi     float64 `json:"p"`
	Heading float64 `json:"h"`
	Faction Faction `json:"f"`
}

// PortalConfirm carries the deploy position for a confirmed portal choice.
type PortalConfirm struct {
	Tile    int     `json:"tile"`
	Theta   float64 `json:"t"`
	Phi     float64 `json:"p"`
	Heading float64 `json:"h"`
}

// DeniedMessage is the generic *-failed payload.
type DeniedMessage struct {
	Reason string `json:"reason"`
}

// FactionChangedMessage announces a faction switch.
type FactionChangedMessage struct {
	ID      string  `json:"id"`
	Faction Faction `json:"faction"`
}

// TicCryptoMessage reports a tic-contribution award to its earner.
type TicCryptoMessage struct {
	PlayerID  string `json:"playerId"`
	ClusterID int    `json:"clusterId"`
	Amount    int64  `json:"amount"`
	Balance   int64  `json:"balance"`
}

// HoldingCryptoMessage reports a holding payout to its earner.
type HoldingCryptoMessage struct {
	PlayerID string `json:"playerId"`
	Clusters int    `json:"clusters"`
	Amount   int64  `json:"amount"`
	Balance  int64  `json:"balance"`
}

// TipMessage reports a completed tip to both parties.
type TipMessage struct {
	FromID string `json:"fromId"`
	ToID   string `json:"toId"`
	Amount int64  `json:"amount"`
}

// CommanderPingMessage is a relayed commander map ping.
type CommanderPingMessage struct {
	PlayerID string  `json:"playerId"`
	Faction  Faction `json:"faction"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
}

// CommanderDrawMessage is a relayed commander map drawing, streamed live
// point by point and finalized with Done.
type CommanderDrawMessage struct {
	PlayerID string       `json:"playerId"`
	Faction  Faction      `json:"faction"`
	Points   [][3]float64 `json:"points"`
	Done     bool         `json:"done"`
}
