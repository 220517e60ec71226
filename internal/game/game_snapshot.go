package game

import (
	"sync/atomic"
	"time"
)

// TankWire is the compact per-tank entry of the state broadcast. The same
// shape serves humans (players map) and bots (bg map). Key names are fixed
// by the client protocol.
type TankWire struct {
	Theta   float64 `json:"t"`
	Phi     float64 `json:"p"`
	Heading float64 `json:"h"`
	Speed   float64 `json:"s"`
	Turret  float64 `json:"ta"`
	HP      int     `json:"hp"`
	Deploy  int     `json:"d"`
	Faction Faction `json:"f"`
	Rank    int     `json:"r"`
	Seq     uint32  `json:"seq"`
}

// wire converts live player state to its broadcast entry.
func (p *Player) wire() TankWire {
	return TankWire{
		Theta:   p.Theta,
		Phi:     p.Phi,
		Heading: p.Heading,
		Speed:   p.Speed,
		Turret:  p.TurretAngle,
		HP:      p.HP,
		Deploy:  p.Deploy,
		Faction: p.Faction,
		Rank:    p.Level,
		Seq:     p.LastInputSeq,
	}
}

// StationWire carries derived space-station parameters for audiovisual sync.
type StationWire struct {
	Angle       float64 `json:"a"`
	Radius      float64 `json:"r"`
	Inclination float64 `json:"i"`
}

// StateBroadcast is the periodic full-state packet. The players map is
// always complete; the human count is small enough that deltas buy nothing.
type StateBroadcast struct {
	Players        map[string]TankWire `json:"players"`
	Bots           map[string]TankWire `json:"bg"`
	PlanetRotation float64             `json:"pr"`
	MoonAngles     [3]float64          `json:"ma"`
	Station        StationWire         `json:"sa"`
}

// PlayerSnapshot is an immutable copy of player state for the admin/state
// endpoint. Value types only; nothing aliases live tick-loop state.
type PlayerSnapshot struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Faction     Faction `json:"faction"`
	Theta       float64 `json:"theta"`
	Phi         float64 `json:"phi"`
	HP          int     `json:"hp"`
	Deploy      int     `json:"deploy"`
	Level       int     `json:"level"`
	Kills       int     `json:"kills"`
	Deaths      int     `json:"deaths"`
	Crypto      int64   `json:"crypto"`
	TotalCrypto int64   `json:"totalCrypto"`
	OnLoan      bool    `json:"onLoan"`
}

// RoomSnapshot is a complete immutable room state for observers (admin REST,
// metrics). Slices are pre-allocated and capped.
type RoomSnapshot struct {
	Sequence   uint64    `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`
	TickNumber uint64    `json:"tick"`

	Players []PlayerSnapshot `json:"players"`

	PlayerCount     int       `json:"playerCount"`
	BotCount        int       `json:"botCount"`
	ProjectileCount int       `json:"projectileCount"`
	OwnedClusters   [3]int    `json:"ownedClusters"` // by faction index
	PlanetRotation  float64   `json:"planetRotation"`
	MissedBotTicks  uint64    `json:"missedBotTicks"`
	TickDurationNs  int64     `json:"tickDurationNs"`
	Commanders      [3]string `json:"commanders"`
}

// SnapshotPool pre-allocates room snapshots so observers read tick state
// without locks. Triple buffering: the tick loop writes one slot while
// readers hold the last published one.
type SnapshotPool struct {
	snapshots  [3]RoomSnapshot
	maxPlayers int
	writeIdx   uint32 // atomic - producer index
	readIdx    uint32 // atomic - consumer index
	sequence   uint64 // atomic - monotonic sequence
}

// NewSnapshotPool creates a pool with pre-allocated player slices.
func NewSnapshotPool(maxPlayers int) *SnapshotPool {
	pool := &SnapshotPool{maxPlayers: maxPlayers}
	for i := 0; i < 3; i++ {
		pool.snapshots[i] = RoomSnapshot{
			Players: make([]PlayerSnapshot, 0, maxPlayers),
		}
	}
	return pool
}

// AcquireWrite gets the next write slot (tick loop only). Slices are reset
// but keep capacity.
func (p *SnapshotPool) AcquireWrite() *RoomSnapshot {
	idx := atomic.AddUint32(&p.writeIdx, 1) % 3
	snap := &p.snapshots[idx]

	snap.Players = snap.Players[:0]
	snap.PlayerCount = 0
	snap.BotCount = 0
	snap.ProjectileCount = 0
	snap.OwnedClusters = [3]int{}
	snap.MissedBotTicks = 0
	snap.TickDurationNs = 0
	snap.Commanders = [3]string{}

	snap.Sequence = atomic.AddUint64(&p.sequence, 1)
	snap.Timestamp = time.Now()
	return snap
}

// PublishWrite marks write complete and advances the read pointer.
func (p *SnapshotPool) PublishWrite() {
	atomic.StoreUint32(&p.readIdx, atomic.LoadUint32(&p.writeIdx))
}

// AcquireRead gets the latest complete snapshot (any goroutine). The
// returned snapshot stays valid until the pool cycles back to its slot, so
// readers should copy out what they keep.
func (p *SnapshotPool) AcquireRead() *RoomSnapshot {
	idx := atomic.LoadUint32(&p.readIdx) % 3
	return &p.snapshots[idx]
}
