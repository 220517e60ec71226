package game

// Message shapes exchanged with the bot worker. The worker owns all bot
// state; the tick loop and the worker communicate only through these value
// types, never through shared references.

// BotStride is the per-bot width of the packed positions buffer:
// theta, phi, heading, speed, flags, clusterId.
const BotStride = 6

// Bot flag bits packed into the positions buffer.
const (
	BotFlagDead      uint32 = 1 << 0
	BotFlagDeploying uint32 = 1 << 1

	botFactionShift = 4
	botFactionMask  = 0x3
)

// PackBotFlags encodes bot status bits plus the faction index.
func PackBotFlags(dead, deploying bool, f Faction) uint32 {
	var flags uint32
	if dead {
		flags |= BotFlagDead
	}
	if deploying {
		flags |= BotFlagDeploying
	}
	fi := f.Index()
	if fi < 0 {
		fi = 0
	}
	flags |= uint32(fi&botFactionMask) << botFactionShift
	return flags
}

// BotFlagFaction extracts the faction from packed flags.
func BotFlagFaction(flags uint32) Faction {
	return FactionFromIndex(int(flags >> botFactionShift & botFactionMask))
}

// HumanState is the per-human slice of a tick input, just enough for bot
// targeting and avoidance.
type HumanState struct {
	ID      string
	Theta   float64
	Phi     float64
	Heading float64
	Speed   float64
	Faction Faction
	IsDead  bool
}

// TickInput is the main-to-worker message dispatched every tick. Capture is
// the full cluster snapshot on resync ticks and nil otherwise.
type TickInput struct {
	Tick             uint64
	DT               float64
	PlanetRotation   float64
	NextProjectileID uint64
	Humans           []HumanState
	Capture          []ClusterChange
}

// BotShot is a projectile the worker spawned. The id was reserved above the
// NextProjectileID boundary the main loop supplied.
type BotShot struct {
	ID      uint64
	BotID   string
	Faction Faction
	Theta   float64
	Phi     float64
	Heading float64
	Power   float64
}

// BotEventKind discriminates worker-reported events.
type BotEventKind uint8

const (
	BotEventDamage BotEventKind = iota + 1
	BotEventDeath
	BotEventError
)

// BotEvent reports bot damage and deaths back to the main loop. KillerID
// carries the attacker from the apply-damage command that caused it.
type BotEvent struct {
	Kind     BotEventKind
	BotID    string
	KillerID string
	Damage   int
	HP       int
	Message  string // set on BotEventError
}

// TickOutput is the worker-to-main message for one simulated tick.
// Positions is a packed buffer, BotStride floats per bot, index-aligned
// with BotIDs.
type TickOutput struct {
	Tick             uint64
	BotIDs           []string
	Positions        []float32
	NextProjectileID uint64
	NewProjectiles   []BotShot
	Events           []BotEvent
	BotStates        map[string]TankWire
}

// BotCommandKind discriminates main-to-worker control commands.
type BotCommandKind uint8

const (
	BotCommandApplyDamage BotCommandKind = iota + 1
	BotCommandSpawn
	BotCommandDespawn
)

// BotCommand is an out-of-band control message: damage reflow from human
// projectile hits, and spawn/despawn quota adjustments on join/leave.
type BotCommand struct {
	Kind       BotCommandKind
	BotID      string
	AttackerID string
	Damage     int
	Faction    Faction
}

// BotBridge is the tick loop's view of the bot worker. Dispatch and Collect
// must never block: a worker running behind costs bot updates for a tick,
// never frame budget.
type BotBridge interface {
	// Dispatch hands the worker the current tick's input. Dropped (and
	// counted) if the worker has not consumed the previous one.
	Dispatch(in TickInput)
	// Collect returns the worker's most recent unconsumed output, or
	// ok=false when the worker missed the tick.
	Collect() (out TickOutput, ok bool)
	// Command queues an out-of-band control command.
	Command(cmd BotCommand)
	// MissedTicks returns the cumulative missed-output counter.
	MissedTicks() uint64
	Stop()
}
