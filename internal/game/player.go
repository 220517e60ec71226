package game

import (
	"math"
	"time"
)

// poleMargin keeps tanks off the exact poles where the longitude term of the
// motion integrator degenerates (1/sin(phi) blows up).
const poleMargin = 0.05

// Physics bundles the motion constants the tick loop hands to every
// integration step. Clients run the same constants for prediction.
type Physics struct {
	Accel    float64
	MaxSpeed float64
	TurnRate float64
	Friction float64 // per-tick retention at the reference tick rate
	TickRate float64
	MaxDT    float64
	Radius   float64
}

// Player is one human-controlled tank. All fields are owned by the tick
// loop; nothing outside it may write them.
type Player struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Faction Faction `json:"faction"`

	Theta       float64 `json:"theta"`
	Phi         float64 `json:"phi"`
	Heading     float64 `json:"heading"`
	Speed       float64 `json:"speed"`
	TurretAngle float64 `json:"turretAngle"`

	HP     int `json:"hp"`
	MaxHP  int `json:"maxHp"`
	Deploy int `json:"deploy"`
	Level  int `json:"level"`
	Kills  int `json:"kills"`
	Deaths int `json:"deaths"`

	Crypto      int64 `json:"-"` // balance in cents, may go negative to the debt floor
	TotalCrypto int64 `json:"-"` // lifetime earnings, drives the level curve
	OnLoan      bool  `json:"-"`

	Badges []string `json:"badges,omitempty"`
	Title  string   `json:"title,omitempty"`

	LastInputSeq uint32    `json:"-"`
	JoinedAt     time.Time `json:"-"`

	// Lifecycle bookkeeping, all in ticks of the owning room.
	DiedAtTick     uint64 `json:"-"`
	EligibleAtTick uint64 `json:"-"`
	LastKillerID   string `json:"-"`

	PortalTile    int    `json:"-"`
	ShotsInFlight int    `json:"-"`
	LastTipTick   uint64 `json:"-"`

	pending  []InputCommand
	queueCap int
}

// PlayerOptions contains options for creating a player.
type PlayerOptions struct {
	MaxHP    int
	QueueCap int
	JoinedAt time.Time
}

// NewPlayer creates a player in the waiting-for-portal state. The id comes
// from the connection layer so the welcome packet can reference it before
// the first tick runs.
func NewPlayer(id, name string, faction Faction, opts PlayerOptions) *Player {
	maxHP := opts.MaxHP
	if maxHP == 0 {
		maxHP = 100
	}
	queueCap := opts.QueueCap
	if queueCap == 0 {
		queueCap = maxPendingInputs
	}
	joined := opts.JoinedAt
	if joined.IsZero() {
		joined = time.Now()
	}

	return &Player{
		ID:       id,
		Name:     name,
		Faction:  faction,
		HP:       maxHP,
		MaxHP:    maxHP,
		Deploy:   DeployWaiting,
		JoinedAt: joined,
		pending:  make([]InputCommand, 0, queueCap),
		queueCap: queueCap,
	}
}

// Alive reports whether the tank is deployed and not destroyed.
func (p *Player) Alive() bool {
	return p.Deploy == DeployAlive
}

// applyInput advances the tank by one client input frame. The dt the client
// claims is clamped so a single command can never cover more than MaxDT of
// simulated time.
func (p *Player) applyInput(cmd InputCommand, phys Physics) {
	dt := cmd.DT
	if dt <= 0 {
		return
	}
	if dt > phys.MaxDT {
		dt = phys.MaxDT
	}

	if cmd.Keys&KeyLeft != 0 {
		p.Heading -= phys.TurnRate * dt
	}
	if cmd.Keys&KeyRight != 0 {
		p.Heading += phys.TurnRate * dt
	}
	p.Heading = wrapAngle(p.Heading)

	switch {
	case cmd.Keys&KeyForward != 0:
		p.Speed += phys.Accel * dt
	case cmd.Keys&KeyBackward != 0:
		p.Speed -= phys.Accel * 0.6 * dt
	}
	if cmd.Keys&KeyBrake != 0 {
		p.Speed *= math.Pow(0.5, dt*phys.TickRate)
	}

	// Friction is tuned per tick at the reference rate; rescale to the
	// client's frame delta so fast senders do not coast further.
	p.Speed *= math.Pow(phys.Friction, dt*phys.TickRate)

	if p.Speed > phys.MaxSpeed {
		p.Speed = phys.MaxSpeed
	}
	reverseCap := -phys.MaxSpeed * 0.5
	if p.Speed < reverseCap {
		p.Speed = reverseCap
	}
	if math.Abs(p.Speed) < 1e-4 {
		p.Speed = 0
	}

	p.Theta, p.Phi = advanceOnSphere(p.Theta, p.Phi, p.Heading, p.Speed*dt, phys.Radius)
	p.TurretAngle = wrapAngle(cmd.TurretAngle)
	if cmd.Seq > p.LastInputSeq {
		p.LastInputSeq = cmd.Seq
	}
}

// TakeDamage applies damage and reports whether the hit was lethal. Dead and
// waiting tanks ignore damage entirely.
func (p *Player) TakeDamage(amount int, attackerID string, tick uint64, respawnTicks uint64) bool {
	if p.Deploy != DeployAlive {
		return false
	}

	p.HP -= amount
	if p.HP > 0 {
		return false
	}

	p.HP = 0
	p.Deploy = DeployDead
	p.Speed = 0
	p.Deaths++
	p.DiedAtTick = tick
	p.EligibleAtTick = tick + respawnTicks
	p.LastKillerID = attackerID
	p.pending = p.pending[:0]
	return true
}

// DeployAt places the tank at a portal deploy position and flips it alive.
func (p *Player) DeployAt(theta, phi, heading float64) {
	p.Theta = theta
	p.Phi = clampPhi(phi)
	p.Heading = wrapAngle(heading)
	p.Speed = 0
	p.TurretAngle = p.Heading
	p.HP = p.MaxHP
	p.Deploy = DeployAlive
	p.LastKillerID = ""
	p.pending = p.pending[:0]
}

// EnterWaiting parks the tank in the waiting-for-portal state. Waiting tanks
// are excluded from presence counts, hit tests and broadcast physics.
func (p *Player) EnterWaiting() {
	p.Deploy = DeployWaiting
	p.Speed = 0
	p.pending = p.pending[:0]
}

// advanceOnSphere moves a surface point dist world units along heading.
// Heading 0 points north (decreasing phi), pi/2 points east. The longitude
// step widens by 1/sin(phi) so ground speed is uniform at every latitude.
func advanceOnSphere(theta, phi, heading, dist, radius float64) (float64, float64) {
	if dist == 0 {
		return theta, phi
	}
	arc := dist / radius
	phi = clampPhi(phi - arc*math.Cos(heading))
	theta = wrapAngle(theta + arc*math.Sin(heading)/math.Sin(phi))
	return theta, phi
}

func clampPhi(phi float64) float64 {
	if phi < poleMargin {
		return poleMargin
	}
	if phi > math.Pi-poleMargin {
		return math.Pi - poleMargin
	}
	return phi
}

// wrapAngle normalizes an angle to [-pi, pi).
func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
