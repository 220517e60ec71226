package game

// Key bitmask sent by clients in InputCommand.Keys.
const (
	KeyForward uint8 = 1 << iota
	KeyBackward
	KeyLeft
	KeyRight
	KeyBrake
)

// InputCommand is one client input frame. Clients send these at their own
// frame rate; the server replays every pending command in sequence order at
// the start of the tick and acknowledges the highest applied seq.
type InputCommand struct {
	Seq         uint32  `json:"seq"`
	Keys        uint8   `json:"keys"`
	TurretAngle float64 `json:"turretAngle"`
	DT          float64 `json:"dt"`
}

// maxPendingInputs is the fallback replay-buffer cap when the room does not
// supply one from config.
const maxPendingInputs = 32

// pushInput appends cmd to the player's pending buffer, dropping the oldest
// entry when full. Commands at or below the last acknowledged seq are stale
// retransmits and are ignored.
func (p *Player) pushInput(cmd InputCommand) {
	if p.LastInputSeq != 0 && cmd.Seq <= p.LastInputSeq {
		return
	}
	if len(p.pending) >= p.queueCap {
		copy(p.pending, p.pending[1:])
		p.pending = p.pending[:len(p.pending)-1]
	}
	p.pending = append(p.pending, cmd)
}

// drainInputs applies every pending command in arrival order and returns the
// number applied. Dead and waiting players keep their buffer cleared so stale
// movement does not fire on respawn.
func (p *Player) drainInputs(phys Physics) int {
	n := len(p.pending)
	if n == 0 {
		return 0
	}
	if p.Deploy != DeployAlive {
		p.pending = p.pending[:0]
		return 0
	}
	for _, cmd := range p.pending {
		p.applyInput(cmd, phys)
	}
	p.pending = p.pending[:0]
	return n
}
