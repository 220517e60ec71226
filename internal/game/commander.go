package game

// CommanderState is the wire shape of one faction's commander.
type CommanderState struct {
	Faction  Faction `json:"faction"`
	PlayerID string  `json:"playerId"`
	Name     string  `json:"name"`
	Level    int     `json:"level"`
}

// CommanderTracker elects one commander per faction: the highest-level
// connected player, ties broken by earliest join. Elections rerun whenever
// the roster or a level changes. Owned by the tick loop; no locking.
type CommanderTracker struct {
	current [3]string // player id per faction index, "" when the faction is empty
}

// NewCommanderTracker creates an empty tracker.
func NewCommanderTracker() *CommanderTracker {
	return &CommanderTracker{}
}

// CommanderOf returns the commander's player id for a faction, or "".
func (ct *CommanderTracker) CommanderOf(f Faction) string {
	fi := f.Index()
	if fi < 0 {
		return ""
	}
	return ct.current[fi]
}

// IsCommander reports whether the player currently commands their faction.
func (ct *CommanderTracker) IsCommander(playerID string) bool {
	for _, id := range ct.current {
		if id != "" && id == playerID {
			return true
		}
	}
	return false
}

// Recompute reruns the election over the connected roster and returns the
// factions whose commander changed.
func (ct *CommanderTracker) Recompute(players map[string]*Player) []Faction {
	var best [3]*Player
	for _, p := range players {
		fi := p.Faction.Index()
		if fi < 0 {
			continue
		}
		if outranks(p, best[fi]) {
			best[fi] = p
		}
	}

	var changed []Faction
	for fi := range Factions {
		id := ""
		if best[fi] != nil {
			id = best[fi].ID
		}
		if id != ct.current[fi] {
			ct.current[fi] = id
			changed = append(changed, Factions[fi])
		}
	}
	return changed
}

// outranks reports whether a should command instead of b.
func outranks(a, b *Player) bool {
	if b == nil {
		return true
	}
	if a.Level != b.Level {
		return a.Level > b.Level
	}
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.ID < b.ID
}

// Snapshot returns the full commander state for commander-sync and welcome
// packets. Factions without players appear with an empty PlayerID.
func (ct *CommanderTracker) Snapshot(players map[string]*Player) []CommanderState {
	out := make([]CommanderState, 0, len(Factions))
	for fi, f := range Factions {
		st := CommanderState{Faction: f, PlayerID: ct.current[fi]}
		if p, ok := players[st.PlayerID]; ok && st.PlayerID != "" {
			st.Name = p.Name
			st.Level = p.Level
		}
		out = append(out, st)
	}
	return out
}
