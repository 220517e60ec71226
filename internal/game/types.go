package game

// Faction is one of the three player factions fighting over clusters.
type Faction string

const (
	FactionRust     Faction = "rust"
	FactionCobalt   Faction = "cobalt"
	FactionViridian Faction = "viridian"
)

// Factions lists all factions in canonical order. The order is wire-visible:
// packed bot buffers encode a faction as its index here.
var Factions = [3]Faction{FactionRust, FactionCobalt, FactionViridian}

// Valid reports whether f is a real faction.
func (f Faction) Valid() bool {
	return f == FactionRust || f == FactionCobalt || f == FactionViridian
}

// Index returns the canonical index of f, or -1.
func (f Faction) Index() int {
	for i, x := range Factions {
		if x == f {
			return i
		}
	}
	return -1
}

// FactionFromIndex is the inverse of Index. Out-of-range returns rust.
func FactionFromIndex(i int) Faction {
	if i < 0 || i >= len(Factions) {
		return FactionRust
	}
	return Factions[i]
}

// Deploy states carried in the broadcast `d` field.
const (
	DeployAlive   = 0
	DeployDead    = 1
	DeployWaiting = 2
)
