package game

import (
	"fmt"

	"tankwar/internal/config"
	"tankwar/internal/world"
)

// SponsorOwnerPrefix marks sponsor ownership in ClusterState.Owner.
const SponsorOwnerPrefix = "sponsor-"

// TicCounts is the wire shape of per-faction capture progress.
type TicCounts struct {
	Rust     int `json:"rust"`
	Cobalt   int `json:"cobalt"`
	Viridian int `json:"viridian"`
}

func ticCounts(t [3]int) TicCounts {
	return TicCounts{Rust: t[0], Cobalt: t[1], Viridian: t[2]}
}

// TicRates is the wire shape of per-faction momentum (tics per second).
type TicRates struct {
	Rust     float64 `json:"rust"`
	Cobalt   float64 `json:"cobalt"`
	Viridian float64 `json:"viridian"`
}

// ClusterState tracks the tug-of-war over one cluster. All mutation happens
// on the tick loop.
type ClusterState struct {
	Cluster *world.Cluster
	Owner   string // "", a faction name, or sponsor-<id>
	Tics    [3]int // by faction index

	// Fractional accrual carried between ticks. One whole unit moves one tic.
	progress [3]float64

	// HoldRemaining is the sponsor hold timer in seconds; only meaningful on
	// sponsor-held clusters.
	HoldRemaining float64

	// Momentum bookkeeping, sampled at broadcast time.
	lastTics  [3]int
	lastClock float64
}

// ClusterChange is one entry of a territory-update: a cluster whose tics or
// owner moved this tick.
type ClusterChange struct {
	ID           int       `json:"id"`
	Owner        string    `json:"owner"`
	Tics         TicCounts `json:"tics"`
	Capacity     int       `json:"capacity"`
	OwnerChanged bool      `json:"ownerChanged"`
}

// CaptureProgress is the frequent per-cluster update sent to players inside
// that cluster, with momentum for the ring HUD.
type CaptureProgress struct {
	ID       int       `json:"id"`
	Owner    string    `json:"owner"`
	Tics     TicCounts `json:"tics"`
	Capacity int       `json:"capacity"`
	Momentum TicRates  `json:"momentum"`
}

// TicAward names the tank that moved a tic this step. Bot movers earn no
// crypto but still appear here so the caller can account the movement.
type TicAward struct {
	PlayerID  string
	Faction   Faction
	ClusterID int
	Bot       bool
}

type contributor struct {
	id      string
	faction Faction
	bot     bool
}

// CaptureEngine advances the tug-of-war for every cluster with presence.
// Presence is re-registered every tick; clusters nobody stands in do not
// decay on their own.
type CaptureEngine struct {
	cfg      config.CaptureConfig
	clusters []*ClusterState

	presence [][]contributor // per cluster, reset each tick
	touched  []int           // cluster ids with presence this tick
	clock    float64

	// Reused result buffers, valid until the next Advance.
	changes []ClusterChange
	awards  []TicAward
}

// NewCaptureEngine builds per-cluster state from the generated planet.
// Sponsor-stamped clusters start owned by their sponsor.
func NewCaptureEngine(planet *world.Planet, cfg config.CaptureConfig) *CaptureEngine {
	ce := &CaptureEngine{
		cfg:      cfg,
		clusters: make([]*ClusterState, len(planet.Clusters)),
		presence: make([][]contributor, len(planet.Clusters)),
		touched:  make([]int, 0, 64),
		changes:  make([]ClusterChange, 0, 16),
		awards:   make([]TicAward, 0, 16),
	}
	for i, c := range planet.Clusters {
		cs := &ClusterState{Cluster: c}
		if c.SponsorID != "" {
			cs.Owner = SponsorOwnerPrefix + c.SponsorID
			cs.HoldRemaining = cfg.SponsorHoldExtend
		}
		ce.clusters[i] = cs
	}
	return ce
}

// Cluster returns the state for one cluster id, or nil.
func (ce *CaptureEngine) Cluster(id int) *ClusterState {
	if id < 0 || id >= len(ce.clusters) {
		return nil
	}
	return ce.clusters[id]
}

// ClusterCount returns the number of clusters under management.
func (ce *CaptureEngine) ClusterCount() int { return len(ce.clusters) }

// AddPresence registers one alive, deployed tank standing in a cluster for
// the current tick.
func (ce *CaptureEngine) AddPresence(clusterID int, tankID string, faction Faction, bot bool) {
	if clusterID < 0 || clusterID >= len(ce.clusters) {
		return
	}
	if len(ce.presence[clusterID]) == 0 {
		ce.touched = append(ce.touched, clusterID)
	}
	ce.presence[clusterID] = append(ce.presence[clusterID], contributor{id: tankID, faction: faction, bot: bot})
}

// Advance runs one capture step over every cluster with presence and returns
// the changed clusters and the tic awards. Both slices are reused across
// calls; callers must consume them before the next Advance.
func (ce *CaptureEngine) Advance(dt float64) ([]ClusterChange, []TicAward) {
	ce.clock += dt
	ce.changes = ce.changes[:0]
	ce.awards = ce.awards[:0]

	for _, ci := range ce.touched {
		cs := ce.clusters[ci]
		ce.advanceCluster(ci, cs, dt)
		ce.presence[ci] = ce.presence[ci][:0]
	}
	ce.touched = ce.touched[:0]

	return ce.changes, ce.awards
}

func (ce *CaptureEngine) advanceCluster(ci int, cs *ClusterState, dt float64) {
	var counts [3]int
	factionsPresent := 0
	for _, c := range ce.presence[ci] {
		fi := c.faction.Index()
		if fi < 0 {
			continue
		}
		if counts[fi] == 0 {
			factionsPresent++
		}
		counts[fi]++
	}

	changed := false
	ownerChanged := false
	for fi := range Factions {
		if counts[fi] == 0 {
			// Walking away forfeits fractional progress.
			cs.progress[fi] = 0
			continue
		}
		cs.progress[fi] += float64(counts[fi]) * ce.cfg.TicsPerTankSecond * dt
		for cs.progress[fi] >= 1 {
			cs.progress[fi] -= 1
			moved, flipped := ce.step(cs, fi)
			if !moved {
				cs.progress[fi] = 0
				break
			}
			changed = true
			ownerChanged = ownerChanged || flipped
			mover := smallestContributor(ce.presence[ci], Factions[fi])
			ce.awards = append(ce.awards, TicAward{
				PlayerID:  mover.id,
				Faction:   Factions[fi],
				ClusterID: ci,
				Bot:       mover.bot,
			})
		}
	}

	if cs.Cluster.SponsorID != "" {
		ce.extendHold(cs, factionsPresent, dt)
	}

	if changed {
		ce.changes = append(ce.changes, ClusterChange{
			ID:           ci,
			Owner:        cs.Owner,
			Tics:         ticCounts(cs.Tics),
			Capacity:     cs.Cluster.Capacity,
			OwnerChanged: ownerChanged,
		})
	}
}

// step moves one tic for faction fi: enemy tics decay before own tics grow.
// Returns whether a tic moved and whether ownership changed.
func (ce *CaptureEngine) step(cs *ClusterState, fi int) (moved, flipped bool) {
	// Decay the strongest opposing faction first.
	gi := -1
	for g := range Factions {
		if g == fi || cs.Tics[g] == 0 {
			continue
		}
		if gi == -1 || cs.Tics[g] > cs.Tics[gi] {
			gi = g
		}
	}
	if gi >= 0 {
		cs.Tics[gi]--
		if cs.Tics[gi] == 0 && cs.Owner == string(Factions[gi]) {
			cs.Owner = ""
			return true, true
		}
		return true, false
	}

	if cs.Tics[fi] >= cs.Cluster.Capacity {
		return false, false
	}
	cs.Tics[fi]++
	if cs.Tics[fi] == cs.Cluster.Capacity && cs.Owner == "" && cs.Cluster.SponsorID == "" {
		cs.Owner = string(Factions[fi])
		return true, true
	}
	return true, false
}

// extendHold runs the sponsor hold timer: it drains in real time and
// sustained single-faction presence feeds it back, up to the ceiling.
func (ce *CaptureEngine) extendHold(cs *ClusterState, factionsPresent int, dt float64) {
	cs.HoldRemaining -= dt
	if factionsPresent == 1 {
		cs.HoldRemaining += ce.cfg.SponsorHoldExtend * dt
	}
	if cs.HoldRemaining > ce.cfg.SponsorHoldMax {
		cs.HoldRemaining = ce.cfg.SponsorHoldMax
	}
	if cs.HoldRemaining < 0 {
		cs.HoldRemaining = 0
	}
}

func smallestContributor(list []contributor, f Faction) contributor {
	best := contributor{}
	for _, c := range list {
		if c.faction != f {
			continue
		}
		if best.id == "" || c.id < best.id {
			best = c
		}
	}
	return best
}

// SetSponsor stamps or clears sponsor ownership at a tick boundary. Tics are
// left alone; a cleared cluster flips normally on the next capacity fill.
func (ce *CaptureEngine) SetSponsor(clusterID int, sponsorID string) {
	cs := ce.Cluster(clusterID)
	if cs == nil {
		return
	}
	cs.Cluster.SponsorID = sponsorID
	if sponsorID == "" {
		if len(cs.Owner) > len(SponsorOwnerPrefix) && cs.Owner[:len(SponsorOwnerPrefix)] == SponsorOwnerPrefix {
			cs.Owner = ""
		}
		cs.HoldRemaining = 0
		return
	}
	cs.Owner = SponsorOwnerPrefix + sponsorID
	cs.HoldRemaining = ce.cfg.SponsorHoldExtend
}

// Progress samples one cluster for a capture-progress message, computing
// momentum since the previous sample of the same cluster.
func (ce *CaptureEngine) Progress(clusterID int) CaptureProgress {
	cs := ce.Cluster(clusterID)
	if cs == nil {
		return CaptureProgress{ID: -1}
	}
	p := CaptureProgress{
		ID:       clusterID,
		Owner:    cs.Owner,
		Tics:     ticCounts(cs.Tics),
		Capacity: cs.Cluster.Capacity,
	}
	if dt := ce.clock - cs.lastClock; dt > 0 {
		p.Momentum = TicRates{
			Rust:     float64(cs.Tics[0]-cs.lastTics[0]) / dt,
			Cobalt:   float64(cs.Tics[1]-cs.lastTics[1]) / dt,
			Viridian: float64(cs.Tics[2]-cs.lastTics[2]) / dt,
		}
	}
	cs.lastTics = cs.Tics
	cs.lastClock = ce.clock
	return p
}

// Snapshot returns the full capture map, used by the welcome packet and the
// periodic bot-worker resync.
func (ce *CaptureEngine) Snapshot() []ClusterChange {
	out := make([]ClusterChange, len(ce.clusters))
	for i, cs := range ce.clusters {
		out[i] = ClusterChange{
			ID:       i,
			Owner:    cs.Owner,
			Tics:     ticCounts(cs.Tics),
			Capacity: cs.Cluster.Capacity,
		}
	}
	return out
}

// CheckInvariants validates every cluster at a tick boundary. A violation
// means the engine diverged and the room must halt rather than keep
// broadcasting corrupt state.
func (ce *CaptureEngine) CheckInvariants() error {
	for i, cs := range ce.clusters {
		sum := 0
		positive := 0
		for _, t := range cs.Tics {
			if t < 0 {
				return fmt.Errorf("cluster %d: negative tics %v", i, cs.Tics)
			}
			if t > 0 {
				positive++
			}
			sum += t
		}
		if sum > cs.Cluster.Capacity {
			return fmt.Errorf("cluster %d: tics %v exceed capacity %d", i, cs.Tics, cs.Cluster.Capacity)
		}
		if cs.Owner != "" && positive > 1 {
			return fmt.Errorf("cluster %d: owner %q with contested tics %v", i, cs.Owner, cs.Tics)
		}
	}
	return nil
}
