package spatial

import (
	"sort"
)

// SweepAndPrune implements 1-axis sweep with temporal coherence for
// broad-phase collision detection between tanks. It projects each tank's
// bounding interval onto the colatitude (phi) axis, sorts endpoints, and
// detects overlaps. Colatitude is the one spherical coordinate with no
// wrap-around, which makes it a sound sweep axis; longitude proximity is
// left to the narrow phase.
//
// With temporal coherence (tanks move little between ticks), insertion sort
// approaches O(n). This is a well-established technique from physics engines
// (Bullet, Box2D).
//
// Origin: Baraff & Witkin (SIGGRAPH 1992); Bullet Physics (2003)
type SweepAndPrune struct {
	endpoints  []SAPEndpoint   // All min/max endpoints
	pairs      []CollisionPair // Output buffer (reused)
	active     []uint32        // Active interval set (reused)
	useInsSort bool            // Use insertion sort for temporal coherence
}

// SAPEndpoint represents one end of a bounding interval on the sweep axis.
type SAPEndpoint struct {
	Value    float32 // phi coordinate
	EntityID uint32  // Which entity
	IsMin    bool    // true = start of interval, false = end
}

// CollisionPair represents two entities whose bounding intervals overlap.
type CollisionPair struct {
	A, B uint32
}

// NewSweepAndPrune creates a new sweep-and-prune broad phase.
// maxEntities is used to preallocate buffers.
func NewSweepAndPrune(maxEntities int) *SweepAndPrune {
	return &SweepAndPrune{
		endpoints:  make([]SAPEndpoint, 0, maxEntities*2),
		pairs:      make([]CollisionPair, 0, maxEntities),
		active:     make([]uint32, 0, maxEntities/4+4),
		useInsSort: true,
	}
}

// Update rebuilds endpoints from per-entity colatitudes and a uniform
// angular radius, then finds all overlapping pairs.
//
// phis: [entityID] -> colatitude in radians
// radius: angular collision radius shared by all entities
//
// Returns overlapping pairs. The returned slice is reused on subsequent
// calls; pairs may still be far apart in longitude and need a precise
// distance check.
func (s *SweepAndPrune) Update(phis []float32, radius float32) []CollisionPair {
	s.pairs = s.pairs[:0]
	s.endpoints = s.endpoints[:0]

	for i, phi := range phis {
		s.endpoints = append(s.endpoints,
			SAPEndpoint{phi - radius, uint32(i), true},
			SAPEndpoint{phi + radius, uint32(i), false},
		)
	}

	if s.useInsSort && len(s.endpoints) > 1 {
		// Insertion sort: O(n) for nearly-sorted data (temporal coherence)
		insertionSortEndpoints(s.endpoints)
	} else {
		sort.Slice(s.endpoints, func(i, j int) bool {
			return s.endpoints[i].Value < s.endpoints[j].Value
		})
	}

	// Sweep: track active intervals
	s.active = s.active[:0]

	for _, ep := range s.endpoints {
		if ep.IsMin {
			// Starting new interval - pair with all active intervals
			for _, other := range s.active {
				s.pairs = append(s.pairs, CollisionPair{ep.EntityID, other})
			}
			s.active = append(s.active, ep.EntityID)
		} else {
			// Ending interval - remove from active set
			for i, id := range s.active {
				if id == ep.EntityID {
					// Swap with last and truncate
					s.active[i] = s.active[len(s.active)-1]
					s.active = s.active[:len(s.active)-1]
					break
				}
			}
		}
	}

	return s.pairs
}

// SetInsertionSort enables/disables insertion sort optimization.
// When true (default), uses insertion sort which is O(n) for nearly-sorted data.
// When false, uses Go's standard sort which is O(n log n).
func (s *SweepAndPrune) SetInsertionSort(enabled bool) {
	s.useInsSort = enabled
}

// insertionSortEndpoints sorts endpoints in-place using insertion sort.
// This is O(n) for nearly-sorted data due to temporal coherence.
func insertionSortEndpoints(eps []SAPEndpoint) {
	for i := 1; i < len(eps); i++ {
		key := eps[i]
		j := i - 1
		for j >= 0 && eps[j].Value > key.Value {
			eps[j+1] = eps[j]
			j--
		}
		eps[j+1] = key
	}
}
