package world

import (
	"math/rand"
	"sort"
)

// Cluster is a contiguous group of tiles that is captured as one unit.
// Capacity is the number of capture tics needed to flip ownership.
type Cluster struct {
	ID        int     `json:"id"`
	Tiles     []int   `json:"tileIndices"`
	Capacity  int     `json:"capacity"`
	Center    Vec3    `json:"-"`
	Theta     float64 `json:"theta"`
	Phi       float64 `json:"phi"`
	SponsorID string  `json:"sponsorId,omitempty"`
}

const minClusterCapacity = 4

// buildClusters partitions every tile into contiguous clusters of at most
// maxSize tiles. The partition is a pure function of the mesh and the seed:
// tiles are visited in a seeded shuffle order and grown breadth-first through
// ascending-index neighbors, so two servers with the same seed agree on every
// cluster boundary.
func buildClusters(m *mesh, maxSize int, seed int64) []*Cluster {
	if maxSize < 2 {
		maxSize = 2
	}
	rng := rand.New(rand.NewSource(seed))

	order := rng.Perm(len(m.verts))
	assigned := make([]int, len(m.verts))
	for i := range assigned {
		assigned[i] = -1
	}

	var clusters []*Cluster
	for _, start := range order {
		if assigned[start] >= 0 {
			continue
		}
		target := maxSize/2 + rng.Intn(maxSize/2+1)
		if target < 2 {
			target = 2
		}

		id := len(clusters)
		tiles := []int{start}
		assigned[start] = id
		frontier := []int{start}
		for len(tiles) < target && len(frontier) > 0 {
			next := frontier[0]
			frontier = frontier[1:]
			for _, n := range m.neighbors[next] {
				if assigned[n] >= 0 {
					continue
				}
				assigned[n] = id
				tiles = append(tiles, n)
				frontier = append(frontier, n)
				if len(tiles) == target {
					break
				}
			}
		}
		sort.Ints(tiles)
		clusters = append(clusters, &Cluster{ID: id, Tiles: tiles})
	}

	// Orphan singletons happen when a shuffle start is boxed in by earlier
	// clusters. Merge each into its smallest adjacent neighbor so no cluster
	// is trivially flippable.
	mergeOrphans(m, clusters, assigned, maxSize)

	out := clusters[:0]
	for _, c := range clusters {
		if len(c.Tiles) == 0 {
			continue
		}
		c.ID = len(out)
		for _, t := range c.Tiles {
			assigned[t] = c.ID
		}
		c.Capacity = len(c.Tiles)
		if c.Capacity < minClusterCapacity {
			c.Capacity = minClusterCapacity
		}
		c.Center = clusterCenter(m, c.Tiles)
		c.Theta, c.Phi = c.Center.Spherical()
		out = append(out, c)
	}
	return out
}

func mergeOrphans(m *mesh, clusters []*Cluster, assigned []int, maxSize int) {
	for _, c := range clusters {
		if len(c.Tiles) != 1 {
			continue
		}
		tile := c.Tiles[0]
		best := -1
		for _, n := range m.neighbors[tile] {
			nc := assigned[n]
			if nc == c.ID || len(clusters[nc].Tiles) == 0 || len(clusters[nc].Tiles) >= maxSize {
				continue
			}
			if best == -1 || len(clusters[nc].Tiles) < len(clusters[best].Tiles) {
				best = nc
			}
		}
		if best == -1 {
			continue
		}
		clusters[best].Tiles = append(clusters[best].Tiles, tile)
		sort.Ints(clusters[best].Tiles)
		assigned[tile] = best
		c.Tiles = nil
	}
}

func clusterCenter(m *mesh, tiles []int) Vec3 {
	var sum Vec3
	for _, t := range tiles {
		sum.X += m.verts[t].X
		sum.Y += m.verts[t].Y
		sum.Z += m.verts[t].Z
	}
	return sum.Normalize()
}
