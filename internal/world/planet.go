package world

import (
	"encoding/binary"
	"math"
	"math/rand"
	"sort"

	"lukechampine.com/blake3"

	"tankwar/internal/config"
)

// Tile is one cell of the subdivided icosahedron. The first 12 tiles are
// pentagons (the original icosahedron corners), the rest are hexagons.
type Tile struct {
	Index     int
	Unit      Vec3
	Theta     float64
	Phi       float64
	Neighbors []int
	Pentagon  bool
	Elevation float64
	Cluster   int
}

// MoonOrbit describes one sponsorable moon. Clients integrate the angle
// themselves; the server only rebroadcasts the current angles for sync.
type MoonOrbit struct {
	RadiusFactor float64 `json:"radiusFactor"`
	Period       float64 `json:"period"`
	Inclination  float64 `json:"inclination"`
	Phase        float64 `json:"phase"`
}

// StationOrbit describes the space station circling the planet.
type StationOrbit struct {
	RadiusFactor float64 `json:"radiusFactor"`
	Period       float64 `json:"period"`
	Inclination  float64 `json:"inclination"`
}

// Planet is the generated world. Everything here is a pure function of the
// two seeds and the subdivision frequency, so any two servers (or a server
// and a client) with the same inputs agree on every tile, cluster boundary
// and portal.
type Planet struct {
	Subdivision int
	WorldSeed   int64
	TerrainSeed int64
	Radius      float64

	Tiles    []Tile
	Clusters []*Cluster
	Portals  []int
	Moons    [3]MoonOrbit
	Station  StationOrbit

	lookup lookupGrid
}

// Description is the static world part of the welcome packet. Tiles are not
// listed; clients rebuild them from the subdivision frequency and verify
// against TileCount.
type Description struct {
	Subdivision int          `json:"subdivision"`
	WorldSeed   int64        `json:"worldSeed"`
	TerrainSeed int64        `json:"terrainSeed"`
	Radius      float64      `json:"radius"`
	TileCount   int          `json:"tileCount"`
	Clusters    []*Cluster   `json:"clusters"`
	Portals     []int        `json:"portals"`
	Moons       []MoonOrbit  `json:"moons"`
	Station     StationOrbit `json:"station"`
}

// Generate builds the planet for the given config.
func Generate(cfg config.WorldConfig) *Planet {
	m := subdivideIcosahedron(cfg.Subdivision)

	p := &Planet{
		Subdivision: cfg.Subdivision,
		WorldSeed:   cfg.WorldGenSeed,
		TerrainSeed: cfg.TerrainSeed,
		Radius:      cfg.Radius,
	}

	noise := NewPerlin(deriveSeed(cfg.TerrainSeed, "terrain"))
	p.Tiles = make([]Tile, len(m.verts))
	for i, v := range m.verts {
		theta, phi := v.Spherical()
		p.Tiles[i] = Tile{
			Index:     i,
			Unit:      v,
			Theta:     theta,
			Phi:       phi,
			Neighbors: m.neighbors[i],
			Pentagon:  i < 12,
			Elevation: elevationAt(noise, v),
			Cluster:   -1,
		}
	}

	p.Clusters = buildClusters(m, cfg.MaxClusterSize, deriveSeed(cfg.WorldGenSeed, "clusters"))
	for _, c := range p.Clusters {
		for _, t := range c.Tiles {
			p.Tiles[t].Cluster = c.ID
		}
	}

	p.Portals = assignPortals(p, cfg.PortalCount, deriveSeed(cfg.WorldGenSeed, "portals"))
	p.Moons, p.Station = orbits(deriveSeed(cfg.WorldGenSeed, "orbits"))
	p.buildLookup()
	return p
}

// elevationAt samples layered noise at a tile center. Range is clamped to
// [-4, +8] world-units: shallow seas, taller ridges.
func elevationAt(n *Perlin, v Vec3) float64 {
	h := n.OctaveNoise3D(v.X, v.Y, v.Z, 4, 2.3, 0.55)
	return clamp(h*8, -4, 8)
}

// deriveSeed stretches one master seed into independent per-subsystem seeds
// so reseeding terrain never shifts cluster boundaries and vice versa.
func deriveSeed(base int64, label string) int64 {
	h := blake3.New(32, nil)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(base))
	h.Write(buf[:])
	h.Write([]byte(label))
	sum := h.Sum(nil)
	return int64(binary.LittleEndian.Uint64(sum[:8]))
}

// assignPortals spreads count portal tiles over the planet by farthest-point
// sampling on the tile graph, so every cluster has a deploy point within a
// short ride.
func assignPortals(p *Planet, count int, seed int64) []int {
	if count < 1 {
		count = 1
	}
	if count > len(p.Tiles) {
		count = len(p.Tiles)
	}
	rng := rand.New(rand.NewSource(seed))

	portals := []int{rng.Intn(len(p.Tiles))}
	dist := make([]int, len(p.Tiles))
	queue := make([]int, 0, len(p.Tiles))

	bfsFrom := func(src int) {
		queue = queue[:0]
		queue = append(queue, src)
		dist[src] = 0
		for len(queue) > 0 {
			t := queue[0]
			queue = queue[1:]
			for _, n := range p.Tiles[t].Neighbors {
				if dist[t]+1 < dist[n] {
					dist[n] = dist[t] + 1
					queue = append(queue, n)
				}
			}
		}
	}

	for i := range dist {
		dist[i] = math.MaxInt32
	}
	bfsFrom(portals[0])

	for len(portals) < count {
		best, bestD := 0, -1
		for i, d := range dist {
			if d > bestD {
				best, bestD = i, d
			}
		}
		portals = append(portals, best)
		bfsFrom(best)
	}
	sort.Ints(portals)
	return portals
}

func orbits(seed int64) ([3]MoonOrbit, StationOrbit) {
	rng := rand.New(rand.NewSource(seed))
	var moons [3]MoonOrbit
	for i := range moons {
		moons[i] = MoonOrbit{
			RadiusFactor: 1.8 + rng.Float64()*1.4,
			Period:       120 + rng.Float64()*480,
			Inclination:  (rng.Float64() - 0.5),
			Phase:        rng.Float64() * 2 * math.Pi,
		}
	}
	station := StationOrbit{
		RadiusFactor: 1.4,
		Period:       90 + rng.Float64()*30,
		Inclination:  (rng.Float64() - 0.5) * 0.6,
	}
	return moons, station
}

// Description returns the welcome-packet world listing. The output is
// deterministic for a given planet and sponsor assignment, so its serialized
// form can be cached until sponsors change.
func (p *Planet) Description() *Description {
	return &Description{
		Subdivision: p.Subdivision,
		WorldSeed:   p.WorldSeed,
		TerrainSeed: p.TerrainSeed,
		Radius:      p.Radius,
		TileCount:   len(p.Tiles),
		Clusters:    p.Clusters,
		Portals:     p.Portals,
		Moons:       p.Moons[:],
		Station:     p.Station,
	}
}

// IsPortal reports whether a tile index is a valid deploy point.
func (p *Planet) IsPortal(tile int) bool {
	i := sort.SearchInts(p.Portals, tile)
	return i < len(p.Portals) && p.Portals[i] == tile
}

// UnitFromSpherical converts (theta longitude, phi colatitude) to a unit
// vector. Inverse of Vec3.Spherical.
func UnitFromSpherical(theta, phi float64) Vec3 {
	s := math.Sin(phi)
	return Vec3{s * math.Cos(theta), s * math.Sin(theta), math.Cos(phi)}
}

// ============================================================
// TILE LOOKUP
// ============================================================
// Presence checks resolve a tank position to its nearest tile center every
// tick. The grid stores one precomputed start tile per angular bucket; a
// query walks the adjacency graph from that start toward the query point.
// On a geodesic mesh the walk is exact and terminates in a hop or two.

const (
	lookupThetaCells = 64
	lookupPhiCells   = 32
)

type lookupGrid struct {
	start [lookupThetaCells * lookupPhiCells]int
}

func lookupBucket(theta, phi float64) int {
	tc := int((theta + math.Pi) / (2 * math.Pi) * lookupThetaCells)
	if tc < 0 {
		tc = 0
	} else if tc >= lookupThetaCells {
		tc = lookupThetaCells - 1
	}
	pc := int(phi / math.Pi * lookupPhiCells)
	if pc < 0 {
		pc = 0
	} else if pc >= lookupPhiCells {
		pc = lookupPhiCells - 1
	}
	return pc*lookupThetaCells + tc
}

func (p *Planet) buildLookup() {
	for pc := 0; pc < lookupPhiCells; pc++ {
		phi := (float64(pc) + 0.5) * math.Pi / lookupPhiCells
		for tc := 0; tc < lookupThetaCells; tc++ {
			theta := (float64(tc)+0.5)*2*math.Pi/lookupThetaCells - math.Pi
			center := UnitFromSpherical(theta, phi)
			best, bestDot := 0, -2.0
			for i := range p.Tiles {
				if d := p.Tiles[i].Unit.Dot(center); d > bestDot {
					best, bestDot = i, d
				}
			}
			p.lookup.start[pc*lookupThetaCells+tc] = best
		}
	}
}

// TileAt returns the index of the tile whose center is nearest to the given
// position.
func (p *Planet) TileAt(theta, phi float64) int {
	q := UnitFromSpherical(theta, phi)
	best := p.lookup.start[lookupBucket(theta, phi)]
	bestDot := p.Tiles[best].Unit.Dot(q)
	for {
		improved := false
		for _, n := range p.Tiles[best].Neighbors {
			if d := p.Tiles[n].Unit.Dot(q); d > bestDot {
				best, bestDot = n, d
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

// ClusterAt returns the id of the cluster containing the given position.
func (p *Planet) ClusterAt(theta, phi float64) int {
	return p.Tiles[p.TileAt(theta, phi)].Cluster
}
