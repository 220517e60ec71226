package world

import (
	"math"
	"sort"
)

// Vec3 is a point on (or direction from) the unit sphere.
type Vec3 struct {
	X, Y, Z float64
}

// Normalize returns the unit-length version of v.
func (v Vec3) Normalize() Vec3 {
	l := math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
	return Vec3{v.X / l, v.Y / l, v.Z / l}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// AngularDistance returns the great-circle angle between two unit vectors.
func AngularDistance(a, b Vec3) float64 {
	d := a.Dot(b)
	if d > 1 {
		d = 1
	} else if d < -1 {
		d = -1
	}
	return math.Acos(d)
}

// Spherical returns (theta longitude in (-pi, pi], phi colatitude in [0, pi]).
func (v Vec3) Spherical() (theta, phi float64) {
	u := v.Normalize()
	return math.Atan2(u.Y, u.X), math.Acos(clamp(u.Z, -1, 1))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// icosahedron base geometry: 12 vertices, 20 faces. The 12 vertices become
// the planet's pentagon tiles after subdivision.
var icoVerts = func() []Vec3 {
	t := (1 + math.Sqrt(5)) / 2
	raw := []Vec3{
		{-1, t, 0}, {1, t, 0}, {-1, -t, 0}, {1, -t, 0},
		{0, -1, t}, {0, 1, t}, {0, -1, -t}, {0, 1, -t},
		{t, 0, -1}, {t, 0, 1}, {-t, 0, -1}, {-t, 0, 1},
	}
	for i := range raw {
		raw[i] = raw[i].Normalize()
	}
	return raw
}()

var icoFaces = [20][3]int{
	{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
	{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
	{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
	{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
}

// latticeKey identifies a subdivision lattice point exactly, without float
// comparisons. Points shared between faces (corners, edge points) canonicalize
// to the same key so vertex dedup is deterministic across runs and platforms.
type latticeKey struct {
	kind uint8 // 0 corner, 1 edge, 2 interior
	a, b int   // corner: vertex id; edge: ordered endpoints; interior: face id, i
	t    int   // edge: step from lower endpoint; interior: j
}

func cornerKey(v int) latticeKey { return latticeKey{kind: 0, a: v} }

func edgeKey(va, vb, step, freq int) latticeKey {
	if va < vb {
		return latticeKey{kind: 1, a: va, b: vb, t: step}
	}
	return latticeKey{kind: 1, a: vb, b: va, t: freq - step}
}

func interiorKey(face, i, j int) latticeKey { return latticeKey{kind: 2, a: face, b: i, t: j} }

// mesh is the subdivided icosahedron before tiles are derived from it.
type mesh struct {
	verts     []Vec3
	neighbors [][]int
}

// subdivideIcosahedron builds the geodesic mesh at the given frequency.
// Every vertex of the result is one planet tile; the first 12 vertices are
// the original icosahedron corners (pentagon tiles). Vertex order, and hence
// tile indexing, is a pure function of freq.
func subdivideIcosahedron(freq int) *mesh {
	if freq < 1 {
		freq = 1
	}

	m := &mesh{}
	index := make(map[latticeKey]int)

	intern := func(key latticeKey, p Vec3) int {
		if id, ok := index[key]; ok {
			return id
		}
		id := len(m.verts)
		index[key] = id
		m.verts = append(m.verts, p.Normalize())
		return id
	}

	// Corners first so pentagon tiles get indices 0..11.
	for vi, v := range icoVerts {
		intern(cornerKey(vi), v)
	}

	adj := make(map[int]map[int]struct{})
	link := func(u, v int) {
		if u == v {
			return
		}
		if adj[u] == nil {
			adj[u] = make(map[int]struct{})
		}
		if adj[v] == nil {
			adj[v] = make(map[int]struct{})
		}
		adj[u][v] = struct{}{}
		adj[v][u] = struct{}{}
	}

	f := float64(freq)
	for fi, face := range icoFaces {
		va, vb, vc := face[0], face[1], face[2]
		a, b, c := icoVerts[va], icoVerts[vb], icoVerts[vc]

		// row-major lattice ids for this face
		ids := make([][]int, freq+1)
		for i := 0; i <= freq; i++ {
			ids[i] = make([]int, freq-i+1)
			for j := 0; j <= freq-i; j++ {
				w := freq - i - j
				var key latticeKey
				switch {
				case w == freq:
					key = cornerKey(va)
				case i == freq:
					key = cornerKey(vb)
				case j == freq:
					key = cornerKey(vc)
				case j == 0:
					key = edgeKey(va, vb, i, freq)
				case i == 0:
					key = edgeKey(va, vc, j, freq)
				case w == 0:
					key = edgeKey(vb, vc, j, freq)
				default:
					key = interiorKey(fi, i, j)
				}

				p := Vec3{
					X: a.X*float64(w)/f + b.X*float64(i)/f + c.X*float64(j)/f,
					Y: a.Y*float64(w)/f + b.Y*float64(i)/f + c.Y*float64(j)/f,
					Z: a.Z*float64(w)/f + b.Z*float64(i)/f + c.Z*float64(j)/f,
				}
				ids[i][j] = intern(key, p)
			}
		}

		// lattice triangles define mesh edges, hence tile adjacency
		for i := 0; i < freq; i++ {
			for j := 0; j < freq-i; j++ {
				link(ids[i][j], ids[i+1][j])
				link(ids[i][j], ids[i][j+1])
				link(ids[i+1][j], ids[i][j+1])
				if j < freq-i-1 {
					link(ids[i+1][j], ids[i+1][j+1])
					link(ids[i][j+1], ids[i+1][j+1])
					link(ids[i+1][j], ids[i][j+1])
				}
			}
		}
	}

	m.neighbors = make([][]int, len(m.verts))
	for v, set := range adj {
		ns := make([]int, 0, len(set))
		for n := range set {
			ns = append(ns, n)
		}
		sort.Ints(ns)
		m.neighbors[v] = ns
	}

	return m
}
