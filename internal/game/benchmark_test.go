package game

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"tankwar/internal/game/spatial"
)

// =============================================================================
// BENCHMARK SUITE: TICK-LOOP CRITICAL PATH
// Run with: go test -bench=. -benchmem ./internal/game/...
// =============================================================================

// discardBroadcaster sinks outbound traffic so benchmarks measure the
// simulation, not slice growth inside a recorder.
type discardBroadcaster struct{}

func (discardBroadcaster) Broadcast(string, interface{})      {}
func (discardBroadcaster) SendTo(string, string, interface{}) {}

var benchFactions = []Faction{FactionRust, FactionCobalt, FactionViridian}

// benchRoom returns a room with the requested number of humans deployed at
// random tiles, flush with crypto so fire costs never gate a benchmark.
func benchRoom(b *testing.B, tanks int) *Room {
	b.Helper()
	r := NewRoom(testConfig(), testPlanet(), discardBroadcaster{}, nil, nil)
	dt := 1.0 / float64(r.cfg.Game.TickRate)

	for i := 0; i < tanks; i++ {
		id := fmt.Sprintf("tank%d", i)
		r.Join(id, id, benchFactions[i%3], nil)
	}
	r.step(dt)

	rng := rand.New(rand.NewSource(42))
	for _, p := range r.players {
		tile := r.planet.Tiles[rng.Intn(len(r.planet.Tiles))]
		p.DeployAt(tile.Theta, tile.Phi, rng.Float64()*2*math.Pi)
		p.Crypto = 1 << 30
	}
	r.step(dt)
	return r
}

// -----------------------------------------------------------------------------
// ROOM TICK BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkRoomStep_8Tanks(b *testing.B)  { benchmarkRoomStep(b, 8) }
func BenchmarkRoomStep_16Tanks(b *testing.B) { benchmarkRoomStep(b, 16) }
func BenchmarkRoomStep_32Tanks(b *testing.B) { benchmarkRoomStep(b, 32) }
func BenchmarkRoomStep_64Tanks(b *testing.B) { benchmarkRoomStep(b, 64) }

func benchmarkRoomStep(b *testing.B, tanks int) {
	r := benchRoom(b, tanks)
	dt := 1.0 / float64(r.cfg.Game.TickRate)
	ids := make([]string, 0, tanks)
	for id := range r.players {
		ids = append(ids, id)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		// Every tank drives forward with a slow turret sweep, the way a
		// busy lobby looks from the loop's side.
		for _, id := range ids {
			r.SubmitInput(id, InputCommand{
				Seq:         uint32(i + 1),
				Keys:        KeyForward,
				TurretAngle: float64(i%63) * 0.1,
				DT:          dt,
			})
		}
		r.step(dt)
	}
}

// BenchmarkRoomStepCombat_32Tanks runs the hot pipeline: movement plus a
// quarter of the field firing full charge every tick.
func BenchmarkRoomStepCombat_32Tanks(b *testing.B) {
	r := benchRoom(b, 32)
	dt := 1.0 / float64(r.cfg.Game.TickRate)
	ids := make([]string, 0, 32)
	for id := range r.players {
		ids = append(ids, id)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		for j, id := range ids {
			r.SubmitInput(id, InputCommand{
				Seq:         uint32(i + 1),
				Keys:        KeyForward,
				TurretAngle: float64(j),
				DT:          dt,
			})
			if j%4 == 0 {
				r.Fire(id, 10, float64(j))
			}
		}
		r.step(dt)
	}
}

// -----------------------------------------------------------------------------
// BROADCAST AND SNAPSHOT BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkBroadcastState_64Tanks(b *testing.B) {
	r := benchRoom(b, 64)
	r.cfg.Game.BroadcastEvery = 1 // measure every frame, not every other

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		r.tick++
		r.broadcastState()
	}
}

func BenchmarkPublishSnapshot_64Tanks(b *testing.B) {
	r := benchRoom(b, 64)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		r.publishSnapshot()
	}
}

// -----------------------------------------------------------------------------
// SPHERE GRID BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkSphereGrid_Insert(b *testing.B) {
	grid := spatial.NewSphereGrid(64, 32, 128)
	rng := rand.New(rand.NewSource(7))

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		grid.Clear()
		for j := 0; j < 100; j++ {
			grid.Insert(uint32(j), rng.Float64()*2*math.Pi-math.Pi, rng.Float64()*math.Pi)
		}
	}
}

func BenchmarkSphereGrid_QueryRadius(b *testing.B) {
	grid := spatial.NewSphereGrid(64, 32, 128)
	rng := rand.New(rand.NewSource(7))
	for j := 0; j < 100; j++ {
		grid.Insert(uint32(j), rng.Float64()*2*math.Pi-math.Pi, rng.Float64()*math.Pi)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = grid.QueryRadius(rng.Float64()*2*math.Pi-math.Pi, rng.Float64()*math.Pi, 0.3)
	}
}

// -----------------------------------------------------------------------------
// SWEEP AND PRUNE BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkSAP_Update_16Tanks(b *testing.B)  { benchmarkSAPUpdate(b, 16) }
func BenchmarkSAP_Update_64Tanks(b *testing.B)  { benchmarkSAPUpdate(b, 64) }
func BenchmarkSAP_Update_256Tanks(b *testing.B) { benchmarkSAPUpdate(b, 256) }

func benchmarkSAPUpdate(b *testing.B, tanks int) {
	sap := spatial.NewSweepAndPrune(tanks)
	rng := rand.New(rand.NewSource(7))

	phis := make([]float32, tanks)
	for i := range phis {
		phis[i] = float32(rng.Float64() * math.Pi)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		// Tanks drift a little each tick; temporal coherence is the whole
		// point of the insertion-sort pass.
		for j := range phis {
			phis[j] += float32((rng.Float64() - 0.5) * 0.01)
		}
		_ = sap.Update(phis, 0.05)
	}
}

// -----------------------------------------------------------------------------
// FLOW FIELD BENCHMARKS
// -----------------------------------------------------------------------------

func BenchmarkFlowField_Generate(b *testing.B) {
	planet := testPlanet()
	neighbors := make([][]int, len(planet.Tiles))
	for i, tile := range planet.Tiles {
		neighbors[i] = tile.Neighbors
	}
	fm := spatial.NewFlowFieldManager(neighbors, nil)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		c := planet.Clusters[i%len(planet.Clusters)]
		fm.Regenerate(c.ID, c.Tiles)
	}
}

func BenchmarkFlowField_NextHop(b *testing.B) {
	planet := testPlanet()
	neighbors := make([][]int, len(planet.Tiles))
	for i, tile := range planet.Tiles {
		neighbors[i] = tile.Neighbors
	}
	fm := spatial.NewFlowFieldManager(neighbors, nil)
	c := planet.Clusters[0]
	field := fm.GetOrCreate(c.ID, c.Tiles)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = field.NextHop(i % len(planet.Tiles))
	}
}

// -----------------------------------------------------------------------------
// LEADERBOARD BENCHMARKS
// -----------------------------------------------------------------------------

// BenchmarkLeaderboardUpdate measures the skip-list reinsert path every
// crypto broadcast takes for every player.
func BenchmarkLeaderboardUpdate(b *testing.B) {
	lb := NewLeaderboard()
	players := make([]*Player, 64)
	for i := range players {
		p := NewPlayer(fmt.Sprintf("tank%d", i), fmt.Sprintf("Tank %d", i), benchFactions[i%3], PlayerOptions{})
		p.TotalCrypto = int64(i * 100)
		players[i] = p
		lb.UpdatePlayer(p)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		p := players[i%len(players)]
		p.TotalCrypto += 7
		lb.UpdatePlayer(p)
	}
}

func BenchmarkLeaderboardGetAround(b *testing.B) {
	lb := NewLeaderboard()
	for i := 0; i < 64; i++ {
		p := NewPlayer(fmt.Sprintf("tank%d", i), fmt.Sprintf("Tank %d", i), benchFactions[i%3], PlayerOptions{})
		p.TotalCrypto = int64(i * 100)
		lb.UpdatePlayer(p)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = lb.GetAroundPlayer(fmt.Sprintf("tank%d", i%64), 2, 2)
	}
}
