package bot

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"tankwar/internal/config"
	"tankwar/internal/game"
	"tankwar/internal/world"
)

const testDT = 1.0 / 20.0

var (
	botPlanetOnce sync.Once
	botPlanetVal  *world.Planet
)

func botTestConfig() config.AppConfig {
	cfg := config.Load()
	cfg.World.Subdivision = 4
	cfg.World.PortalCount = 4
	return cfg
}

func botTestPlanet() *world.Planet {
	botPlanetOnce.Do(func() {
		botPlanetVal = world.Generate(botTestConfig().World)
	})
	return botPlanetVal
}

func tickInput(tick, boundary uint64, humans []game.HumanState) game.TickInput {
	return game.TickInput{Tick: tick, DT: testDT, NextProjectileID: boundary, Humans: humans}
}

func botFactionCounts(out game.TickOutput) map[game.Faction]int {
	counts := make(map[game.Faction]int)
	for i := range out.BotIDs {
		flags := uint32(out.Positions[i*game.BotStride+4])
		counts[game.BotFlagFaction(flags)]++
	}
	return counts
}

func TestWorkerBootQuota(t *testing.T) {
	cfg := botTestConfig()
	planet := botTestPlanet()
	w := NewWorker(cfg, planet)

	humans := []game.HumanState{
		{ID: "h1", Faction: game.FactionRust, Theta: 1, Phi: 1.5},
		{ID: "h2", Faction: game.FactionCobalt, Theta: -1, Phi: 1.5},
	}
	out := w.RunTick(tickInput(1, 100, humans))

	want := cfg.Bots.TargetTanks - len(humans)
	if len(out.BotIDs) != want {
		t.Fatalf("boot spawned %d bots, want %d", len(out.BotIDs), want)
	}
	if len(out.Positions) != want*game.BotStride {
		t.Fatalf("positions buffer has %d floats, want %d", len(out.Positions), want*game.BotStride)
	}

	// Balancing counts the humans too: rust and cobalt each have one, so
	// viridian receives one extra bot.
	counts := botFactionCounts(out)
	if counts[game.FactionRust] != counts[game.FactionCobalt] {
		t.Fatalf("rust/cobalt bots unbalanced: %v", counts)
	}
	if counts[game.FactionViridian] != counts[game.FactionRust]+1 {
		t.Fatalf("viridian should lead by one bot: %v", counts)
	}

	for i, id := range out.BotIDs {
		st, ok := out.BotStates[id]
		if !ok {
			t.Fatalf("bot %s missing from state map", id)
		}
		if st.Deploy != game.DeployWaiting {
			t.Fatalf("bot %s deploy = %d on spawn tick, want waiting", id, st.Deploy)
		}
		if st.HP != cfg.Bots.BotMaxHP {
			t.Fatalf("bot %s HP = %d on spawn, want %d", id, st.HP, cfg.Bots.BotMaxHP)
		}
		flags := uint32(out.Positions[i*game.BotStride+4])
		if flags&game.BotFlagDeploying == 0 {
			t.Fatalf("bot %s missing deploying flag", id)
		}

		theta := float64(out.Positions[i*game.BotStride+0])
		phi := float64(out.Positions[i*game.BotStride+1])
		near := false
		for _, ti := range planet.Portals {
			tile := planet.Tiles[ti]
			if surfaceDist(theta, phi, tile.Theta, tile.Phi, planet.Radius) < 10 {
				near = true
				break
			}
		}
		if !near {
			t.Fatalf("bot %s spawned away from every portal", id)
		}
	}

	// The census runs once. A later tick with fewer humans does not trigger
	// another fill; quota drift is the main loop's job via spawn commands.
	out = w.RunTick(tickInput(2, 100, nil))
	if len(out.BotIDs) != want {
		t.Fatalf("bot count changed to %d on second tick, want %d", len(out.BotIDs), want)
	}
}

func TestWorkerDamageAndRespawn(t *testing.T) {
	cfg := botTestConfig()
	cfg.Bots.TargetTanks = 3
	w := NewWorker(cfg, botTestPlanet())

	out := w.RunTick(tickInput(1, 10, nil))
	if len(out.BotIDs) != 3 {
		t.Fatalf("boot spawned %d bots, want 3", len(out.BotIDs))
	}
	id := out.BotIDs[0]

	w.Apply(game.BotCommand{Kind: game.BotCommandApplyDamage, BotID: id, AttackerID: "h9", Damage: 30})
	out = w.RunTick(tickInput(2, 10, nil))
	if len(out.Events) != 1 {
		t.Fatalf("got %d events, want 1 damage event", len(out.Events))
	}
	ev := out.Events[0]
	if ev.Kind != game.BotEventDamage || ev.BotID != id || ev.Damage != 30 || ev.HP != cfg.Bots.BotMaxHP-30 {
		t.Fatalf("unexpected damage event: %+v", ev)
	}

	w.Apply(game.BotCommand{Kind: game.BotCommandApplyDamage, BotID: id, AttackerID: "h9", Damage: 999})
	out = w.RunTick(tickInput(3, 10, nil))
	var death *game.BotEvent
	hpZero := false
	for i := range out.Events {
		switch out.Events[i].Kind {
		case game.BotEventDamage:
			if out.Events[i].HP == 0 {
				hpZero = true
			}
		case game.BotEventDeath:
			death = &out.Events[i]
		}
	}
	if !hpZero {
		t.Fatal("lethal hit did not clamp HP to zero")
	}
	if death == nil || death.BotID != id || death.KillerID != "h9" {
		t.Fatalf("unexpected death event: %+v", death)
	}
	if out.BotStates[id].Deploy != game.DeployDead {
		t.Fatalf("dead bot deploy = %d, want dead", out.BotStates[id].Deploy)
	}
	idx := -1
	for i, bid := range out.BotIDs {
		if bid == id {
			idx = i
		}
	}
	if flags := uint32(out.Positions[idx*game.BotStride+4]); flags&game.BotFlagDead == 0 {
		t.Fatal("dead bot missing dead flag in packed buffer")
	}

	// Corpses absorb no further damage.
	w.Apply(game.BotCommand{Kind: game.BotCommandApplyDamage, BotID: id, AttackerID: "h9", Damage: 10})
	out = w.RunTick(tickInput(4, 10, nil))
	for _, ev := range out.Events {
		if ev.BotID == id {
			t.Fatalf("dead bot produced event: %+v", ev)
		}
	}

	var revived game.TankWire
	found := false
	for tick := uint64(5); tick < 200; tick++ {
		out = w.RunTick(tickInput(tick, 10, nil))
		if out.BotStates[id].Deploy != game.DeployDead {
			revived = out.BotStates[id]
			found = true
			break
		}
	}
	if !found {
		t.Fatal("bot never respawned")
	}
	if revived.Deploy != game.DeployWaiting {
		t.Fatalf("respawned bot deploy = %d, want waiting", revived.Deploy)
	}
	if revived.HP != cfg.Bots.BotMaxHP {
		t.Fatalf("respawned bot HP = %d, want %d", revived.HP, cfg.Bots.BotMaxHP)
	}
}

func TestWorkerShotIDsRespectBoundary(t *testing.T) {
	cfg := botTestConfig()
	planet := botTestPlanet()

	// Two enemy humans camped on every portal guarantee each bot a target
	// in cannon range as soon as it finishes deploying.
	var humans []game.HumanState
	for i, ti := range planet.Portals {
		tile := planet.Tiles[ti]
		humans = append(humans,
			game.HumanState{ID: fmt.Sprintf("r%d", i), Faction: game.FactionRust, Theta: tile.Theta, Phi: tile.Phi},
			game.HumanState{ID: fmt.Sprintf("c%d", i), Faction: game.FactionCobalt, Theta: tile.Theta, Phi: tile.Phi},
		)
	}

	w := NewWorker(cfg, planet)
	const boundary = 5000
	seen := make(map[uint64]bool)
	total := 0
	var lastNext uint64
	for tick := uint64(1); tick <= 40; tick++ {
		out := w.RunTick(tickInput(tick, boundary, humans))
		for _, shot := range out.NewProjectiles {
			if shot.ID < boundary {
				t.Fatalf("shot id %d below the reserved band %d", shot.ID, boundary)
			}
			if seen[shot.ID] {
				t.Fatalf("duplicate shot id %d", shot.ID)
			}
			seen[shot.ID] = true
			if shot.Power < 0 || shot.Power > 10 {
				t.Fatalf("shot power %.2f out of range", shot.Power)
			}
			if !shot.Faction.Valid() {
				t.Fatalf("shot carries invalid faction %q", shot.Faction)
			}
			if shot.BotID == "" {
				t.Fatal("shot missing owner")
			}
			total++
		}
		lastNext = out.NextProjectileID
	}
	if total == 0 {
		t.Fatal("no bot fired despite targets in range")
	}
	if lastNext != boundary+uint64(total) {
		t.Fatalf("NextProjectileID = %d after %d shots from %d", lastNext, total, boundary)
	}
}

func TestWorkerSpawnDespawnCommands(t *testing.T) {
	cfg := botTestConfig()
	w := NewWorker(cfg, botTestPlanet())

	out := w.RunTick(tickInput(1, 10, nil))
	counts := botFactionCounts(out)
	for _, f := range game.Factions {
		if counts[f] != cfg.Bots.TargetTanks/3 {
			t.Fatalf("boot with no humans should balance evenly, got %v", counts)
		}
	}

	w.Apply(game.BotCommand{Kind: game.BotCommandDespawn, Faction: game.FactionViridian})
	out = w.RunTick(tickInput(2, 10, nil))
	if len(out.BotIDs) != cfg.Bots.TargetTanks-1 {
		t.Fatalf("despawn left %d bots, want %d", len(out.BotIDs), cfg.Bots.TargetTanks-1)
	}
	counts = botFactionCounts(out)
	if counts[game.FactionViridian] != cfg.Bots.TargetTanks/3-1 {
		t.Fatalf("despawn removed the wrong faction: %v", counts)
	}

	w.Apply(game.BotCommand{Kind: game.BotCommandSpawn, Faction: game.FactionRust})
	out = w.RunTick(tickInput(3, 10, nil))
	counts = botFactionCounts(out)
	if counts[game.FactionRust] != cfg.Bots.TargetTanks/3+1 {
		t.Fatalf("spawn missed the requested faction: %v", counts)
	}

	// Spawns without a faction go to the thinnest side, viridian here.
	w.Apply(game.BotCommand{Kind: game.BotCommandSpawn})
	out = w.RunTick(tickInput(4, 10, nil))
	counts = botFactionCounts(out)
	if counts[game.FactionViridian] != cfg.Bots.TargetTanks/3 {
		t.Fatalf("unfactioned spawn did not balance: %v", counts)
	}
}

func TestWorkerAdoptsShotBoundary(t *testing.T) {
	cfg := botTestConfig()
	w := NewWorker(cfg, botTestPlanet())

	out := w.RunTick(tickInput(1, 1000, nil))
	if out.NextProjectileID != 1000 {
		t.Fatalf("NextProjectileID = %d, want 1000", out.NextProjectileID)
	}
	out = w.RunTick(tickInput(2, 3000, nil))
	if out.NextProjectileID != 3000 {
		t.Fatalf("NextProjectileID = %d, want 3000", out.NextProjectileID)
	}
	// A stale lower boundary never rolls the counter back.
	out = w.RunTick(tickInput(3, 2500, nil))
	if out.NextProjectileID != 3000 {
		t.Fatalf("stale boundary rolled counter back to %d", out.NextProjectileID)
	}
}

func TestWorkerNavigatesToTarget(t *testing.T) {
	cfg := botTestConfig()
	cfg.Bots.TargetTanks = 3
	planet := botTestPlanet()
	w := NewWorker(cfg, planet)

	// Mark every cluster as sponsor-locked except the one farthest from all
	// portals. Each bot must cross the planet to reach the only open goal.
	goal, bestDist := -1, -1.0
	for _, c := range planet.Clusters {
		low := math.MaxFloat64
		for _, ti := range planet.Portals {
			tile := planet.Tiles[ti]
			if d := surfaceDist(c.Theta, c.Phi, tile.Theta, tile.Phi, planet.Radius); d < low {
				low = d
			}
		}
		if low > bestDist {
			bestDist, goal = low, c.ID
		}
	}
	changes := make([]game.ClusterChange, 0, len(planet.Clusters))
	for _, c := range planet.Clusters {
		owner := game.SponsorOwnerPrefix + "locked"
		if c.ID == goal {
			owner = ""
		}
		changes = append(changes, game.ClusterChange{ID: c.ID, Owner: owner})
	}

	in := tickInput(1, 1, nil)
	in.Capture = changes
	out := w.RunTick(in)
	start := make(map[string][2]float64, len(out.BotIDs))
	for i, id := range out.BotIDs {
		start[id] = [2]float64{
			float64(out.Positions[i*game.BotStride+0]),
			float64(out.Positions[i*game.BotStride+1]),
		}
	}

	arrived := false
	for tick := uint64(2); tick <= 1200 && !arrived; tick++ {
		out = w.RunTick(tickInput(tick, 1, nil))
		arrived = true
		for i := range out.BotIDs {
			if int(out.Positions[i*game.BotStride+5]) != goal {
				arrived = false
				break
			}
		}
	}
	if !arrived {
		t.Fatalf("bots never all reached cluster %d (%.0f units out)", goal, bestDist)
	}
	for i, id := range out.BotIDs {
		s := start[id]
		theta := float64(out.Positions[i*game.BotStride+0])
		phi := float64(out.Positions[i*game.BotStride+1])
		if surfaceDist(s[0], s[1], theta, phi, planet.Radius) < 5 {
			t.Fatalf("bot %s barely moved from its spawn", id)
		}
	}
}
