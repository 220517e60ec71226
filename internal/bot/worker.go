package bot

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"tankwar/internal/config"
	"tankwar/internal/game"
	"tankwar/internal/game/spatial"
	"tankwar/internal/world"
)

const (
	botStateDeploying = iota
	botStateActive
	botStateDead
)

const (
	deploySeconds  = 1.0  // spawn-in time during which a bot is untargetable
	cruiseFraction = 0.75 // bots top out below human max speed
	fireInterval   = 1.6  // seconds between shots before jitter
	fireJitter     = 0.5  // extra random cooldown, seconds
	aimSpread      = 0.05 // radians of heading noise per shot
	botSeparation  = 6.0  // world units between bot centers
	spawnScatter   = 0.02 // radians of position noise around the spawn tile
)

type botTank struct {
	id      string
	faction game.Faction

	theta   float64
	phi     float64
	heading float64
	speed   float64

	hp         int
	state      int
	stateTicks int // countdown within deploying and dead states

	target   int // goal cluster id, -1 until chosen
	cluster  int // cluster currently under the hull, for the packed buffer
	cooldown int // ticks until the cannon is ready
}

// Worker owns every bot exclusively. It never touches room state: each tick
// it receives a value snapshot of the humans and answers with fresh buffers
// the main loop is free to keep. One Worker is driven by one goroutine.
type Worker struct {
	cfg    config.AppConfig
	planet *world.Planet
	rng    *rand.Rand

	flow *spatial.FlowFieldManager
	grid *spatial.SphereGrid

	bots   []*botTank
	byID   map[string]*botTank
	serial int

	// Capture view, refreshed by the periodic resync snapshot.
	clusterOwner []string

	// Events produced by out-of-band commands, drained into the next output.
	pending []game.BotEvent

	nextShotID uint64
	booted     bool
}

// NewWorker builds a worker over the shared immutable planet. Bots spawn on
// the first tick, once the human census is known. Reusing the same seed
// after a crash replays the same decisions.
func NewWorker(cfg config.AppConfig, planet *world.Planet) *Worker {
	neighbors := make([][]int, len(planet.Tiles))
	for i := range planet.Tiles {
		neighbors[i] = planet.Tiles[i].Neighbors
	}
	return &Worker{
		cfg:          cfg,
		planet:       planet,
		rng:          rand.New(rand.NewSource(cfg.Bots.BotSeed)),
		flow:         spatial.NewFlowFieldManager(neighbors, nil),
		grid:         spatial.NewSphereGrid(64, 32, cfg.Limits.MaxPlayers+cfg.Bots.TargetTanks),
		byID:         make(map[string]*botTank),
		clusterOwner: make([]string, len(planet.Clusters)),
	}
}

func (w *Worker) ticksFor(seconds float64) int {
	t := int(seconds * float64(w.cfg.Game.TickRate))
	if t < 1 {
		t = 1
	}
	return t
}

// Apply handles an out-of-band command between ticks. Damage reflows from
// human projectile hits resolved on the main loop; the worker owns the HP
// and reports the resulting events with its next output.
func (w *Worker) Apply(cmd game.BotCommand) {
	switch cmd.Kind {
	case game.BotCommandApplyDamage:
		w.applyDamage(cmd)
	case game.BotCommandSpawn:
		w.spawnBot(cmd.Faction)
	case game.BotCommandDespawn:
		w.despawnBot(cmd.Faction)
	}
}

func (w *Worker) applyDamage(cmd game.BotCommand) {
	b, ok := w.byID[cmd.BotID]
	if !ok || b.state == botStateDead {
		return
	}
	b.hp -= cmd.Damage
	if b.hp < 0 {
		b.hp = 0
	}
	w.pending = append(w.pending, game.BotEvent{
		Kind:   game.BotEventDamage,
		BotID:  b.id,
		Damage: cmd.Damage,
		HP:     b.hp,
	})
	if b.hp == 0 {
		b.state = botStateDead
		b.stateTicks = w.ticksFor(w.cfg.Game.RespawnDelay)
		b.speed = 0
		w.pending = append(w.pending, game.BotEvent{
			Kind:     game.BotEventDeath,
			BotID:    b.id,
			KillerID: cmd.AttackerID,
		})
	}
}

func (w *Worker) spawnBot(f game.Faction) {
	if !f.Valid() {
		f = w.leastPopulatedFaction(nil)
	}
	w.serial++
	b := &botTank{
		id:         fmt.Sprintf("bot-%d", w.serial),
		faction:    f,
		hp:         w.cfg.Bots.BotMaxHP,
		state:      botStateDeploying,
		stateTicks: w.ticksFor(deploySeconds),
		target:     -1,
		cluster:    -1,
	}
	tile := w.planet.Tiles[w.planet.Portals[w.rng.Intn(len(w.planet.Portals))]]
	b.theta = wrapAngle(tile.Theta + (w.rng.Float64()-0.5)*spawnScatter)
	b.phi = clampColat(tile.Phi + (w.rng.Float64()-0.5)*spawnScatter)
	b.heading = w.rng.Float64()*2*math.Pi - math.Pi
	w.bots = append(w.bots, b)
	w.byID[b.id] = b
}

// despawnBot removes one bot, preferring the given faction and dead bots so
// the field changes as little as possible.
func (w *Worker) despawnBot(f game.Faction) {
	if len(w.bots) == 0 {
		return
	}
	pick := -1
	for i, b := range w.bots {
		if b.faction != f {
			continue
		}
		if b.state == botStateDead {
			pick = i
			break
		}
		if pick < 0 {
			pick = i
		}
	}
	if pick < 0 {
		for i, b := range w.bots {
			if b.state == botStateDead {
				pick = i
				break
			}
		}
	}
	if pick < 0 {
		pick = len(w.bots) - 1
	}
	delete(w.byID, w.bots[pick].id)
	w.bots = append(w.bots[:pick], w.bots[pick+1:]...)
}

func (w *Worker) leastPopulatedFaction(humans []game.HumanState) game.Faction {
	var counts [3]int
	for _, h := range humans {
		if fi := h.Faction.Index(); fi >= 0 {
			counts[fi]++
		}
	}
	for _, b := range w.bots {
		if fi := b.faction.Index(); fi >= 0 {
			counts[fi]++
		}
	}
	best := 0
	for fi := 1; fi < len(counts); fi++ {
		if counts[fi] < counts[best] {
			best = fi
		}
	}
	return game.Factions[best]
}

// boot fills the field up to the tank quota once the first human census
// arrives. Restarted workers re-census instead of replaying stale quota
// commands they never saw.
func (w *Worker) boot(in game.TickInput) {
	w.booted = true
	want := w.cfg.Bots.TargetTanks - len(in.Humans) - len(w.bots)
	for i := 0; i < want; i++ {
		w.spawnBot(w.leastPopulatedFaction(in.Humans))
	}
}

// RunTick advances every bot by one tick and returns freshly allocated
// buffers. The caller may hold them indefinitely.
func (w *Worker) RunTick(in game.TickInput) game.TickOutput {
	if in.NextProjectileID > w.nextShotID {
		w.nextShotID = in.NextProjectileID
	}
	if in.Capture != nil {
		for _, ch := range in.Capture {
			if ch.ID >= 0 && ch.ID < len(w.clusterOwner) {
				w.clusterOwner[ch.ID] = ch.Owner
			}
		}
	}
	if !w.booted {
		w.boot(in)
	}

	w.grid.Clear()
	for i := range in.Humans {
		if h := &in.Humans[i]; !h.IsDead {
			w.grid.Insert(uint32(i), h.Theta, h.Phi)
		}
	}

	out := game.TickOutput{Tick: in.Tick, Events: w.pending}
	w.pending = nil

	var shots []game.BotShot
	for _, b := range w.bots {
		if shot, ok := w.stepBot(b, in); ok {
			shots = append(shots, shot)
		}
	}
	w.separate()

	out.BotIDs = make([]string, len(w.bots))
	out.Positions = make([]float32, len(w.bots)*game.BotStride)
	out.BotStates = make(map[string]game.TankWire, len(w.bots))
	for i, b := range w.bots {
		b.cluster = w.planet.ClusterAt(b.theta, b.phi)
		out.BotIDs[i] = b.id
		base := i * game.BotStride
		out.Positions[base+0] = float32(b.theta)
		out.Positions[base+1] = float32(b.phi)
		out.Positions[base+2] = float32(b.heading)
		out.Positions[base+3] = float32(b.speed)
		out.Positions[base+4] = float32(game.PackBotFlags(b.state == botStateDead, b.state == botStateDeploying, b.faction))
		out.Positions[base+5] = float32(b.cluster)
		out.BotStates[b.id] = b.wire()
	}
	out.NewProjectiles = shots
	out.NextProjectileID = w.nextShotID
	return out
}

func (b *botTank) wire() game.TankWire {
	deploy := game.DeployAlive
	switch b.state {
	case botStateDead:
		deploy = game.DeployDead
	case botStateDeploying:
		deploy = game.DeployWaiting
	}
	return game.TankWire{
		Theta:   b.theta,
		Phi:     b.phi,
		Heading: b.heading,
		Speed:   b.speed,
		Turret:  b.heading,
		HP:      b.hp,
		Deploy:  deploy,
		Faction: b.faction,
	}
}

func (w *Worker) stepBot(b *botTank, in game.TickInput) (game.BotShot, bool) {
	switch b.state {
	case botStateDead:
		b.stateTicks--
		if b.stateTicks <= 0 {
			w.respawn(b)
		}
		return game.BotShot{}, false
	case botStateDeploying:
		b.stateTicks--
		if b.stateTicks <= 0 {
			b.state = botStateActive
		}
		return game.BotShot{}, false
	}

	w.retarget(b)
	desired, wantMove := w.navigate(b)

	dt := in.DT
	if wantMove {
		b.heading = turnToward(b.heading, desired, w.cfg.Game.TankTurnRate*dt)
		b.speed += w.cfg.Game.TankAccel * dt
		if cruise := w.cfg.Game.TankMaxSpeed * cruiseFraction; b.speed > cruise {
			b.speed = cruise
		}
	} else {
		b.speed *= 0.8
		if b.speed < 1e-3 {
			b.speed = 0
		}
	}
	b.theta, b.phi = sphereStep(b.theta, b.phi, b.heading, b.speed*dt, w.planet.Radius)

	return w.engage(b, in.Humans)
}

// respawn puts a dead bot back through a portal, full health, deploying.
func (w *Worker) respawn(b *botTank) {
	tile := w.planet.Tiles[w.planet.Portals[w.rng.Intn(len(w.planet.Portals))]]
	b.theta = wrapAngle(tile.Theta + (w.rng.Float64()-0.5)*spawnScatter)
	b.phi = clampColat(tile.Phi + (w.rng.Float64()-0.5)*spawnScatter)
	b.heading = w.rng.Float64()*2*math.Pi - math.Pi
	b.speed = 0
	b.hp = w.cfg.Bots.BotMaxHP
	b.state = botStateDeploying
	b.stateTicks = w.ticksFor(deploySeconds)
	b.target = -1
}

// retarget picks a new goal cluster when the bot has none or already holds
// its goal. Sponsor-held clusters cannot flip, so they are never goals.
func (w *Worker) retarget(b *botTank) {
	if b.target >= 0 && w.clusterOwner[b.target] != string(b.faction) {
		return
	}
	bestID := -1
	bestScore := math.MaxFloat64
	for _, c := range w.planet.Clusters {
		owner := w.clusterOwner[c.ID]
		if owner == string(b.faction) || strings.HasPrefix(owner, game.SponsorOwnerPrefix) {
			continue
		}
		d := surfaceDist(b.theta, b.phi, c.Theta, c.Phi, w.planet.Radius)
		if score := d * (0.75 + w.rng.Float64()*0.5); score < bestScore {
			bestID, bestScore = c.ID, score
		}
	}
	if bestID < 0 {
		bestID = w.rng.Intn(len(w.planet.Clusters))
	}
	b.target = bestID
}

// navigate returns the desired heading and whether the bot should keep
// moving. Inside the goal cluster the bot parks to accrue presence.
func (w *Worker) navigate(b *botTank) (float64, bool) {
	tile := w.planet.TileAt(b.theta, b.phi)
	if w.planet.Tiles[tile].Cluster == b.target {
		return 0, false
	}
	cluster := w.planet.Clusters[b.target]
	field := w.flow.GetOrCreate(b.target, cluster.Tiles)
	goalTheta, goalPhi := cluster.Theta, cluster.Phi
	if hop := field.NextHop(tile); hop >= 0 {
		goalTheta, goalPhi = w.planet.Tiles[hop].Theta, w.planet.Tiles[hop].Phi
	}
	return headingBetween(b.theta, b.phi, goalTheta, goalPhi, w.planet.Radius), true
}

// engage fires at the nearest live enemy human in cannon range. Shot ids are
// taken from the band above the boundary the main loop supplied.
func (w *Worker) engage(b *botTank, humans []game.HumanState) (game.BotShot, bool) {
	if b.cooldown > 0 {
		b.cooldown--
		return game.BotShot{}, false
	}
	rangeMax := w.cfg.Bots.BotFireRange
	targetIdx := -1
	targetDist := rangeMax
	for _, idx := range w.grid.QueryRadius(b.theta, b.phi, rangeMax/w.planet.Radius) {
		h := &humans[idx]
		if h.IsDead || h.Faction == b.faction {
			continue
		}
		if d := surfaceDist(b.theta, b.phi, h.Theta, h.Phi, w.planet.Radius); d < targetDist {
			targetIdx, targetDist = int(idx), d
		}
	}
	if targetIdx < 0 {
		return game.BotShot{}, false
	}

	h := humans[targetIdx]
	aim := headingBetween(b.theta, b.phi, h.Theta, h.Phi, w.planet.Radius)
	aim = wrapAngle(aim + (w.rng.Float64()-0.5)*aimSpread)
	power := targetDist / rangeMax * 6
	if power > 10 {
		power = 10
	}
	muzzle := w.cfg.Projectile.HullHalfLength + 0.5
	theta, phi := sphereStep(b.theta, b.phi, aim, muzzle, w.planet.Radius)

	b.cooldown = w.ticksFor(fireInterval) + w.rng.Intn(w.ticksFor(fireJitter)+1)
	b.heading = aim

	shot := game.BotShot{
		ID:      w.nextShotID,
		BotID:   b.id,
		Faction: b.faction,
		Theta:   theta,
		Phi:     phi,
		Heading: aim,
		Power:   power,
	}
	w.nextShotID++
	return shot, true
}

// separate nudges overlapping active bots apart. Bot counts are small, so
// the pairwise scan costs less than maintaining a sweep structure here.
func (w *Worker) separate() {
	for i := 0; i < len(w.bots); i++ {
		a := w.bots[i]
		if a.state != botStateActive {
			continue
		}
		for j := i + 1; j < len(w.bots); j++ {
			c := w.bots[j]
			if c.state != botStateActive {
				continue
			}
			east, north := tangentOffset(a.theta, a.phi, c.theta, c.phi, w.planet.Radius)
			dist := math.Hypot(east, north)
			if dist == 0 || dist >= botSeparation {
				continue
			}
			push := (botSeparation - dist) / 2
			ux, uy := east/dist, north/dist
			a.theta, a.phi = nudgeBot(a.theta, a.phi, -ux*push, -uy*push, w.planet.Radius)
			c.theta, c.phi = nudgeBot(c.theta, c.phi, ux*push, uy*push, w.planet.Radius)
		}
	}
}

func nudgeBot(theta, phi, east, north, radius float64) (float64, float64) {
	phi = clampColat(phi - north/radius)
	theta = wrapAngle(theta + east/(radius*math.Sin(phi)))
	return theta, phi
}
