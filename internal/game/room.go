package game

import (
	"log"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"tankwar/internal/config"
	"tankwar/internal/game/spatial"
	"tankwar/internal/world"
)

// Broadcaster fans room messages out to connected clients. Implementations
// must never block the caller; the tick loop cannot wait on sockets.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
	SendTo(playerID string, event string, payload interface{})
}

// ProfileRecord is the persisted slice of a player.
type ProfileRecord struct {
	PlayerID    string
	Name        string
	Faction     string
	Crypto      int64
	TotalCrypto int64
	Level       int
	Kills       int
	Deaths      int
	Badges      []string
	Title       string
	UpdatedAt   time.Time
}

// ProfileSink receives fire-and-forget profile writes; implementations
// debounce and never block.
type ProfileSink interface {
	Enqueue(rec ProfileRecord)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, interface{})      {}
func (nopBroadcaster) SendTo(string, string, interface{}) {}

type nopSink struct{}

func (nopSink) Enqueue(ProfileRecord) {}

// Ops are queued by connection goroutines and applied at the next tick
// boundary. The tick loop is the only writer of world state.
type opKind uint8

const (
	opJoin opKind = iota + 1
	opLeave
	opInput
	opFire
	opPortal
	opFaction
	opTip
	opProfile
	opPing
	opDraw
	opSponsors
)

type joinRequest struct {
	id      string
	name    string
	faction Faction
	profile *ProfileRecord
}

type profileUpdate struct {
	badges      []string
	title       string
	totalCrypto int64
}

type drawRequest struct {
	points [][3]float64
	done   bool
}

type sponsorSync struct {
	infos    []SponsorInfo
	clusters map[int]string
}

type roomOp struct {
	kind     opKind
	playerID string

	input   InputCommand
	power   float64
	turret  float64
	tile    int
	faction Faction
	toID    string
	amount  int64
	x, y, z float64

	join     *joinRequest
	profile  *profileUpdate
	draw     *drawRequest
	sponsors *sponsorSync
}

type fireRequest struct {
	playerID string
	power    float64
	turret   float64
}

const (
	opQueueCap = 4096

	// botShotReserve is the projectile id band handed to the bot worker
	// every tick. The main loop skips the whole band, so ids stay unique
	// even when worker outputs arrive late or coalesced.
	botShotReserve = 256

	commanderSyncSecs = 10.0
	tankSeparation    = 6.0  // world units between tank centers
	portalClearance   = 10.0 // world units a deploy needs free
)

// Room is the authoritative game world: one tick loop owns every mutable
// structure in here. Connection goroutines talk to it through the op queue,
// observers through the snapshot pool.
type Room struct {
	cfg     config.AppConfig
	phys    Physics
	hull    Hull
	botProj config.ProjectileConfig // projectile constants with bot base damage

	planet    *world.Planet
	worldDesc *world.Description

	capture     *CaptureEngine
	economy     *EconomyEngine
	commanders  *CommanderTracker
	leaderboard *Leaderboard
	eventLog    *EventLog

	broadcaster Broadcaster
	bridge      BotBridge
	profiles    ProfileSink

	ops   *spatial.LockFreeQueue[roomOp]
	opBuf []roomOp

	players map[string]*Player
	order   []*Player // join order, drives deterministic iteration
	alive   []*Player // rebuilt each tick

	projectiles  []*Projectile
	pendingFires []fireRequest
	nextShotID   uint64

	humanGrid *spatial.SphereGrid
	sap       *spatial.SweepAndPrune
	sapPhis   []float32

	// Last consumed bot worker output. Maps are replaced whole on consume,
	// never mutated, so broadcast marshaling can alias them safely.
	botIDs    []string
	botBuf    []float32
	botStates map[string]TankWire
	botHP     map[string]int
	missedBot uint64

	sponsors []SponsorInfo

	planetRotation float64
	clock          float64
	tick           uint64
	lastTickDur    time.Duration
	rng            *rand.Rand
	rosterDirty    bool

	nextCryptoAt  float64
	nextHoldingAt float64
	nextCmdSyncAt float64

	progressCache map[int]CaptureProgress

	pool *SnapshotPool

	running  atomic.Bool
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRoom wires the room against a generated planet. The broadcaster,
// bridge and profile sink may be nil (tests, bot-less operation); nil
// collaborators are replaced with no-ops or skipped.
func NewRoom(cfg config.AppConfig, planet *world.Planet, b Broadcaster, bridge BotBridge, profiles ProfileSink) *Room {
	if b == nil {
		b = nopBroadcaster{}
	}
	if profiles == nil {
		profiles = nopSink{}
	}
	maxTanks := cfg.Limits.MaxPlayers + cfg.Bots.TargetTanks

	r := &Room{
		cfg: cfg,
		phys: Physics{
			Accel:    cfg.Game.TankAccel,
			MaxSpeed: cfg.Game.TankMaxSpeed,
			TurnRate: cfg.Game.TankTurnRate,
			Friction: cfg.Game.TankFriction,
			TickRate: float64(cfg.Game.TickRate),
			MaxDT:    cfg.Game.MaxInputDT,
			Radius:   planet.Radius,
		},
		hull:          Hull{HalfLength: cfg.Projectile.HullHalfLength, HalfWidth: cfg.Projectile.HullHalfWidth},
		planet:        planet,
		worldDesc:     planet.Description(),
		capture:       NewCaptureEngine(planet, cfg.Capture),
		economy:       NewEconomyEngine(cfg.Crypto),
		commanders:    NewCommanderTracker(),
		leaderboard:   NewLeaderboard(),
		eventLog:      NewEventLog(cfg.Store.EventLogPath),
		broadcaster:   b,
		bridge:        bridge,
		profiles:      profiles,
		ops:           spatial.NewLockFreeQueue[roomOp](opQueueCap),
		opBuf:         make([]roomOp, opQueueCap),
		players:       make(map[string]*Player),
		order:         make([]*Player, 0, cfg.Limits.MaxPlayers),
		alive:         make([]*Player, 0, cfg.Limits.MaxPlayers),
		projectiles:   make([]*Projectile, 0, cfg.Limits.MaxProjectiles),
		pendingFires:  make([]fireRequest, 0, 32),
		nextShotID:    1,
		humanGrid:     spatial.NewSphereGrid(64, 32, maxTanks),
		sap:           spatial.NewSweepAndPrune(cfg.Limits.MaxPlayers),
		sapPhis:       make([]float32, 0, cfg.Limits.MaxPlayers),
		botStates:     make(map[string]TankWire),
		botHP:         make(map[string]int),
		rng:           rand.New(rand.NewSource(cfg.World.WorldGenSeed)),
		progressCache: make(map[int]CaptureProgress),
		pool:          NewSnapshotPool(cfg.Limits.MaxPlayers),
		stopChan:      make(chan struct{}),
	}
	r.botProj = cfg.Projectile
	r.botProj.BaseDamage = cfg.Bots.BotBaseDamage
	r.nextCryptoAt = cfg.Crypto.BroadcastEvery
	r.nextHoldingAt = cfg.Crypto.HoldingInterval
	r.nextCmdSyncAt = commanderSyncSecs
	return r
}

// Start begins the tick loop.
func (r *Room) Start() {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	if err := r.eventLog.Start(); err != nil {
		log.Printf("⚠️ Event log disabled: %v", err)
	}

	r.ticker = time.NewTicker(time.Second / time.Duration(r.cfg.Game.TickRate))
	dt := 1.0 / float64(r.cfg.Game.TickRate)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.ticker.C:
				r.step(dt)
			case <-r.stopChan:
				return
			}
		}
	}()

	// Periodic health line on a side channel; reads only published snapshots.
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for range channerics.NewTicker(r.stopChan, time.Minute) {
			snap := r.pool.AcquireRead()
			log.Printf("📊 tick=%d players=%d bots=%d projectiles=%d missedBotTicks=%d",
				snap.TickNumber, snap.PlayerCount, snap.BotCount, snap.ProjectileCount, snap.MissedBotTicks)
		}
	}()

	log.Printf("🎮 Game room started at %d TPS on a %d-tile planet", r.cfg.Game.TickRate, len(r.planet.Tiles))
}

// Stop halts the loop, the bot worker and the audit log.
func (r *Room) Stop() {
	r.stopOnce.Do(func() {
		r.running.Store(false)
		if r.ticker != nil {
			r.ticker.Stop()
		}
		close(r.stopChan)
		r.wg.Wait()
		if r.bridge != nil {
			r.bridge.Stop()
		}
		r.eventLog.Stop()
		log.Println("🛑 Game room stopped")
	})
}

// step advances the world one tick. Ordering is load-bearing: inputs,
// motion, bot pipeline, projectiles, capture, economy, broadcast. Crypto
// awarded for a hit must land in the same tick the hit resolves.
func (r *Room) step(dt float64) {
	start := time.Now()
	r.tick++
	r.clock += dt
	r.planetRotation = wrapAngle(r.planetRotation + r.cfg.Game.PlanetSpinRate*dt)

	r.drainOps()
	r.integrateMotion(dt)
	r.consumeBotOutput()
	r.spawnPendingFires()
	r.dispatchBotInput(dt)
	r.advanceProjectiles(dt)
	r.advanceCapture(dt)
	r.runEconomy()

	if err := r.capture.CheckInvariants(); err != nil {
		log.Fatalf("💥 Capture invariant violated at tick %d: %v", r.tick, err)
	}

	r.broadcastState()
	r.lastTickDur = time.Since(start)
	r.publishSnapshot()

	r.eventLog.EmitSimple(EventTypeTick, r.tick, "", TickPayload{
		PlayerCount:     len(r.players),
		BotCount:        len(r.botIDs),
		ProjectileCount: len(r.projectiles),
		DeltaTimeNs:     int64(dt * 1e9),
	})
}

// ---- op queue ----

func (r *Room) enqueue(op roomOp) {
	if !r.ops.TryPush(op) {
		log.Printf("⚠️ Room op queue full, dropping op kind=%d player=%s", op.kind, op.playerID)
	}
}

// Join registers a connection's player. The welcome packet is emitted at the
// tick that processes the join, before any broadcast can reach the client.
func (r *Room) Join(id, name string, faction Faction, profile *ProfileRecord) {
	r.enqueue(roomOp{kind: opJoin, playerID: id, join: &joinRequest{id: id, name: name, faction: faction, profile: profile}})
}

// Leave removes a player at the next tick boundary, never mid-tick.
func (r *Room) Leave(id string) {
	r.enqueue(roomOp{kind: opLeave, playerID: id})
}

// SubmitInput queues one client input frame.
func (r *Room) SubmitInput(id string, cmd InputCommand) {
	r.enqueue(roomOp{kind: opInput, playerID: id, input: cmd})
}

// Fire queues a cannon shot request.
func (r *Room) Fire(id string, power, turretAngle float64) {
	r.enqueue(roomOp{kind: opFire, playerID: id, power: power, turret: turretAngle})
}

// ChoosePortal queues a deploy request onto a portal tile.
func (r *Room) ChoosePortal(id string, tile int) {
	r.enqueue(roomOp{kind: opPortal, playerID: id, tile: tile})
}

// ChangeFaction queues a faction switch; only undeployed tanks may switch.
func (r *Room) ChangeFaction(id string, f Faction) {
	r.enqueue(roomOp{kind: opFaction, playerID: id, faction: f})
}

// Tip queues a commander tip transfer.
func (r *Room) Tip(fromID, toID string, amount int64) {
	r.enqueue(roomOp{kind: opTip, playerID: fromID, toID: toID, amount: amount})
}

// UpdateProfile queues client-provided cosmetic profile fields.
func (r *Room) UpdateProfile(id string, badges []string, title string, totalCrypto int64) {
	r.enqueue(roomOp{kind: opProfile, playerID: id, profile: &profileUpdate{badges: badges, title: title, totalCrypto: totalCrypto}})
}

// CommanderPing queues a commander map ping for relay.
func (r *Room) CommanderPing(id string, x, y, z float64) {
	r.enqueue(roomOp{kind: opPing, playerID: id, x: x, y: y, z: z})
}

// CommanderDraw queues a commander drawing fragment for relay.
func (r *Room) CommanderDraw(id string, points [][3]float64, done bool) {
	r.enqueue(roomOp{kind: opDraw, playerID: id, draw: &drawRequest{points: points, done: done}})
}

// ReloadSponsors swaps in a new sponsor view at the next tick boundary and
// rebroadcasts it. Called by the sponsor store's reload hook.
func (r *Room) ReloadSponsors(infos []SponsorInfo, clusters map[int]string) {
	r.enqueue(roomOp{kind: opSponsors, sponsors: &sponsorSync{infos: infos, clusters: clusters}})
}

func (r *Room) drainOps() {
	n := r.ops.DrainTo(r.opBuf)
	for i := 0; i < n; i++ {
		op := &r.opBuf[i]
		switch op.kind {
		case opJoin:
			r.handleJoin(op.join)
		case opLeave:
			r.handleLeave(op.playerID)
		case opInput:
			if p, ok := r.players[op.playerID]; ok {
				p.pushInput(op.input)
			}
		case opFire:
			r.pendingFires = append(r.pendingFires, fireRequest{playerID: op.playerID, power: op.power, turret: op.turret})
		case opPortal:
			r.handlePortal(op.playerID, op.tile)
		case opFaction:
			r.handleFactionChange(op.playerID, op.faction)
		case opTip:
			r.handleTip(op.playerID, op.toID, op.amount)
		case opProfile:
			r.handleProfile(op.playerID, op.profile)
		case opPing:
			r.handlePing(op.playerID, op.x, op.y, op.z)
		case opDraw:
			r.handleDraw(op.playerID, op.draw)
		case opSponsors:
			r.handleSponsorSync(op.sponsors)
		}
		r.opBuf[i] = roomOp{}
	}
}

// ---- join / leave ----

func (r *Room) handleJoin(req *joinRequest) {
	if req == nil || req.id == "" {
		return
	}
	if p, exists := r.players[req.id]; exists {
		// Reconnect of a live player: the tank keeps fighting through a
		// socket swap, the fresh connection just needs its welcome again.
		r.broadcaster.SendTo(p.ID, MsgWelcome, r.welcomeFor(p))
		return
	}
	if len(r.players) >= r.cfg.Limits.MaxPlayers {
		r.broadcaster.SendTo(req.id, MsgJoinFailed, DeniedMessage{Reason: "server full"})
		return
	}

	faction := req.faction
	if !faction.Valid() {
		faction = r.leastPopulatedFaction()
	}
	p := NewPlayer(req.id, req.name, faction, PlayerOptions{
		MaxHP:    r.cfg.Game.TankMaxHP,
		QueueCap: r.cfg.Game.InputQueueCap,
	})
	if rec := req.profile; rec != nil {
		p.Crypto = rec.Crypto
		p.TotalCrypto = rec.TotalCrypto
		p.Kills = rec.Kills
		p.Deaths = rec.Deaths
		p.Badges = rec.Badges
		p.Title = rec.Title
		p.OnLoan = p.Crypto < 0
	}
	r.economy.RecomputeLevel(p)

	r.players[p.ID] = p
	r.order = append(r.order, p)
	r.leaderboard.UpdatePlayer(p)

	// Recompute before building the welcome so it carries the new roster,
	// but hold the commander-update broadcast until after the welcome: the
	// welcome must be the first message the joining connection sees.
	changed := r.commanders.Recompute(r.players)
	r.broadcaster.SendTo(p.ID, MsgWelcome, r.welcomeFor(p))
	r.broadcaster.Broadcast(MsgPlayerJoined, JoinedMessage{ID: p.ID, Name: p.Name, Faction: p.Faction, Level: p.Level})
	if len(changed) > 0 {
		r.broadcaster.Broadcast(MsgCommanderUpdate, r.commanders.Snapshot(r.players))
	}

	if r.bridge != nil {
		r.bridge.Command(BotCommand{Kind: BotCommandDespawn, Faction: p.Faction})
	}
	r.eventLog.EmitSimple(EventTypePlayerJoin, r.tick, p.ID, PlayerBrief{ID: p.ID, Name: p.Name, Faction: p.Faction, Level: p.Level})
	log.Printf("👋 %s joined as %s [%d/%d]", p.Name, p.Faction, len(r.players), r.cfg.Limits.MaxPlayers)
}

func (r *Room) handleLeave(id string) {
	p, ok := r.players[id]
	if !ok {
		return
	}
	delete(r.players, id)
	for i, q := range r.order {
		if q == p {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.leaderboard.RemovePlayer(id)
	r.profiles.Enqueue(r.recordOf(p))

	// Disconnect while waiting for a portal is silent.
	if p.Deploy != DeployWaiting {
		r.broadcaster.Broadcast(MsgPlayerLeft, LeftMessage{ID: id})
	}
	if r.bridge != nil {
		r.bridge.Command(BotCommand{Kind: BotCommandSpawn, Faction: p.Faction})
	}
	r.emitCommanderChanges()
	r.eventLog.EmitSimple(EventTypePlayerLeave, r.tick, id, nil)
	log.Printf("👋 %s left [%d/%d]", p.Name, len(r.players), r.cfg.Limits.MaxPlayers)
}

func (r *Room) welcomeFor(p *Player) WelcomePacket {
	briefs := make([]PlayerBrief, 0, len(r.order))
	for _, q := range r.order {
		if q.ID == p.ID {
			continue
		}
		briefs = append(briefs, PlayerBrief{ID: q.ID, Name: q.Name, Faction: q.Faction, Level: q.Level, Deploy: q.Deploy})
	}
	return WelcomePacket{
		PlayerID:    p.ID,
		Name:        p.Name,
		Faction:     p.Faction,
		TickRate:    r.cfg.Game.TickRate,
		Crypto:      p.Crypto,
		TotalCrypto: p.TotalCrypto,
		Level:       p.Level,
		World:       r.worldDesc,
		Capture:     r.capture.Snapshot(),
		Commanders:  r.commanders.Snapshot(r.players),
		Players:     briefs,
		Sponsors:    r.sponsors,
	}
}

func (r *Room) leastPopulatedFaction() Faction {
	var counts [3]int
	for _, p := range r.players {
		if fi := p.Faction.Index(); fi >= 0 {
			counts[fi]++
		}
	}
	best := 0
	for fi := 1; fi < len(counts); fi++ {
		if counts[fi] < counts[best] {
			best = fi
		}
	}
	return Factions[best]
}

// ---- portal / faction / tip / profile / commander relays ----

func (r *Room) handlePortal(id string, tile int) {
	p, ok := r.players[id]
	if !ok {
		return
	}
	if p.Deploy == DeployAlive {
		r.broadcaster.SendTo(id, MsgPortalFailed, DeniedMessage{Reason: "already deployed"})
		return
	}
	if p.Deploy == DeployDead && r.tick < p.EligibleAtTick {
		r.broadcaster.SendTo(id, MsgPortalFailed, DeniedMessage{Reason: "respawn cooldown"})
		return
	}
	if !r.planet.IsPortal(tile) {
		r.broadcaster.SendTo(id, MsgPortalFailed, DeniedMessage{Reason: "no such portal"})
		return
	}
	t := r.planet.Tiles[tile]
	if !r.portalClear(t.Theta, t.Phi) {
		r.broadcaster.SendTo(id, MsgPortalFailed, DeniedMessage{Reason: "portal occupied"})
		return
	}

	heading := wrapAngle(r.rng.Float64()*2*math.Pi - math.Pi)
	p.PortalTile = tile
	p.DeployAt(t.Theta, t.Phi, heading)

	r.broadcaster.SendTo(id, MsgPortalConfirmed, PortalConfirm{Tile: tile, Theta: t.Theta, Phi: t.Phi, Heading: heading})
	r.broadcaster.Broadcast(MsgPlayerActivated, ActivatedMessage{ID: id, Theta: t.Theta, Phi: t.Phi, Heading: heading, Faction: p.Faction})
	r.eventLog.EmitSimple(EventTypeDeploy, r.tick, id, DeployPayload{PlayerID: id, Tile: tile, Theta: t.Theta, Phi: t.Phi})
}

func (r *Room) portalClear(theta, phi float64) bool {
	for _, q := range r.alive {
		if surfaceDistance(theta, phi, q.Theta, q.Phi, r.planet.Radius) < portalClearance {
			return false
		}
	}
	return true
}

func (r *Room) handleFactionChange(id string, f Faction) {
	p, ok := r.players[id]
	if !ok {
		return
	}
	if !f.Valid() {
		r.broadcaster.SendTo(id, MsgFactionChangeFailed, DeniedMessage{Reason: "unknown faction"})
		return
	}
	if p.Deploy == DeployAlive {
		r.broadcaster.SendTo(id, MsgFactionChangeFailed, DeniedMessage{Reason: "cannot switch while deployed"})
		return
	}
	if p.Faction == f {
		r.broadcaster.SendTo(id, MsgFactionChangeFailed, DeniedMessage{Reason: "already in " + string(f)})
		return
	}

	old := p.Faction
	p.Faction = f
	r.leaderboard.UpdatePlayer(p)
	r.emitCommanderChanges()
	r.broadcaster.Broadcast(MsgPlayerFactionChanged, FactionChangedMessage{ID: id, Faction: f})
	r.eventLog.EmitSimple(EventTypeFactionChange, r.tick, id, FactionChangePayload{PlayerID: id, From: old, To: f})
}

func (r *Room) handleTip(fromID, toID string, amount int64) {
	from, ok := r.players[fromID]
	if !ok {
		return
	}
	to, ok := r.players[toID]
	if !ok {
		r.broadcaster.SendTo(fromID, MsgTipFailed, DeniedMessage{Reason: "no such player"})
		return
	}
	if !r.commanders.IsCommander(fromID) {
		r.broadcaster.SendTo(fromID, MsgTipFailed, DeniedMessage{Reason: "only commanders tip"})
		return
	}
	if from.Faction != to.Faction {
		r.broadcaster.SendTo(fromID, MsgTipFailed, DeniedMessage{Reason: "different faction"})
		return
	}
	if err := r.economy.Tip(from, to, amount, r.tick, r.cfg.Game.TickRate); err != nil {
		r.broadcaster.SendTo(fromID, MsgTipFailed, DeniedMessage{Reason: err.Error()})
		return
	}
	msg := TipMessage{FromID: fromID, ToID: toID, Amount: amount}
	r.broadcaster.SendTo(fromID, MsgTipConfirmed, msg)
	r.broadcaster.SendTo(toID, MsgTipReceived, msg)
	r.eventLog.EmitSimple(EventTypeTip, r.tick, fromID, TipPayload{FromID: fromID, ToID: toID, Amount: amount})
}

func (r *Room) handleProfile(id string, up *profileUpdate) {
	p, ok := r.players[id]
	if !ok || up == nil {
		return
	}
	p.Badges = up.badges
	p.Title = up.title
	// Legacy clients carry earnings locally; accept them only as a seed for
	// fresh records. The profile store stays authoritative afterwards.
	if p.TotalCrypto == 0 && up.totalCrypto > 0 {
		p.TotalCrypto = up.totalCrypto
		r.economy.RecomputeLevel(p)
		r.leaderboard.UpdatePlayer(p)
		r.rosterDirty = true
	}
}

func (r *Room) handlePing(id string, x, y, z float64) {
	p, ok := r.players[id]
	if !ok || !r.commanders.IsCommander(id) {
		return
	}
	r.broadcaster.Broadcast(MsgCommanderPingRelay, CommanderPingMessage{PlayerID: id, Faction: p.Faction, X: x, Y: y, Z: z})
}

func (r *Room) handleDraw(id string, d *drawRequest) {
	p, ok := r.players[id]
	if !ok || d == nil || !r.commanders.IsCommander(id) {
		return
	}
	r.broadcaster.Broadcast(MsgCommanderDrawing, CommanderDrawMessage{PlayerID: id, Faction: p.Faction, Points: d.points, Done: d.done})
}

func (r *Room) handleSponsorSync(s *sponsorSync) {
	if s == nil {
		return
	}
	r.sponsors = s.infos
	for ci := 0; ci < r.capture.ClusterCount(); ci++ {
		want := s.clusters[ci]
		if cs := r.capture.Cluster(ci); cs.Cluster.SponsorID != want {
			r.capture.SetSponsor(ci, want)
		}
	}
	r.broadcaster.Broadcast(MsgSponsorsReloaded, s.infos)
	log.Printf("🏷️ Sponsors reloaded: %d entries", len(s.infos))
}

// ---- motion ----

func (r *Room) integrateMotion(dt float64) {
	r.alive = r.alive[:0]
	for _, p := range r.order {
		applied := p.drainInputs(r.phys)
		if applied == 0 && p.Alive() && p.Speed != 0 {
			// No input frames this tick: coast under friction so a silent
			// client's tank still behaves like the predicted one.
			p.applyInput(InputCommand{Seq: p.LastInputSeq, TurretAngle: p.TurretAngle, DT: dt}, r.phys)
		}
		if p.Alive() {
			r.alive = append(r.alive, p)
		}
	}

	r.separateTanks()

	// Hit tests run against post-motion positions.
	r.humanGrid.Clear()
	for i, p := range r.alive {
		r.humanGrid.Insert(uint32(i), p.Theta, p.Phi)
	}
}

func (r *Room) separateTanks() {
	if len(r.alive) < 2 {
		return
	}
	r.sapPhis = r.sapPhis[:0]
	for _, p := range r.alive {
		r.sapPhis = append(r.sapPhis, float32(p.Phi))
	}
	pairs := r.sap.Update(r.sapPhis, float32(tankSeparation/r.planet.Radius))
	for _, pair := range pairs {
		a, b := r.alive[pair.A], r.alive[pair.B]
		east, north := tangentOffset(a.Theta, a.Phi, b.Theta, b.Phi, r.planet.Radius)
		dist := math.Hypot(east, north)
		if dist == 0 || dist >= tankSeparation {
			continue
		}
		push := (tankSeparation - dist) / 2
		ne, nn := east/dist, north/dist
		a.Theta, a.Phi = nudge(a.Theta, a.Phi, -ne*push, -nn*push, r.planet.Radius)
		b.Theta, b.Phi = nudge(b.Theta, b.Phi, ne*push, nn*push, r.planet.Radius)
	}
}

// nudge displaces a surface point by a tangent-plane offset in world units.
func nudge(theta, phi, east, north, radius float64) (float64, float64) {
	phi = clampPhi(phi - north/radius)
	theta = wrapAngle(theta + east/(radius*math.Sin(phi)))
	return theta, phi
}

// ---- bot pipeline ----

func (r *Room) consumeBotOutput() {
	if r.bridge == nil {
		return
	}
	out, ok := r.bridge.Collect()
	if !ok {
		r.missedBot++
		if r.cfg.Bots.MissedTickLog > 0 && r.missedBot%uint64(r.cfg.Bots.MissedTickLog) == 0 {
			log.Printf("⚠️ Bot worker missed %d tick outputs", r.missedBot)
		}
		return
	}

	r.botIDs = out.BotIDs
	r.botBuf = out.Positions
	if out.BotStates != nil {
		r.botStates = out.BotStates
		for k := range r.botHP {
			delete(r.botHP, k)
		}
		for id, st := range out.BotStates {
			r.botHP[id] = st.HP
		}
	}
	if out.NextProjectileID > r.nextShotID {
		r.nextShotID = out.NextProjectileID
	}

	for _, shot := range out.NewProjectiles {
		if len(r.projectiles) >= r.cfg.Limits.MaxProjectiles {
			break
		}
		pr := NewProjectile(shot.ID, shot.BotID, shot.Faction, true, shot.Theta, shot.Phi, shot.Heading, shot.Power, r.botProj)
		r.projectiles = append(r.projectiles, pr)
		r.broadcaster.Broadcast(MsgPlayerFired, FiredMessage{
			ID: shot.ID, OwnerID: shot.BotID, Faction: shot.Faction,
			Theta: shot.Theta, Phi: shot.Phi, Heading: shot.Heading,
			Speed: pr.Speed, Power: shot.Power,
		})
	}

	for _, ev := range out.Events {
		switch ev.Kind {
		case BotEventDeath:
			r.handleBotDeath(ev)
		case BotEventDamage:
			if ev.HP >= 0 {
				r.botHP[ev.BotID] = ev.HP
			}
		case BotEventError:
			log.Printf("⚠️ Bot worker error: %s", ev.Message)
		}
	}
}

func (r *Room) handleBotDeath(ev BotEvent) {
	var killerFaction Faction
	if killer, ok := r.players[ev.KillerID]; ok {
		killer.Kills++
		r.economy.AwardKill(killer, false)
		r.leaderboard.UpdatePlayer(killer)
		killerFaction = killer.Faction
		r.rosterDirty = true
	}
	r.broadcaster.Broadcast(MsgPlayerKilled, KilledMessage{VictimID: ev.BotID, KillerID: ev.KillerID, KillerFaction: killerFaction})
	r.eventLog.EmitSimple(EventTypeKill, r.tick, ev.KillerID, KillPayload{KillerID: ev.KillerID, VictimID: ev.BotID, KillerFaction: killerFaction})
}

func (r *Room) dispatchBotInput(dt float64) {
	if r.bridge == nil {
		return
	}
	in := TickInput{
		Tick:             r.tick,
		DT:               dt,
		PlanetRotation:   r.planetRotation,
		NextProjectileID: r.nextShotID,
		Humans:           make([]HumanState, 0, len(r.order)),
	}
	// The worker allocates shot ids from this band; skipping it keeps ids
	// unique even if the output arrives ticks later.
	r.nextShotID += botShotReserve

	for _, p := range r.order {
		if p.Deploy == DeployWaiting {
			continue
		}
		in.Humans = append(in.Humans, HumanState{
			ID: p.ID, Theta: p.Theta, Phi: p.Phi, Heading: p.Heading,
			Speed: p.Speed, Faction: p.Faction, IsDead: p.Deploy == DeployDead,
		})
	}
	if r.cfg.Capture.SnapshotEvery > 0 && r.tick%uint64(r.cfg.Capture.SnapshotEvery) == 0 {
		in.Capture = r.capture.Snapshot()
	}
	r.bridge.Dispatch(in)
}

// ---- projectiles ----

func (r *Room) spawnPendingFires() {
	for _, req := range r.pendingFires {
		r.fire(req)
	}
	r.pendingFires = r.pendingFires[:0]
}

func (r *Room) fire(req fireRequest) {
	p, ok := r.players[req.playerID]
	if !ok {
		return
	}
	if !p.Alive() {
		r.broadcaster.SendTo(p.ID, MsgFireFailed, DeniedMessage{Reason: "not deployed"})
		return
	}
	// Resource caps drop silently; they are not protocol errors.
	if p.ShotsInFlight >= r.cfg.Limits.MaxPerOwnerShots {
		return
	}
	if len(r.projectiles) >= r.cfg.Limits.MaxProjectiles {
		return
	}
	cost, err := r.economy.TrySpendFire(p, req.power)
	if err != nil {
		r.broadcaster.SendTo(p.ID, MsgFireFailed, DeniedMessage{Reason: "insufficient crypto"})
		return
	}

	heading := wrapAngle(req.turret)
	theta, phi := advanceOnSphere(p.Theta, p.Phi, heading, r.hull.HalfLength+0.5, r.planet.Radius)
	id := r.nextShotID
	r.nextShotID++

	pr := NewProjectile(id, p.ID, p.Faction, false, theta, phi, heading, req.power, r.cfg.Projectile)
	r.projectiles = append(r.projectiles, pr)
	p.ShotsInFlight++
	p.TurretAngle = heading

	r.broadcaster.Broadcast(MsgPlayerFired, FiredMessage{
		ID: id, OwnerID: p.ID, Faction: p.Faction,
		Theta: theta, Phi: phi, Heading: heading,
		Speed: pr.Speed, Power: pr.Power,
	})
	r.eventLog.EmitSimple(EventTypeFire, r.tick, p.ID, FirePayload{PlayerID: p.ID, ProjectileID: id, Power: pr.Power, Cost: cost})
}

func (r *Room) advanceProjectiles(dt float64) {
	if len(r.projectiles) == 0 {
		return
	}
	kept := r.projectiles[:0]
	for _, pr := range r.projectiles {
		pr.Advance(dt, r.planet.Radius)
		if r.resolveHit(pr) || pr.Expired(r.cfg.Projectile.MaxLifetime) {
			r.releaseShot(pr)
			continue
		}
		kept = append(kept, pr)
	}
	for i := len(kept); i < len(r.projectiles); i++ {
		r.projectiles[i] = nil
	}
	r.projectiles = kept
}

func (r *Room) releaseShot(pr *Projectile) {
	if pr.FromBot {
		return
	}
	if owner, ok := r.players[pr.OwnerID]; ok && owner.ShotsInFlight > 0 {
		owner.ShotsInFlight--
	}
}

func (r *Room) resolveHit(pr *Projectile) bool {
	midTheta := pr.prevTheta + wrapAngle(pr.Theta-pr.prevTheta)/2
	midPhi := (pr.prevPhi + pr.Phi) / 2
	reach := surfaceDistance(pr.prevTheta, pr.prevPhi, pr.Theta, pr.Phi, r.planet.Radius)/2 + r.hull.BoundRadius() + 1

	// Humans: spatial hash over the chord's swept area.
	for _, idx := range r.humanGrid.QueryRadius(midTheta, midPhi, reach/r.planet.Radius) {
		target := r.alive[idx]
		if target.ID == pr.OwnerID || target.Faction == pr.Faction || !target.Alive() {
			continue
		}
		if !pr.HitsTank(target.Theta, target.Phi, target.Heading, r.hull, r.planet.Radius) {
			continue
		}
		r.applyHumanHit(pr, target)
		return true
	}

	// Bot shots only threaten humans. Human shots fall through to the
	// packed bot buffer below; the damage itself reflows through the
	// worker, which owns bot HP.
	if pr.FromBot {
		return false
	}
	for bi, id := range r.botIDs {
		base := bi * BotStride
		if base+BotStride > len(r.botBuf) {
			break
		}
		flags := uint32(r.botBuf[base+4])
		if flags&(BotFlagDead|BotFlagDeploying) != 0 {
			continue
		}
		if BotFlagFaction(flags) == pr.Faction {
			continue
		}
		bt := float64(r.botBuf[base])
		bp := float64(r.botBuf[base+1])
		bh := float64(r.botBuf[base+2])
		if surfaceDistance(midTheta, midPhi, bt, bp, r.planet.Radius) > reach {
			continue
		}
		if !pr.HitsTank(bt, bp, bh, r.hull, r.planet.Radius) {
			continue
		}
		r.applyBotHit(pr, id)
		return true
	}
	return false
}

func (r *Room) applyHumanHit(pr *Projectile, target *Player) {
	respawnTicks := uint64(r.cfg.Game.RespawnDelay * float64(r.cfg.Game.TickRate))
	killed := target.TakeDamage(pr.Damage, pr.OwnerID, r.tick, respawnTicks)

	// The hit always precedes any kill it causes.
	r.broadcaster.Broadcast(MsgPlayerHit, HitMessage{AttackerID: pr.OwnerID, TargetID: target.ID, Damage: pr.Damage, HPAfter: target.HP})
	r.eventLog.EmitSimple(EventTypeHit, r.tick, pr.OwnerID, HitPayload{AttackerID: pr.OwnerID, VictimID: target.ID, Damage: pr.Damage, VictimHP: target.HP})

	attacker := r.players[pr.OwnerID] // nil for bot shots and departed owners
	victimCommander := r.commanders.IsCommander(target.ID)
	if attacker != nil && !pr.FromBot {
		r.economy.AwardDamage(attacker, pr.Damage, victimCommander)
		r.rosterDirty = true
	}
	if killed {
		if attacker != nil && !pr.FromBot {
			attacker.Kills++
			r.economy.AwardKill(attacker, victimCommander)
		}
		r.broadcaster.Broadcast(MsgPlayerKilled, KilledMessage{VictimID: target.ID, KillerID: pr.OwnerID, KillerFaction: pr.Faction})
		r.eventLog.EmitSimple(EventTypeKill, r.tick, pr.OwnerID, KillPayload{KillerID: pr.OwnerID, VictimID: target.ID, KillerFaction: pr.Faction})
	}
	if attacker != nil && !pr.FromBot {
		r.leaderboard.UpdatePlayer(attacker)
	}
}

func (r *Room) applyBotHit(pr *Projectile, botID string) {
	if r.bridge != nil {
		r.bridge.Command(BotCommand{Kind: BotCommandApplyDamage, BotID: botID, AttackerID: pr.OwnerID, Damage: pr.Damage})
	}
	// The worker owns bot HP; this is the best local estimate until its
	// next output (the death event, if any, arrives on a later tick).
	hp := r.botHP[botID] - pr.Damage
	if hp < 0 {
		hp = 0
	}
	r.botHP[botID] = hp

	r.broadcaster.Broadcast(MsgPlayerHit, HitMessage{AttackerID: pr.OwnerID, TargetID: botID, Damage: pr.Damage, HPAfter: hp})
	r.eventLog.EmitSimple(EventTypeHit, r.tick, pr.OwnerID, HitPayload{AttackerID: pr.OwnerID, VictimID: botID, Damage: pr.Damage, VictimHP: hp})

	if attacker, ok := r.players[pr.OwnerID]; ok && !pr.FromBot {
		r.economy.AwardDamage(attacker, pr.Damage, false)
		r.leaderboard.UpdatePlayer(attacker)
		r.rosterDirty = true
	}
}

// ---- capture ----

func (r *Room) advanceCapture(dt float64) {
	for _, p := range r.alive {
		if cid := r.planet.ClusterAt(p.Theta, p.Phi); cid >= 0 {
			r.capture.AddPresence(cid, p.ID, p.Faction, false)
		}
	}
	for bi, id := range r.botIDs {
		base := bi * BotStride
		if base+BotStride > len(r.botBuf) {
			break
		}
		flags := uint32(r.botBuf[base+4])
		if flags&(BotFlagDead|BotFlagDeploying) != 0 {
			continue
		}
		if cid := int(r.botBuf[base+5]); cid >= 0 {
			r.capture.AddPresence(cid, id, BotFlagFaction(flags), true)
		}
	}

	changes, awards := r.capture.Advance(dt)

	for _, aw := range awards {
		if aw.Bot {
			continue
		}
		p, ok := r.players[aw.PlayerID]
		if !ok {
			continue
		}
		cs := r.capture.Cluster(aw.ClusterID)
		amount := r.economy.AwardTic(p, len(cs.Cluster.Tiles))
		r.rosterDirty = true
		r.broadcaster.SendTo(p.ID, MsgTicCrypto, TicCryptoMessage{PlayerID: p.ID, ClusterID: aw.ClusterID, Amount: amount, Balance: p.Crypto})
		r.eventLog.EmitSimple(EventTypeTicAward, r.tick, p.ID, TicAwardPayload{PlayerID: p.ID, ClusterID: aw.ClusterID, Amount: amount})
	}

	if len(changes) > 0 {
		// Same frame as any tic-crypto from the final tic above.
		r.broadcaster.Broadcast(MsgTerritoryUpdate, changes)
		for _, ch := range changes {
			if !ch.OwnerChanged {
				continue
			}
			r.eventLog.EmitSimple(EventTypeCapture, r.tick, "", CapturePayload{
				ClusterID: ch.ID,
				Owner:     ch.Owner,
				Tics:      [3]int{ch.Tics.Rust, ch.Tics.Cobalt, ch.Tics.Viridian},
			})
			log.Printf("🏴 Cluster %d owner: %q", ch.ID, ch.Owner)
		}
	}
}

// ---- economy / periodic ----

func (r *Room) runEconomy() {
	if r.clock >= r.nextHoldingAt {
		r.nextHoldingAt += r.cfg.Crypto.HoldingInterval
		r.payHolding()
	}
	if r.clock >= r.nextCryptoAt {
		r.nextCryptoAt += r.cfg.Crypto.BroadcastEvery
		r.broadcastCrypto()
	}
	if r.clock >= r.nextCmdSyncAt {
		r.nextCmdSyncAt += commanderSyncSecs
		r.broadcaster.Broadcast(MsgCommanderSync, r.commanders.Snapshot(r.players))
	}
	if r.rosterDirty {
		r.rosterDirty = false
		r.emitCommanderChanges()
	}
}

func (r *Room) payHolding() {
	var owned [3]int
	for ci := 0; ci < r.capture.ClusterCount(); ci++ {
		cs := r.capture.Cluster(ci)
		for fi, f := range Factions {
			if cs.Owner == string(f) {
				owned[fi]++
			}
		}
	}
	for _, p := range r.alive {
		fi := p.Faction.Index()
		if fi < 0 || owned[fi] == 0 {
			continue
		}
		cid := r.planet.ClusterAt(p.Theta, p.Phi)
		if cid < 0 {
			continue
		}
		if r.capture.Cluster(cid).Owner != string(p.Faction) {
			continue
		}
		amount := r.economy.AwardHolding(p, owned[fi])
		r.rosterDirty = true
		r.broadcaster.SendTo(p.ID, MsgHoldingCrypto, HoldingCryptoMessage{PlayerID: p.ID, Clusters: owned[fi], Amount: amount, Balance: p.Crypto})
		r.eventLog.EmitSimple(EventTypeHolding, r.tick, p.ID, HoldingPayload{PlayerID: p.ID, Clusters: owned[fi], Amount: amount})
	}
}

func (r *Room) broadcastCrypto() {
	balances := make(map[string]int64, len(r.players))
	for id, p := range r.players {
		r.economy.RecomputeLevel(p)
		balances[id] = p.Crypto
		r.leaderboard.UpdatePlayer(p)
		r.profiles.Enqueue(r.recordOf(p))
	}
	r.broadcaster.Broadcast(MsgCryptoUpdate, balances)
}

func (r *Room) emitCommanderChanges() {
	if changed := r.commanders.Recompute(r.players); len(changed) > 0 {
		r.broadcaster.Broadcast(MsgCommanderUpdate, r.commanders.Snapshot(r.players))
	}
}

// ---- broadcast / snapshot ----

func (r *Room) broadcastState() {
	if r.cfg.Game.BroadcastEvery > 1 && r.tick%uint64(r.cfg.Game.BroadcastEvery) != 0 {
		return
	}
	state := StateBroadcast{
		Players:        make(map[string]TankWire, len(r.players)),
		Bots:           r.botStates,
		PlanetRotation: r.planetRotation,
		Station: StationWire{
			Angle:       wrapAngle(2 * math.Pi * r.clock / r.planet.Station.Period),
			Radius:      r.planet.Station.RadiusFactor,
			Inclination: r.planet.Station.Inclination,
		},
	}
	for i, m := range r.planet.Moons {
		state.MoonAngles[i] = wrapAngle(m.Phase + 2*math.Pi*r.clock/m.Period)
	}
	for id, p := range r.players {
		state.Players[id] = p.wire()
	}
	r.broadcaster.Broadcast(MsgState, state)

	// Capture progress for the cluster each tank stands in, momentum
	// sampled once per cluster.
	for k := range r.progressCache {
		delete(r.progressCache, k)
	}
	for _, p := range r.alive {
		cid := r.planet.ClusterAt(p.Theta, p.Phi)
		if cid < 0 {
			continue
		}
		prog, ok := r.progressCache[cid]
		if !ok {
			prog = r.capture.Progress(cid)
			r.progressCache[cid] = prog
		}
		r.broadcaster.SendTo(p.ID, MsgCaptureProgress, prog)
	}
}

func (r *Room) publishSnapshot() {
	snap := r.pool.AcquireWrite()
	snap.TickNumber = r.tick
	snap.PlanetRotation = r.planetRotation
	snap.PlayerCount = len(r.players)
	snap.BotCount = len(r.botIDs)
	snap.ProjectileCount = len(r.projectiles)
	snap.MissedBotTicks = r.missedBot
	snap.TickDurationNs = int64(r.lastTickDur)

	for ci := 0; ci < r.capture.ClusterCount(); ci++ {
		cs := r.capture.Cluster(ci)
		for fi, f := range Factions {
			if cs.Owner == string(f) {
				snap.OwnedClusters[fi]++
			}
		}
	}
	for fi, f := range Factions {
		snap.Commanders[fi] = r.commanders.CommanderOf(f)
	}
	for _, p := range r.order {
		if len(snap.Players) >= cap(snap.Players) {
			break
		}
		snap.Players = append(snap.Players, PlayerSnapshot{
			ID:          p.ID,
			Name:        p.Name,
			Faction:     p.Faction,
			Theta:       p.Theta,
			Phi:         p.Phi,
			HP:          p.HP,
			Deploy:      p.Deploy,
			Level:       p.Level,
			Kills:       p.Kills,
			Deaths:      p.Deaths,
			Crypto:      p.Crypto,
			TotalCrypto: p.TotalCrypto,
			OnLoan:      p.OnLoan,
		})
	}
	r.pool.PublishWrite()
}

func (r *Room) recordOf(p *Player) ProfileRecord {
	return ProfileRecord{
		PlayerID:    p.ID,
		Name:        p.Name,
		Faction:     string(p.Faction),
		Crypto:      p.Crypto,
		TotalCrypto: p.TotalCrypto,
		Level:       p.Level,
		Kills:       p.Kills,
		Deaths:      p.Deaths,
		Badges:      p.Badges,
		Title:       p.Title,
		UpdatedAt:   time.Now(),
	}
}

// ---- accessors for transport, admin and tests ----

// Snapshots exposes the lock-free observer pool.
func (r *Room) Snapshots() *SnapshotPool { return r.pool }

// Planet returns the immutable generated world.
func (r *Room) Planet() *world.Planet { return r.planet }

// Leaderboard returns the crypto leaderboard.
func (r *Room) Leaderboard() *Leaderboard { return r.leaderboard }

// Events returns the audit log.
func (r *Room) Events() *EventLog { return r.eventLog }

// TickRate returns the configured ticks per second.
func (r *Room) TickRate() int { return r.cfg.Game.TickRate }
