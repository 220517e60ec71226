// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for all world, game and server settings.
//
// IMPORTANT: When changing values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
)

// =============================================================================
// WORLD GENERATION
// =============================================================================

// WorldConfig holds the deterministic planet generation inputs.
// Identical values must reproduce a byte-identical world description.
type WorldConfig struct {
	WorldGenSeed   int64   // Seed for geometry, clustering and portal placement
	TerrainSeed    int64   // Seed for the elevation noise field
	Subdivision    int     // Icosahedron subdivision frequency
	Radius         float64 // Sphere radius in world units
	MaxClusterSize int     // Flood-fill bound on tiles per cluster
	PortalCount    int     // Deploy portals distributed over the planet
}

// DefaultWorld returns the default world generation configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		WorldGenSeed:   1337,
		TerrainSeed:    7331,
		Subdivision:    8,
		Radius:         200,
		MaxClusterSize: 16,
		PortalCount:    12,
	}
}

// WorldFromEnv returns world configuration with environment variable overrides.
func WorldFromEnv() WorldConfig {
	cfg := DefaultWorld()

	if s := getEnvInt64("WORLD_GEN_SEED", 0); s != 0 {
		cfg.WorldGenSeed = s
	}
	if s := getEnvInt64("TERRAIN_SEED", 0); s != 0 {
		cfg.TerrainSeed = s
	}
	if n := getEnvInt("WORLD_SUBDIVISION", 0); n > 0 {
		cfg.Subdivision = n
	}

	return cfg
}

// =============================================================================
// GAME LOOP & PHYSICS
// =============================================================================

// GameConfig holds tick-loop and tank physics settings.
// The motion constants are mirrored by the client predictor; changing them
// here desyncs prediction until clients update.
type GameConfig struct {
	TickRate       int     // Authoritative ticks per second
	BroadcastEvery int     // State broadcast every N ticks
	MaxInputDT     float64 // Inputs claiming a larger dt are rejected
	InputQueueCap  int     // Pending inputs kept per player; oldest dropped

	TankAccel    float64 // World units per second squared
	TankMaxSpeed float64 // World units per second
	TankTurnRate float64 // Radians per second
	TankFriction float64 // Per-tick velocity retention at reference dt

	TankMaxHP      int
	RespawnDelay   float64 // Seconds between death and portal eligibility
	PlanetSpinRate float64 // Radians per second of planet rotation
}

// DefaultGame returns the default game loop configuration.
func DefaultGame() GameConfig {
	return GameConfig{
		TickRate:       20,
		BroadcastEvery: 2,
		MaxInputDT:     0.25,
		InputQueueCap:  60,
		TankAccel:      40,
		TankMaxSpeed:   24,
		TankTurnRate:   2.2,
		TankFriction:   0.92,
		TankMaxHP:      100,
		RespawnDelay:   3.0,
		PlanetSpinRate: 0.005,
	}
}

// GameFromEnv returns game configuration with environment variable overrides.
func GameFromEnv() GameConfig {
	cfg := DefaultGame()

	if t := getEnvInt("TICK_RATE", 0); t > 0 {
		cfg.TickRate = t
	}

	return cfg
}

// =============================================================================
// PROJECTILES
// =============================================================================

// ProjectileConfig holds cannon shot constants. Charge power (0-10) scales
// speed x1->x2, range x1->x3 and damage x1->x3 off the base values here.
type ProjectileConfig struct {
	BaseSpeed      float64 // World units per second at zero charge
	BaseRange      float64 // World units at zero charge
	BaseDamage     int     // Hit points at zero charge
	MaxLifetime    float64 // Seconds before a shot expires regardless of range
	HullHalfLength float64 // Tank oriented-box half extent along heading
	HullHalfWidth  float64 // Tank oriented-box half extent across heading
}

// DefaultProjectile returns the default projectile configuration.
func DefaultProjectile() ProjectileConfig {
	return ProjectileConfig{
		BaseSpeed:      60,
		BaseRange:      80,
		BaseDamage:     25,
		MaxLifetime:    4.0,
		HullHalfLength: 3.5,
		HullHalfWidth:  3.0,
	}
}

// =============================================================================
// CAPTURE
// =============================================================================

// CaptureConfig holds territory tug-of-war settings.
type CaptureConfig struct {
	TicsPerTankSecond float64 // Accrual (and decay) rate per present tank
	SnapshotEvery     int     // Full capture snapshot to the bot worker every N ticks
	SponsorHoldExtend float64 // Seconds of hold added per full-presence second
	SponsorHoldMax    float64 // Ceiling on a sponsor hold timer, seconds
}

// DefaultCapture returns the default capture configuration.
func DefaultCapture() CaptureConfig {
	return CaptureConfig{
		TicsPerTankSecond: 1.0,
		SnapshotEvery:     50,
		SponsorHoldExtend: 30,
		SponsorHoldMax:    24 * 60 * 60,
	}
}

// =============================================================================
// ECONOMY
// =============================================================================

// CryptoConfig holds every crypto award, spend and curve constant.
type CryptoConfig struct {
	DamageValue     float64 // ¢ per point of damage dealt
	KillBonus       int     // ¢ on a lethal hit
	CommanderFactor int     // Multiplier when the victim is a commander
	TicAward        int     // ¢ per tic moved, small clusters
	TicAwardLarge   int     // ¢ per tic moved, clusters above LargeClusterMin
	LargeClusterMin int     // Tile count at which a cluster pays the large tier
	HoldingValue    int     // ¢ per owned cluster on the holding schedule
	HoldingInterval float64 // Seconds between holding payouts
	TipMax          int     // Commander tip ceiling per transfer
	TipCooldown     float64 // Seconds between tips from one commander
	FireBaseCost    int     // Fire cost is FireBaseCost + ceil(chargePower)
	DebtFloor       int     // Balances may not drop below this ("on loan")
	LevelBase       float64 // cryptoForLevel(L) = LevelBase * LevelGrowth^L
	LevelGrowth     float64
	BroadcastEvery  float64 // Seconds between full crypto map broadcasts
}

// DefaultCrypto returns the default economy configuration.
func DefaultCrypto() CryptoConfig {
	return CryptoConfig{
		DamageValue:     0.2,
		KillBonus:       10,
		CommanderFactor: 10,
		TicAward:        1,
		TicAwardLarge:   2,
		LargeClusterMin: 13,
		HoldingValue:    2,
		HoldingInterval: 60,
		TipMax:          100,
		TipCooldown:     10,
		FireBaseCost:    5,
		DebtFloor:       -50,
		LevelBase:       100,
		LevelGrowth:     1.35,
		BroadcastEvery:  5,
	}
}

// =============================================================================
// BOTS
// =============================================================================

// BotConfig holds AI worker settings.
type BotConfig struct {
	TargetTanks    int // Humans + bots are kept near this total
	BotMaxHP       int
	BotBaseDamage  int     // Base cannon damage for bot shots
	BotFireRange   float64 // World units
	BotSeed        int64   // Worker RNG seed; reused across restarts
	MissedTickLog  int     // Log the missed-output counter every N misses
	RestartBackoff float64 // Seconds before a crashed worker restarts
}

// DefaultBots returns the default bot configuration.
func DefaultBots() BotConfig {
	return BotConfig{
		TargetTanks:    12,
		BotMaxHP:       100,
		BotBaseDamage:  25,
		BotFireRange:   60,
		BotSeed:        99,
		MissedTickLog:  100,
		RestartBackoff: 0.5,
	}
}

// BotsFromEnv returns bot configuration with environment variable overrides.
func BotsFromEnv() BotConfig {
	cfg := DefaultBots()

	if n := getEnvInt("TARGET_TANKS", 0); n > 0 {
		cfg.TargetTanks = n
	}
	if s := getEnvInt64("BOT_SEED", 0); s != 0 {
		cfg.BotSeed = s
	}

	return cfg
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits controls DoS protection and performance caps.
type ResourceLimits struct {
	MaxPlayers         int // Hard cap on connected humans
	MaxProjectiles     int // Active projectiles, all owners combined
	MaxPerOwnerShots   int // In-flight projectiles per owner; extra fires dropped
	MaxWSConnsTotal    int
	MaxWSConnsPerIP    int
	SendBufferPer      int // Outbound frames buffered per connection before drop
	MaxChatPerTenSec   int
	MaxInputsPerSecond int // Token-bucket rate on the input event per connection
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxPlayers:         64,
		MaxProjectiles:     256,
		MaxPerOwnerShots:   8,
		MaxWSConnsTotal:    200,
		MaxWSConnsPerIP:    5,
		SendBufferPer:      256,
		MaxChatPerTenSec:   6,
		MaxInputsPerSecond: 40,
	}
}

// =============================================================================
// SERVER
// =============================================================================

// ServerConfig holds HTTP/transport settings.
type ServerConfig struct {
	Port      int    // Game transport + admin REST share this port
	DebugAddr string // pprof/metrics listener; localhost only
	AdminDir  string // Static admin panel directory
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:      3000,
		DebugAddr: "127.0.0.1:6060",
		AdminDir:  "./admin-panel",
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if d := os.Getenv("ADMIN_DIR"); d != "" {
		cfg.AdminDir = d
	}

	return cfg
}

// =============================================================================
// ON-DISK STORES
// =============================================================================

// StoreConfig holds sponsor manifest and profile store paths.
type StoreConfig struct {
	SponsorManifest string  // JSON manifest of all sponsor slots
	TextureDir      string  // Baked sponsor pattern PNGs land here
	TextureURLBase  string  // URL path prefix the PNGs are served under
	ProfileDB       string  // SQLite profile store path
	ProfileDebounce float64 // Seconds of quiet before a profile write
	ProfileMaxLag   float64 // Hard ceiling on write postponement, seconds
	EventLogPath    string  // JSONL audit log; empty disables
}

// DefaultStore returns the default store configuration.
func DefaultStore() StoreConfig {
	return StoreConfig{
		SponsorManifest: "sponsors.json",
		TextureDir:      "sponsor-textures",
		TextureURLBase:  "/sponsor-textures/",
		ProfileDB:       "profiles.db",
		ProfileDebounce: 2,
		ProfileMaxLag:   30,
		EventLogPath:    "events.jsonl",
	}
}

// StoreFromEnv returns store configuration with environment variable overrides.
func StoreFromEnv() StoreConfig {
	cfg := DefaultStore()

	if p := os.Getenv("SPONSOR_MANIFEST"); p != "" {
		cfg.SponsorManifest = p
	}
	if p := os.Getenv("SPONSOR_TEXTURE_DIR"); p != "" {
		cfg.TextureDir = p
	}
	if p := os.Getenv("PROFILE_DB"); p != "" {
		cfg.ProfileDB = p
	}
	if p := os.Getenv("EVENT_LOG_PATH"); p != "" {
		cfg.EventLogPath = p
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	World      WorldConfig
	Game       GameConfig
	Projectile ProjectileConfig
	Capture    CaptureConfig
	Crypto     CryptoConfig
	Bots       BotConfig
	Limits     ResourceLimits
	Server     ServerConfig
	Store      StoreConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		World:      WorldFromEnv(),
		Game:       GameFromEnv(),
		Projectile: DefaultProjectile(),
		Capture:    DefaultCapture(),
		Crypto:     DefaultCrypto(),
		Bots:       BotsFromEnv(),
		Limits:     DefaultLimits(),
		Server:     ServerFromEnv(),
		Store:      StoreFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}
