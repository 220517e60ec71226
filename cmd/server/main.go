package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tankwar/internal/api"
	"tankwar/internal/bot"
	"tankwar/internal/chat"
	"tankwar/internal/config"
	"tankwar/internal/game"
	"tankwar/internal/profile"
	"tankwar/internal/sponsor"
	"tankwar/internal/world"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🎮 ================================")
	log.Println("🎮  TANKWAR - PLANET SERVER")
	log.Println("🎮 ================================")

	appConfig := config.Load()
	serverCfg := appConfig.Server
	storeCfg := appConfig.Store

	log.Printf("🎮 Config: %d TPS, broadcast every %d ticks, %d target tanks",
		appConfig.Game.TickRate, appConfig.Game.BroadcastEvery, appConfig.Bots.TargetTanks)
	limits := appConfig.Limits
	log.Printf("🛡️ Resource limits: %d players, %d projectiles, %d conns (%d per IP)",
		limits.MaxPlayers, limits.MaxProjectiles, limits.MaxWSConnsTotal, limits.MaxWSConnsPerIP)

	// Generate the planet. Same seeds, same world, so clients can cache
	// geometry across restarts.
	genStart := time.Now()
	planet := world.Generate(appConfig.World)
	log.Printf("🌍 Planet ready: %d tiles, %d clusters, %d portals (seed=%d, %dms)",
		len(planet.Tiles), len(planet.Clusters), len(planet.Portals),
		appConfig.World.WorldGenSeed, time.Since(genStart).Milliseconds())

	// Sponsor manifest and baked textures.
	sponsors := sponsor.NewStore(storeCfg, len(planet.Clusters))
	if err := sponsors.Load(); err != nil {
		log.Fatalf("💥 Sponsor manifest unusable: %v", err)
	}
	log.Printf("🏷️ Sponsor store: %s (textures in %s)", storeCfg.SponsorManifest, storeCfg.TextureDir)

	// Profile persistence: SQLite store behind a debounced writer.
	profiles, err := profile.Open(storeCfg.ProfileDB)
	if err != nil {
		log.Fatalf("💥 Profile store unusable: %v", err)
	}
	writer := profile.NewWriter(profiles, storeCfg)
	writer.Start()
	if n, err := profiles.Count(); err == nil {
		log.Printf("💾 Profile store: %s (%d profiles)", storeCfg.ProfileDB, n)
	}

	// Bot worker on its own goroutine, talking to the loop over channels.
	bridge := bot.NewBridge(appConfig, planet)
	bridge.Start()

	// Hub first, then the room that broadcasts through it. The room owns
	// the bridge from here; Stop tears both down.
	hub := api.NewHub()
	room := game.NewRoom(appConfig, planet, hub, bridge, writer)

	// The room applies sponsor changes at tick boundaries. Prime it with
	// the manifest as loaded, then keep it in sync on every mutation.
	sponsors.SetReloadHook(room.ReloadSponsors)
	infos, clusterOwners := sponsors.Infos()
	room.ReloadSponsors(infos, clusterOwners)

	room.Start()
	log.Println("✅ Game room started")

	// Chat rides the snapshot pool so it never touches live tick state.
	chatSvc := chat.NewService(limits, planet, room.Snapshots(), hub)
	chatSvc.Start()
	tusk := chat.NewTusk(room.Snapshots(), hub)
	tusk.Start()

	// Metrics read the same snapshots; pprof stays on localhost.
	api.RegisterGameMetrics(room.Snapshots())
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		debugCfg := api.DefaultObservabilityConfig()
		debugCfg.ListenAddr = serverCfg.DebugAddr
		if err := api.StartDebugServer(debugCfg); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}

	adminToken := os.Getenv("ADMIN_TOKEN")
	if adminToken == "" {
		log.Println("⚠️ ADMIN_TOKEN not set - sponsor mutations are open")
	} else {
		log.Println("🔐 Sponsor mutations require the admin bearer token")
	}

	server := api.NewServer(api.ServerOptions{
		Room:           room,
		Hub:            hub,
		Chat:           chatSvc,
		Profiles:       profiles,
		Sponsors:       sponsors,
		Limits:         limits,
		CORSOrigins:    splitOrigins(os.Getenv("ALLOWED_ORIGINS")),
		StaticFilesDir: serverCfg.AdminDir,
		TextureDir:     storeCfg.TextureDir,
		TextureURLBase: storeCfg.TextureURLBase,
		AdminToken:     adminToken,
	})

	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		log.Printf("🎮 Admin Panel: http://localhost%s/admin", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	tusk.Stop()
	chatSvc.Stop()
	room.Stop()
	writer.Stop()
	if err := profiles.Close(); err != nil {
		log.Printf("⚠️ Profile store close: %v", err)
	}
	log.Println("👋 Goodbye!")
}

// splitOrigins turns a comma list into the extra allowed origins. Empty
// items from stray commas are dropped.
func splitOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
