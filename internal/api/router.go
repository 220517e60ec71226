package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tankwar/internal/game"
	"tankwar/internal/sponsor"
)

// RoomReader is the slice of the simulation the REST layer reads. Everything
// comes from published snapshots or its own locks; no handler can touch the
// tick loop.
type RoomReader interface {
	Snapshots() *game.SnapshotPool
	Leaderboard() *game.Leaderboard
	TickRate() int
}

// RouterConfig carries the dependencies for NewRouter. Designed for
// injection: tests pass fakes and httptest does the rest.
type RouterConfig struct {
	// Room is the simulation read surface (required).
	Room RoomReader

	// Sponsors backs the sponsor CRUD routes (required).
	Sponsors *sponsor.Store

	// Hub contributes socket counts to /api/stats. Optional.
	Hub *Hub

	// RateLimiter is an optional pre-built limiter; when nil one is
	// constructed from RateLimitConfig (or the defaults).
	RateLimiter     *IPRateLimiter
	RateLimitConfig *RateLimitConfig

	// CORSOrigins overrides the localhost-only default.
	CORSOrigins []string

	// StaticFilesDir serves the admin panel. Defaults to "./admin-panel".
	StaticFilesDir string

	// TextureDir serves baked sponsor patterns under TextureURLBase.
	TextureDir     string
	TextureURLBase string

	// AdminToken, when set, is required as a bearer token on every
	// mutating sponsor route. Reads stay open.
	AdminToken string

	// DisableLogging silences the request logger, for benchmarks.
	DisableLogging bool
}

type routerHandlers struct {
	room     RoomReader
	sponsors *sponsor.Store
	hub      *Hub
	limiter  *IPRateLimiter
}

// NewRouter constructs the HTTP router. It is pure: no goroutines, no
// listeners, no background work, so httptest can wrap it directly.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting before CORS: reject floods before doing header work.
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{
		room:     cfg.Room,
		sponsors: cfg.Sponsors,
		hub:      cfg.Hub,
		limiter:  rateLimiter,
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.handleGetState)
		r.Get("/stats", h.handleGetStats)
		r.Get("/leaderboard", h.handleGetLeaderboard)

		for _, kind := range []string{sponsor.KindMoon, sponsor.KindBillboard} {
			kind := kind
			r.Route("/"+kind+"-sponsors", func(r chi.Router) {
				r.Get("/", h.handleSponsorList(kind))
				r.Get("/{index}", h.handleSponsorGet(kind))
				r.With(adminOnly(cfg.AdminToken)).Put("/{index}", h.handleSponsorAssign(kind))
				r.With(adminOnly(cfg.AdminToken)).Delete("/{index}", h.handleSponsorClear(kind))
			})
		}

		r.Route("/cluster-sponsors", func(r chi.Router) {
			r.Get("/", h.handleClusterSponsorList)
			r.Get("/{clusterId}", h.handleClusterSponsorGet)
			r.With(adminOnly(cfg.AdminToken)).Put("/{clusterId}", h.handleClusterSponsorAssign)
			r.With(adminOnly(cfg.AdminToken)).Delete("/{clusterId}", h.handleClusterSponsorClear)
		})
	})

	// Baked sponsor patterns. The store writes PNGs here on every mutation.
	textureURL := cfg.TextureURLBase
	if textureURL == "" {
		textureURL = "/sponsor-textures/"
	}
	textureDir := cfg.TextureDir
	if textureDir == "" {
		textureDir = "sponsor-textures"
	}
	r.Handle(textureURL+"*", http.StripPrefix(textureURL, http.FileServer(http.Dir(textureDir))))

	staticDir := cfg.StaticFilesDir
	if staticDir == "" {
		staticDir = "./admin-panel"
	}
	r.Handle("/admin/*", http.StripPrefix("/admin/", http.FileServer(http.Dir(staticDir))))
	r.Get("/admin", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin/", http.StatusMovedPermanently)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/admin/", http.StatusFound)
	})

	return r
}

// adminOnly gates mutating routes behind a bearer token. An empty token
// leaves the route open, which is the local-development mode.
func adminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
