package api

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"tankwar/internal/config"
	"tankwar/internal/game"
	"tankwar/internal/sponsor"
)

// GameRoom is everything the transport drives on the simulation. All calls
// enqueue ops the tick loop applies at its next boundary.
type GameRoom interface {
	RoomReader
	Join(id, name string, faction game.Faction, profile *game.ProfileRecord)
	Leave(id string)
	SubmitInput(id string, cmd game.InputCommand)
	Fire(id string, power, turretAngle float64)
	ChoosePortal(id string, tile int)
	ChangeFaction(id string, f game.Faction)
	Tip(fromID, toID string, amount int64)
	UpdateProfile(id string, badges []string, title string, totalCrypto int64)
	CommanderPing(id string, x, y, z float64)
	CommanderDraw(id string, points [][3]float64, done bool)
}

// ChatDesk accepts inbound chat lines for routing.
type ChatDesk interface {
	Submit(playerID, text, mode string) bool
}

// ProfileLoader resumes persisted progression at join time.
type ProfileLoader interface {
	Load(playerID string) (*game.ProfileRecord, error)
}

// ServerOptions carries the dependencies for NewServer.
type ServerOptions struct {
	Room     GameRoom      // required
	Hub      *Hub          // required; the same hub the room broadcasts through
	Chat     ChatDesk      // nil drops chat frames
	Profiles ProfileLoader // nil joins everyone fresh

	Sponsors *sponsor.Store
	Limits   config.ResourceLimits

	CORSOrigins    []string
	StaticFilesDir string
	TextureDir     string
	TextureURLBase string
	AdminToken     string
	DisableLogging bool
}

// Server is the HTTP edge: REST router plus the websocket game endpoint.
// Construction opens no listeners and starts no goroutines; Start does.
type Server struct {
	room     GameRoom
	chat     ChatDesk
	profiles ProfileLoader
	hub      *Hub
	limits   config.ResourceLimits

	router      *chi.Mux
	rateLimiter *IPRateLimiter
	wsLimiter   *WebSocketRateLimiter
	upgrader    websocket.Upgrader
	httpSrv     *http.Server

	totalConns atomic.Int32
}

func NewServer(opts ServerOptions) *Server {
	s := &Server{
		room:        opts.Room,
		chat:        opts.Chat,
		profiles:    opts.Profiles,
		hub:         opts.Hub,
		limits:      opts.Limits,
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
		wsLimiter:   NewWebSocketRateLimiter(opts.Limits.MaxWSConnsPerIP),
	}

	origins := opts.CORSOrigins
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Native clients and tests send no Origin header.
				return true
			}
			if IsAllowedOrigin(origin, origins) {
				return true
			}
			RecordConnectionRejected("origin")
			return false
		},
	}

	s.router = NewRouter(RouterConfig{
		Room:           opts.Room,
		Sponsors:       opts.Sponsors,
		Hub:            s.hub,
		RateLimiter:    s.rateLimiter,
		CORSOrigins:    opts.CORSOrigins,
		StaticFilesDir: opts.StaticFilesDir,
		TextureDir:     opts.TextureDir,
		TextureURLBase: opts.TextureURLBase,
		AdminToken:     opts.AdminToken,
		DisableLogging: opts.DisableLogging,
	})
	s.router.Get("/ws", s.handleWebSocket)

	return s
}

// Router exposes the handler for httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start opens the listener and serves until Shutdown. Blocking.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("🌐 API server on %s (game socket at /ws, panel at /admin/)", addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains the HTTP server and closes every game socket.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	s.hub.CloseAll()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// handleWebSocket is the game socket entry: capacity checks, origin check
// via the upgrader, identity resolution, profile resume, then the pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if int(s.totalConns.Load()) >= s.limits.MaxWSConnsTotal {
		RecordConnectionRejected("capacity")
		writeError(w, "server at capacity", http.StatusServiceUnavailable)
		return
	}
	if !s.wsLimiter.Allow(ip) {
		RecordConnectionRejected("ws_limit")
		writeError(w, "too many connections from this address", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error (including origin denials).
		s.wsLimiter.Release(ip)
		return
	}
	s.totalConns.Add(1)

	pid, name, faction := resolveIdentity(r)

	var record *game.ProfileRecord
	if s.profiles != nil {
		record, err = s.profiles.Load(pid)
		if err != nil {
			// Degraded login beats a dead one: the player starts fresh
			// and the next save overwrites.
			log.Printf("⚠️ Profile load failed for %s: %v", pid, err)
			record = nil
		}
	}

	client := newClient(s, conn, ip, pid, name)
	s.hub.register(client)
	s.room.Join(pid, name, faction, record)

	go client.writePump()
	go func() {
		client.readPump()
		if s.hub.unregister(client) {
			s.room.Leave(pid)
		}
		s.wsLimiter.Release(ip)
		s.totalConns.Add(-1)
	}()
}
