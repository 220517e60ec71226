package api

import (
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tankwar/internal/game"
)

// Edge metrics with bounded cardinality: no per-player or per-IP labels.
var (
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter, origin check or capacity",
	}, []string{"reason"}) // bounded: "rate_limit", "origin", "invalid", "ws_limit", "capacity"

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, never the raw URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently registered game sockets",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Inbound client frames processed",
	})

	wsFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_frames_dropped_total",
		Help: "Outbound frames dropped because a client send queue was full",
	})

	wsBytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_bytes_sent_total",
		Help: "Outbound frame bytes queued for delivery",
	})
)

var gameMetricsOnce sync.Once

// RegisterGameMetrics exposes simulation state as pull gauges over the
// lock-free snapshot pool. Values are read at scrape time, so the tick loop
// pays nothing for them.
func RegisterGameMetrics(pool *game.SnapshotPool) {
	gameMetricsOnce.Do(func() {
		gauge := func(name, help string, read func(*game.RoomSnapshot) float64) {
			promauto.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
				return read(pool.AcquireRead())
			})
		}

		gauge("game_player_count", "Connected human players",
			func(s *game.RoomSnapshot) float64 { return float64(s.PlayerCount) })
		gauge("game_bot_count", "Live AI tanks",
			func(s *game.RoomSnapshot) float64 { return float64(s.BotCount) })
		gauge("game_projectile_count", "Shells in flight",
			func(s *game.RoomSnapshot) float64 { return float64(s.ProjectileCount) })
		gauge("game_tick_number", "Simulation tick counter",
			func(s *game.RoomSnapshot) float64 { return float64(s.TickNumber) })
		gauge("game_bot_missed_ticks", "Cumulative ticks the bot worker failed to deliver in time",
			func(s *game.RoomSnapshot) float64 { return float64(s.MissedBotTicks) })
		gauge("game_tick_duration_seconds", "Wall time of the most recent tick",
			func(s *game.RoomSnapshot) float64 { return time.Duration(s.TickDurationNs).Seconds() })

		for fi, f := range game.Factions {
			idx := fi
			promauto.NewGaugeFunc(prometheus.GaugeOpts{
				Name:        "game_clusters_owned",
				Help:        "Clusters currently held, by faction",
				ConstLabels: prometheus.Labels{"faction": string(f)},
			}, func() float64 {
				return float64(pool.AcquireRead().OwnedClusters[idx])
			})
		}
	})
}

// ObservabilityConfig configures the debug listener.
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string
	BasicAuthUser string
	BasicAuthPass string
}

// DefaultObservabilityConfig binds to localhost. pprof on an open port is
// an invitation, not a feature.
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// StartDebugServer starts the internal pprof/metrics listener. Non-local
// addresses are rewritten to localhost unless ALLOW_DEBUG_EXTERNAL=true.
func StartDebugServer(cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	if !isLocalAddr(cfg.ListenAddr) && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		log.Println("⚠️ Debug server forced to localhost")
		cfg.ListenAddr = "127.0.0.1:6060"
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}

	go func() {
		log.Printf("📊 Debug server on %s (pprof, metrics, health)", cfg.ListenAddr)
		if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return nil
}

func isLocalAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	return host == "127.0.0.1" || host == "localhost" || host == "::1"
}

func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecordConnectionRejected counts a refused connection. The reason label is
// a fixed enum, never client input.
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records one HTTP request against the route pattern.
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections sets the active socket gauge.
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages counts one inbound client frame.
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}

// RecordFrameDropped counts one outbound frame lost to a slow client.
func RecordFrameDropped() {
	wsFramesDropped.Inc()
}

// RecordBytesSent counts outbound frame bytes queued for delivery.
func RecordBytesSent(n int) {
	wsBytesSent.Add(float64(n))
}
