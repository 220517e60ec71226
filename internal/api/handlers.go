package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"tankwar/internal/game"
)

// handleGetState serves a full observer snapshot. The pool recycles slots,
// so everything is copied out before encoding.
func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap := h.room.Snapshots().AcquireRead()
	st := *snap
	st.Players = append([]game.PlayerSnapshot(nil), snap.Players...)

	owned := make(map[string]int, len(game.Factions))
	commanders := make(map[string]string, len(game.Factions))
	for fi, f := range game.Factions {
		owned[string(f)] = st.OwnedClusters[fi]
		commanders[string(f)] = st.Commanders[fi]
	}

	writeJSON(w, map[string]interface{}{
		"tick":            st.TickNumber,
		"players":         st.Players,
		"playerCount":     st.PlayerCount,
		"botCount":        st.BotCount,
		"projectileCount": st.ProjectileCount,
		"ownedClusters":   owned,
		"commanders":      commanders,
		"planetRotation":  st.PlanetRotation,
	})
}

// handleGetStats serves counters for the admin dashboard poll.
func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	snap := h.room.Snapshots().AcquireRead()

	stats := map[string]interface{}{
		"tick":            snap.TickNumber,
		"tickRate":        h.room.TickRate(),
		"tickDurationMs":  time.Duration(snap.TickDurationNs).Seconds() * 1000,
		"playerCount":     snap.PlayerCount,
		"botCount":        snap.BotCount,
		"projectileCount": snap.ProjectileCount,
		"missedBotTicks":  snap.MissedBotTicks,
		"rateLimiter":     h.limiter.GetStats(),
	}
	if h.hub != nil {
		sent, dropped := h.hub.Stats()
		stats["clients"] = h.hub.ClientCount()
		stats["framesSent"] = sent
		stats["framesDropped"] = dropped
	}
	writeJSON(w, stats)
}

// handleGetLeaderboard serves ranked rows. ?limit=N bounds the page;
// ?around=playerId&above=A&below=B centers on one player instead.
func (h *routerHandlers) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb := h.room.Leaderboard()

	if around := r.URL.Query().Get("around"); around != "" {
		above := queryInt(r, "above", 2, 0, 25)
		below := queryInt(r, "below", 2, 0, 25)
		entries := lb.GetAroundPlayer(around, above, below)
		if entries == nil {
			writeError(w, "player not ranked", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]interface{}{"entries": entries, "total": lb.Length()})
		return
	}

	limit := queryInt(r, "limit", 10, 1, 100)
	entries := lb.GetTop(limit)
	if entries == nil {
		entries = []game.LeaderboardEntry{}
	}
	writeJSON(w, map[string]interface{}{"entries": entries, "total": lb.Length()})
}

// queryInt parses a bounded integer query parameter.
func queryInt(r *http.Request, key string, def, min, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
