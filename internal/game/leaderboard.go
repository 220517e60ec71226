package game

import (
	"sync"

	"tankwar/internal/game/spatial"
)

// Leaderboard ranks players by lifetime crypto. Backed by a skip list so
// updates and rank queries stay O(log n) while the REST endpoint pulls
// arbitrary rank ranges.
type Leaderboard struct {
	skipList *spatial.SkipList

	mu   sync.RWMutex // guards meta; scores lock inside the skip list
	meta map[string]leaderboardMeta
}

type leaderboardMeta struct {
	name    string
	faction Faction
	level   int
	kills   int
}

// LeaderboardEntry is one row of the crypto leaderboard.
type LeaderboardEntry struct {
	PlayerID string  `json:"playerId"`
	Name     string  `json:"name"`
	Faction  Faction `json:"faction"`
	Level    int     `json:"level"`
	Kills    int     `json:"kills"`
	Crypto   int64   `json:"crypto"`
	Rank     int     `json:"rank"`
}

// NewLeaderboard creates an empty leaderboard.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{
		skipList: spatial.NewSkipList(),
		meta:     make(map[string]leaderboardMeta),
	}
}

// UpdatePlayer reranks a player from their current stats. O(log n).
func (lb *Leaderboard) UpdatePlayer(p *Player) {
	lb.mu.Lock()
	lb.meta[p.ID] = leaderboardMeta{name: p.Name, faction: p.Faction, level: p.Level, kills: p.Kills}
	lb.mu.Unlock()
	lb.skipList.Insert(p.ID, float64(p.TotalCrypto))
}

// RemovePlayer drops a player from the board. O(log n).
func (lb *Leaderboard) RemovePlayer(playerID string) {
	lb.mu.Lock()
	delete(lb.meta, playerID)
	lb.mu.Unlock()
	lb.skipList.Remove(playerID)
}

// GetRank returns a player's rank (1 = top) or 0 if absent. O(log n).
func (lb *Leaderboard) GetRank(playerID string) int {
	return lb.skipList.GetRank(playerID)
}

// GetTop returns the top n rows. O(log n + k).
func (lb *Leaderboard) GetTop(n int) []LeaderboardEntry {
	return lb.rows(lb.skipList.GetRange(1, n), 1)
}

// GetAroundPlayer returns rows surrounding one player: above higher-ranked
// rows, the player, then below lower-ranked rows. Nil if the player is not
// on the board. O(log n + k).
func (lb *Leaderboard) GetAroundPlayer(playerID string, above, below int) []LeaderboardEntry {
	rank := lb.skipList.GetRank(playerID)
	if rank == 0 {
		return nil
	}
	start := rank - above
	if start < 1 {
		start = 1
	}
	return lb.rows(lb.skipList.GetRange(start, rank+below), start)
}

// Length returns the number of ranked players.
func (lb *Leaderboard) Length() int {
	return lb.skipList.Length()
}

// Clear removes every player.
func (lb *Leaderboard) Clear() {
	lb.mu.Lock()
	lb.meta = make(map[string]leaderboardMeta)
	lb.mu.Unlock()
	lb.skipList.Clear()
}

func (lb *Leaderboard) rows(entries []spatial.SkipListEntry, startRank int) []LeaderboardEntry {
	out := make([]LeaderboardEntry, len(entries))
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	for i, e := range entries {
		m := lb.meta[e.Key]
		out[i] = LeaderboardEntry{
			PlayerID: e.Key,
			Name:     m.name,
			Faction:  m.faction,
			Level:    m.level,
			Kills:    m.kills,
			Crypto:   int64(e.Score),
			Rank:     startRank + i,
		}
	}
	return out
}
