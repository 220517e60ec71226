package chat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter rate-limits chat per player. The bucket refills over a ten second
// window so a short burst is fine but sustained spam is not.
type Limiter struct {
	mu        sync.Mutex
	perTenSec int
	entries   map[string]*limiterEntry
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLimiter allows perTenSec messages per player per ten seconds.
func NewLimiter(perTenSec int) *Limiter {
	if perTenSec <= 0 {
		perTenSec = 6
	}
	return &Limiter{
		perTenSec: perTenSec,
		entries:   make(map[string]*limiterEntry),
	}
}

// Allow reports whether the player may send another message now.
func (l *Limiter) Allow(playerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[playerID]
	if !ok {
		e = &limiterEntry{
			lim: rate.NewLimiter(rate.Limit(float64(l.perTenSec)/10.0), l.perTenSec),
		}
		l.entries[playerID] = e
	}
	e.lastSeen = time.Now()
	return e.lim.Allow()
}

// Prune drops limiters idle longer than the cutoff.
func (l *Limiter) Prune(olderThan time.Duration) {
	cutoff := time.Now().Add(-olderThan)
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}

// Tracked returns how many players currently hold a limiter.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
