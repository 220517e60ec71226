package profile

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"tankwar/internal/config"
	"tankwar/internal/game"
)

// flushPeriod is how often the flusher wakes to check for due records.
const flushPeriod = 500 * time.Millisecond

// pendingProfile tracks one player's unwritten record. firstAt is when the
// record first went dirty, lastAt the most recent overwrite.
type pendingProfile struct {
	rec     game.ProfileRecord
	firstAt time.Time
	lastAt  time.Time
}

// Writer batches profile writes behind a debounce window so a player racking
// up kills does not hit SQLite on every tick. A record flushes once it has
// been quiet for the debounce interval, or unconditionally once it has been
// dirty longer than the max lag.
type Writer struct {
	store    *Store
	debounce time.Duration
	maxLag   time.Duration

	mu      sync.Mutex
	pending map[string]*pendingProfile

	flushed  atomic.Uint64
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ game.ProfileSink = (*Writer)(nil)

// NewWriter creates a writer over the store. Call Start to run the flusher.
func NewWriter(store *Store, cfg config.StoreConfig) *Writer {
	return &Writer{
		store:    store,
		debounce: time.Duration(cfg.ProfileDebounce * float64(time.Second)),
		maxLag:   time.Duration(cfg.ProfileMaxLag * float64(time.Second)),
		pending:  make(map[string]*pendingProfile),
		stopChan: make(chan struct{}),
	}
}

// Start launches the background flusher.
func (w *Writer) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for range channerics.NewTicker(w.stopChan, flushPeriod) {
			w.flush(time.Now(), false)
		}
	}()
	log.Printf("📊 Profile writer started (debounce=%s maxLag=%s)", w.debounce, w.maxLag)
}

// Stop halts the flusher and writes out everything still pending.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.flush(time.Now(), true)
}

// Enqueue records the latest snapshot for a player, replacing any pending
// one. Never blocks; the room calls this from its tick loop.
func (w *Writer) Enqueue(rec game.ProfileRecord) {
	now := time.Now()
	w.mu.Lock()
	p, ok := w.pending[rec.PlayerID]
	if !ok {
		p = &pendingProfile{firstAt: now}
		w.pending[rec.PlayerID] = p
	}
	p.rec = rec
	p.lastAt = now
	w.mu.Unlock()
}

// PendingCount returns how many players have unwritten records.
func (w *Writer) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Flushed returns how many records have been written so far.
func (w *Writer) Flushed() uint64 {
	return w.flushed.Load()
}

// flush writes out every due record. With force set, everything pending is
// due. A failed batch goes back in the queue for the next pass unless a
// newer snapshot arrived in the meantime.
func (w *Writer) flush(now time.Time, force bool) {
	w.mu.Lock()
	var recs []game.ProfileRecord
	var due []*pendingProfile
	var ids []string
	for id, p := range w.pending {
		if force || now.Sub(p.lastAt) >= w.debounce || now.Sub(p.firstAt) >= w.maxLag {
			recs = append(recs, p.rec)
			due = append(due, p)
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(w.pending, id)
	}
	w.mu.Unlock()

	if len(recs) == 0 {
		return
	}
	if err := w.store.SaveBatch(recs); err != nil {
		log.Printf("⚠️ Profile flush failed (%d records kept for retry): %v", len(recs), err)
		w.mu.Lock()
		for i, id := range ids {
			if _, ok := w.pending[id]; !ok {
				w.pending[id] = due[i]
			}
		}
		w.mu.Unlock()
		return
	}
	w.flushed.Add(uint64(len(recs)))
}
