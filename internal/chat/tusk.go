package chat

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"tankwar/internal/game"
)

// tuskPeriod is how often Tusk looks for something worth announcing.
const tuskPeriod = 4 * time.Second

// Announcement templates. Each set takes the same arguments throughout:
// capture lines get (faction, cluster count), commander lines get
// (player name, faction).
var (
	captureGainLines = []string{
		"The %s banner rises over another cluster. %d held!",
		"%s armor rolls forward. %d clusters under their tread.",
		"Cluster secured for %s. That makes %d.",
	}
	captureLossLines = []string{
		"The %s line buckles. Down to %d clusters.",
		"%s command reports a cluster lost. %d remain.",
	}
	commanderLines = []string{
		"%s takes command of the %s legion.",
		"All units: %s now leads the %s war effort.",
		"A new hand on the %[2]s tiller. Salute %[1]s.",
	}
)

// Tusk is the resident announcer. It watches room snapshots for territory
// swings and command changes and narrates them over tusk-chat.
type Tusk struct {
	snaps *game.SnapshotPool
	bc    game.Broadcaster
	rng   *rand.Rand

	prevOwned      [3]int
	prevCommanders [3]string
	primed         bool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	announced atomic.Uint64
}

// NewTusk creates the announcer over the room's snapshot pool.
func NewTusk(snaps *game.SnapshotPool, bc game.Broadcaster) *Tusk {
	return &Tusk{
		snaps:    snaps,
		bc:       bc,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		stopChan: make(chan struct{}),
	}
}

// Start begins the announce loop.
func (t *Tusk) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for range channerics.NewTicker(t.stopChan, tuskPeriod) {
			t.scan()
		}
	}()
	log.Println("🐘 Tusk is on the air")
}

// Stop silences Tusk.
func (t *Tusk) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
	t.wg.Wait()
}

// scan diffs the latest snapshot against the last one seen and announces
// the changes. The first snapshot only primes the baseline; a restart must
// not replay the whole map state as news.
func (t *Tusk) scan() {
	snap := t.snaps.AcquireRead()
	if snap.Sequence == 0 {
		return
	}

	owned := snap.OwnedClusters
	commanders := snap.Commanders

	if !t.primed {
		t.prevOwned = owned
		t.prevCommanders = commanders
		t.primed = true
		return
	}

	for fi, f := range game.Factions {
		switch {
		case owned[fi] > t.prevOwned[fi]:
			t.say("capture", captureGainLines, f, owned[fi])
		case owned[fi] < t.prevOwned[fi]:
			t.say("capture", captureLossLines, f, owned[fi])
		}
		if commanders[fi] != t.prevCommanders[fi] && commanders[fi] != "" {
			t.say("commander", commanderLines, displayName(snap, commanders[fi]), f)
		}
	}

	t.prevOwned = owned
	t.prevCommanders = commanders
}

func (t *Tusk) say(kind string, lines []string, args ...interface{}) {
	text := fmt.Sprintf(lines[t.rng.Intn(len(lines))], args...)
	t.bc.Broadcast(game.MsgTuskChat, TuskMessage{Kind: kind, Text: text})
	t.announced.Add(1)
}

// Announced returns how many lines Tusk has spoken.
func (t *Tusk) Announced() uint64 { return t.announced.Load() }

// displayName resolves a player ID to their name, falling back to the ID
// when the player is no longer in the snapshot.
func displayName(snap *game.RoomSnapshot, playerID string) string {
	for i := range snap.Players {
		if snap.Players[i].ID == playerID {
			return snap.Players[i].Name
		}
	}
	return playerID
}
