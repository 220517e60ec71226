package chat

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	"tankwar/internal/config"
	"tankwar/internal/game"
	"tankwar/internal/world"
)

const (
	queueSize = 256
	// proximityRadius is the earshot range in world units along the surface.
	proximityRadius = 80.0
	prunePeriod     = time.Minute
	pruneAfter      = 5 * time.Minute
)

type inboundMessage struct {
	playerID   string
	text       string
	mode       Mode
	receivedAt time.Time
}

// Service fans player chat out to its channel audience. Submissions come
// from connection goroutines and never block; one delivery goroutine keeps
// each player's lines in order.
type Service struct {
	planet  *world.Planet
	snaps   *game.SnapshotPool
	bc      game.Broadcaster
	limiter *Limiter

	queue    chan inboundMessage
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
	wg       sync.WaitGroup

	delivered atomic.Uint64
	dropped   atomic.Uint64
	limited   atomic.Uint64
}

// NewService wires chat over the room's snapshot pool and broadcaster.
func NewService(limits config.ResourceLimits, planet *world.Planet, snaps *game.SnapshotPool, bc game.Broadcaster) *Service {
	return &Service{
		planet:   planet,
		snaps:    snaps,
		bc:       bc,
		limiter:  NewLimiter(limits.MaxChatPerTenSec),
		queue:    make(chan inboundMessage, queueSize),
		stopChan: make(chan struct{}),
	}
}

// Start launches the delivery goroutine and the limiter pruner.
func (s *Service) Start() {
	if s.running.Swap(true) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stopChan:
				return
			case m := <-s.queue:
				s.deliver(m)
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for range channerics.NewTicker(s.stopChan, prunePeriod) {
			s.limiter.Prune(pruneAfter)
		}
	}()
	log.Printf("💬 Chat service started (limit %d msgs/10s per player)", s.limiter.perTenSec)
}

// Stop halts delivery. Queued messages are discarded.
func (s *Service) Stop() {
	if !s.running.Swap(false) {
		return
	}
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	log.Printf("💬 Chat service stopped (delivered=%d dropped=%d limited=%d)",
		s.delivered.Load(), s.dropped.Load(), s.limited.Load())
}

// Submit queues one chat line from a player. Never blocks; a full queue
// drops the line.
func (s *Service) Submit(playerID, text, mode string) bool {
	m := inboundMessage{
		playerID:   playerID,
		text:       text,
		mode:       ParseMode(mode),
		receivedAt: time.Now(),
	}
	select {
	case s.queue <- m:
		return true
	default:
		if n := s.dropped.Add(1); n%100 == 1 {
			log.Printf("⚠️ Chat queue full, dropped line from %s (total dropped: %d)", playerID, n)
		}
		return false
	}
}

// Delivered returns how many lines reached an audience.
func (s *Service) Delivered() uint64 { return s.delivered.Load() }

// Dropped returns how many lines were discarded before delivery.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

// deliver routes a sanitized line to its channel audience. The sender
// always receives their own echo.
func (s *Service) deliver(m inboundMessage) {
	if !s.limiter.Allow(m.playerID) {
		s.limited.Add(1)
		return
	}
	text := Sanitize(m.text)
	if text == "" {
		return
	}

	snap := s.snaps.AcquireRead()
	var sender *game.PlayerSnapshot
	for i := range snap.Players {
		if snap.Players[i].ID == m.playerID {
			sender = &snap.Players[i]
			break
		}
	}
	if sender == nil {
		s.dropped.Add(1)
		return
	}

	out := Message{
		FromID:  sender.ID,
		Name:    sender.Name,
		Faction: sender.Faction,
		Mode:    m.mode,
		Text:    text,
	}

	switch m.mode {
	case ModeGlobal:
		s.bc.Broadcast(game.MsgChatMessage, out)

	case ModeProximity:
		from := world.UnitFromSpherical(sender.Theta, sender.Phi)
		for i := range snap.Players {
			p := &snap.Players[i]
			if p.ID == sender.ID {
				s.bc.SendTo(p.ID, game.MsgChatMessage, out)
				continue
			}
			at := world.UnitFromSpherical(p.Theta, p.Phi)
			if world.AngularDistance(from, at)*s.planet.Radius <= proximityRadius {
				s.bc.SendTo(p.ID, game.MsgChatMessage, out)
			}
		}

	default: // lobby
		for i := range snap.Players {
			if snap.Players[i].Faction == sender.Faction {
				s.bc.SendTo(snap.Players[i].ID, game.MsgChatMessage, out)
			}
		}
	}
	s.delivered.Add(1)
}
