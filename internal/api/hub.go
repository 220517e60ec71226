package api

import (
	"log"
	"sync"
	"sync/atomic"

	"tankwar/internal/game"
)

// Hub tracks connected websocket clients and fans outbound events to them.
// It is the room's Broadcaster: the simulation hands it an event name and a
// payload, the hub encodes once and distributes the bytes.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	framesSent    atomic.Uint64
	framesDropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

var _ game.Broadcaster = (*Hub)(nil)

// register adds a client. A second connection for the same player displaces
// the first: the old socket is closed and the new one takes the ID.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	old := h.clients[c.playerID]
	h.clients[c.playerID] = c
	n := len(h.clients)
	h.mu.Unlock()

	if old != nil && old != c {
		log.Printf("👋 Player %s reconnected, closing stale socket", c.playerID)
		old.closeSend()
	}
	UpdateWSConnections(n)
}

// unregister drops a client, but only while it still owns its player slot.
// A displaced socket unregistering late must not evict its replacement; the
// return value tells the caller whether the player actually left.
func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	owned := h.clients[c.playerID] == c
	if owned {
		delete(h.clients, c.playerID)
	}
	n := len(h.clients)
	h.mu.Unlock()
	UpdateWSConnections(n)
	return owned
}

// Broadcast encodes an event once and queues it on every client. Slow
// clients lose frames rather than stalling the loop.
func (h *Hub) Broadcast(event string, payload interface{}) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		log.Printf("⚠️ Broadcast encode failed for %s: %v", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	queued := 0
	for _, c := range h.clients {
		// A socket that has not been welcomed yet is registered but its
		// join op is still in the room's queue. Holding broadcasts back
		// keeps the welcome the first frame on every connection.
		if !c.welcomed.Load() {
			continue
		}
		if c.queueFrame(data) {
			h.framesSent.Add(1)
			queued++
		} else {
			h.framesDropped.Add(1)
			RecordFrameDropped()
		}
	}
	if queued > 0 {
		RecordBytesSent(queued * len(data))
	}
}

// SendTo queues an event for a single player. Welcome packets get their
// world description lz4-packed before encoding.
func (h *Hub) SendTo(playerID string, event string, payload interface{}) {
	if event == game.MsgWelcome {
		if wp, ok := payload.(game.WelcomePacket); ok {
			wire, err := wireWelcome(wp)
			if err != nil {
				log.Printf("⚠️ Welcome packing failed for %s: %v", playerID, err)
				return
			}
			payload = wire
		}
	}

	data, err := encodeFrame(event, payload)
	if err != nil {
		log.Printf("⚠️ SendTo encode failed for %s: %v", event, err)
		return
	}

	h.mu.RLock()
	c := h.clients[playerID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	if event == game.MsgWelcome {
		c.welcomed.Store(true)
	}
	if c.queueFrame(data) {
		h.framesSent.Add(1)
		RecordBytesSent(len(data))
	} else {
		h.framesDropped.Add(1)
		RecordFrameDropped()
	}
}

// ClientCount reports how many sockets are registered.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns cumulative sent and dropped frame counts.
func (h *Hub) Stats() (sent, dropped uint64) {
	return h.framesSent.Load(), h.framesDropped.Load()
}

// CloseAll tears down every client, used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
	}
	UpdateWSConnections(0)
}
