package api

import (
	"encoding/json"
	"testing"

	"tankwar/internal/config"
	"tankwar/internal/game"
)

// testClient builds a hub-only client. The nil conn is fine for queue and
// fan-out paths, which never touch the socket.
func testClient(t *testing.T, pid string) *Client {
	t.Helper()
	srv := &Server{limits: config.DefaultLimits()}
	c := newClient(srv, nil, "127.0.0.1", pid, pid)
	// Most tests exercise post-welcome behavior; the gate has its own test.
	c.welcomed.Store(true)
	return c
}

func drainFrame(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case data := <-c.send:
		env, err := decodeFrame(data)
		if err != nil {
			t.Fatalf("client %s got junk frame: %v", c.playerID, err)
		}
		return env
	default:
		t.Fatalf("client %s has no queued frame", c.playerID)
		return Envelope{}
	}
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	h := NewHub()
	c1 := testClient(t, "p1")
	c2 := testClient(t, "p2")
	h.register(c1)
	h.register(c2)

	h.Broadcast("state", map[string]int{"tick": 9})

	for _, c := range []*Client{c1, c2} {
		env := drainFrame(t, c)
		if env.E != "state" {
			t.Fatalf("event = %q, want state", env.E)
		}
	}
	if sent, dropped := h.Stats(); sent != 2 || dropped != 0 {
		t.Fatalf("stats = %d sent %d dropped, want 2/0", sent, dropped)
	}
}

func TestSendToTargetsOnePlayer(t *testing.T) {
	h := NewHub()
	c1 := testClient(t, "p1")
	c2 := testClient(t, "p2")
	h.register(c1)
	h.register(c2)

	h.SendTo("p2", "portal-confirmed", map[string]float64{"theta": 1.5})

	if len(c1.send) != 0 {
		t.Fatal("p1 received a frame addressed to p2")
	}
	env := drainFrame(t, c2)
	if env.E != "portal-confirmed" {
		t.Fatalf("event = %q, want portal-confirmed", env.E)
	}
}

func TestSendToUnknownPlayerIsSilent(t *testing.T) {
	h := NewHub()
	h.SendTo("ghost", "state", nil)
	if sent, dropped := h.Stats(); sent != 0 || dropped != 0 {
		t.Fatalf("stats = %d/%d, want 0/0", sent, dropped)
	}
}

func TestSendToPacksWelcomeWorld(t *testing.T) {
	h := NewHub()
	c := testClient(t, "p1")
	h.register(c)

	h.SendTo("p1", game.MsgWelcome, game.WelcomePacket{
		PlayerID: "p1",
		TickRate: 20,
		World:    testWorldDescription(),
	})

	env := drainFrame(t, c)
	if env.E != game.MsgWelcome {
		t.Fatalf("event = %q, want %q", env.E, game.MsgWelcome)
	}
	var body struct {
		PlayerID string          `json:"playerId"`
		WorldLZ4 string          `json:"worldLz4"`
		World    json.RawMessage `json:"world"`
	}
	if err := json.Unmarshal(env.D, &body); err != nil {
		t.Fatalf("welcome body: %v", err)
	}
	if body.PlayerID != "p1" {
		t.Fatalf("playerId = %q", body.PlayerID)
	}
	if body.WorldLZ4 == "" {
		t.Fatal("welcome is missing the packed world")
	}
	if len(body.World) != 0 {
		t.Fatalf("welcome carries a plain world: %s", body.World)
	}
	desc, err := decodeWorldLZ4(body.WorldLZ4)
	if err != nil {
		t.Fatalf("unpack world: %v", err)
	}
	if desc.TileCount != 42 {
		t.Fatalf("tileCount = %d, want 42", desc.TileCount)
	}
}

func TestSlowClientLosesFramesNotTheLoop(t *testing.T) {
	h := NewHub()
	c := testClient(t, "p1")
	h.register(c)

	// Nothing drains c.send, so the queue fills and further frames drop.
	total := cap(c.send) + 10
	for i := 0; i < total; i++ {
		h.Broadcast("state", map[string]int{"tick": i})
	}

	sent, dropped := h.Stats()
	if sent != uint64(cap(c.send)) {
		t.Fatalf("sent = %d, want %d", sent, cap(c.send))
	}
	if dropped != 10 {
		t.Fatalf("dropped = %d, want 10", dropped)
	}
}

func TestUnregisterOnlyEvictsOwner(t *testing.T) {
	h := NewHub()
	first := testClient(t, "p1")
	h.register(first)

	second := testClient(t, "p1")
	h.register(second) // same player reconnecting displaces the first socket

	select {
	case <-first.done:
	default:
		t.Fatal("displaced socket was not closed")
	}
	if h.unregister(first) {
		t.Fatal("displaced socket evicted its replacement")
	}
	if h.ClientCount() != 1 {
		t.Fatalf("clients = %d, want 1", h.ClientCount())
	}
	if !h.unregister(second) {
		t.Fatal("owner unregister should report the player left")
	}
	if h.ClientCount() != 0 {
		t.Fatalf("clients = %d, want 0", h.ClientCount())
	}
}

// TestBroadcastWaitsForWelcome tests a freshly registered socket sees no
// broadcast traffic until its welcome packet has been queued.
func TestBroadcastWaitsForWelcome(t *testing.T) {
	h := NewHub()
	c := testClient(t, "p1")
	c.welcomed.Store(false)
	h.register(c)

	h.Broadcast("state", map[string]int{"tick": 1})
	select {
	case <-c.send:
		t.Fatal("broadcast reached a socket that was never welcomed")
	default:
	}

	h.SendTo("p1", game.MsgWelcome, game.WelcomePacket{PlayerID: "p1"})
	if env := drainFrame(t, c); env.E != game.MsgWelcome {
		t.Fatalf("event = %q, want %q", env.E, game.MsgWelcome)
	}

	h.Broadcast("state", map[string]int{"tick": 2})
	if env := drainFrame(t, c); env.E != "state" {
		t.Fatalf("event = %q, want state", env.E)
	}
}
