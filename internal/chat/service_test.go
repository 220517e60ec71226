package chat

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"tankwar/internal/config"
	"tankwar/internal/game"
	"tankwar/internal/world"
)

// recordingBroadcaster captures every send for assertions.
type recordingBroadcaster struct {
	mu        sync.Mutex
	broadcast []recordedSend
	direct    []recordedSend
}

type recordedSend struct {
	playerID string
	event    string
	payload  interface{}
}

func (rb *recordingBroadcaster) Broadcast(event string, payload interface{}) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.broadcast = append(rb.broadcast, recordedSend{event: event, payload: payload})
}

func (rb *recordingBroadcaster) SendTo(playerID, event string, payload interface{}) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.direct = append(rb.direct, recordedSend{playerID: playerID, event: event, payload: payload})
}

func (rb *recordingBroadcaster) broadcasts() []recordedSend {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return append([]recordedSend(nil), rb.broadcast...)
}

func (rb *recordingBroadcaster) directs() []recordedSend {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return append([]recordedSend(nil), rb.direct...)
}

func (rb *recordingBroadcaster) directIDs() []string {
	var ids []string
	for _, s := range rb.directs() {
		ids = append(ids, s.playerID)
	}
	return ids
}

var (
	chatPlanetOnce sync.Once
	chatPlanetVal  *world.Planet
)

func chatTestPlanet() *world.Planet {
	chatPlanetOnce.Do(func() {
		cfg := config.Load()
		cfg.World.Subdivision = 4
		cfg.World.PortalCount = 4
		chatPlanetVal = world.Generate(cfg.World)
	})
	return chatPlanetVal
}

func publishRoomState(pool *game.SnapshotPool, players []game.PlayerSnapshot, owned [3]int, commanders [3]string) {
	snap := pool.AcquireWrite()
	snap.Players = append(snap.Players, players...)
	snap.OwnedClusters = owned
	snap.Commanders = commanders
	pool.PublishWrite()
}

func testService(t *testing.T) (*Service, *recordingBroadcaster, *game.SnapshotPool) {
	t.Helper()
	bc := &recordingBroadcaster{}
	pool := game.NewSnapshotPool(64)
	svc := NewService(config.DefaultLimits(), chatTestPlanet(), pool, bc)
	return svc, bc, pool
}

func chatPlayer(id, name string, f game.Faction, theta, phi float64) game.PlayerSnapshot {
	return game.PlayerSnapshot{ID: id, Name: name, Faction: f, Theta: theta, Phi: phi}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"global":    ModeGlobal,
		"GLOBAL":    ModeGlobal,
		"proximity": ModeProximity,
		"lobby":     ModeLobby,
		"":          ModeLobby,
		"shout":     ModeLobby,
		" global ":  ModeGlobal,
	}
	for in, want := range cases {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("  hello there  "); got != "hello there" {
		t.Errorf("trim failed: %q", got)
	}
	if got := Sanitize("a\x00b\tc"); got != "a b c" {
		t.Errorf("control strip failed: %q", got)
	}
	if got := Sanitize("\t \n"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
	long := strings.Repeat("x", MaxTextLen+50)
	if got := Sanitize(long); len([]rune(got)) != MaxTextLen {
		t.Errorf("clamp failed: %d runes", len([]rune(got)))
	}
}

func TestGlobalChatBroadcasts(t *testing.T) {
	svc, bc, pool := testService(t)
	publishRoomState(pool, []game.PlayerSnapshot{
		chatPlayer("p1", "Rusty", game.Factions[0], 0, 1.5),
	}, [3]int{}, [3]string{})

	svc.deliver(inboundMessage{playerID: "p1", text: "hello world", mode: ModeGlobal})

	bs := bc.broadcasts()
	if len(bs) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(bs))
	}
	if bs[0].event != game.MsgChatMessage {
		t.Errorf("wrong event: %s", bs[0].event)
	}
	msg := bs[0].payload.(Message)
	if msg.FromID != "p1" || msg.Name != "Rusty" || msg.Mode != ModeGlobal || msg.Text != "hello world" {
		t.Errorf("bad payload: %+v", msg)
	}
	if len(bc.directs()) != 0 {
		t.Errorf("global chat should not use direct sends")
	}
}

func TestLobbyChatReachesFactionOnly(t *testing.T) {
	svc, bc, pool := testService(t)
	rust, cobalt := game.Factions[0], game.Factions[1]
	publishRoomState(pool, []game.PlayerSnapshot{
		chatPlayer("p1", "A", rust, 0, 1.5),
		chatPlayer("p2", "B", rust, 1, 1.5),
		chatPlayer("p3", "C", cobalt, 2, 1.5),
	}, [3]int{}, [3]string{})

	svc.deliver(inboundMessage{playerID: "p1", text: "rally up", mode: ModeLobby})

	if len(bc.broadcasts()) != 0 {
		t.Fatalf("lobby chat must not broadcast")
	}
	got := bc.directIDs()
	if len(got) != 2 {
		t.Fatalf("expected 2 recipients, got %v", got)
	}
	for _, id := range got {
		if id == "p3" {
			t.Errorf("lobby chat leaked across factions")
		}
	}
}

func TestProximityChatRespectsRange(t *testing.T) {
	svc, bc, pool := testService(t)
	rust, cobalt := game.Factions[0], game.Factions[1]
	// Radius 200 puts the 80-unit earshot at 0.4 rad of arc.
	publishRoomState(pool, []game.PlayerSnapshot{
		chatPlayer("talker", "A", rust, 0, 1.5),
		chatPlayer("near", "B", rust, 0.1, 1.5),
		chatPlayer("nearFoe", "C", cobalt, 0.15, 1.5),
		chatPlayer("far", "D", rust, 1.6, 1.5),
	}, [3]int{}, [3]string{})

	svc.deliver(inboundMessage{playerID: "talker", text: "over here", mode: ModeProximity})

	got := bc.directIDs()
	want := map[string]bool{"talker": true, "near": true, "nearFoe": true}
	if len(got) != len(want) {
		t.Fatalf("expected %d recipients, got %v", len(want), got)
	}
	for _, id := range got {
		if !want[id] {
			t.Errorf("unexpected recipient %s", id)
		}
	}
}

func TestUnknownSenderDropped(t *testing.T) {
	svc, bc, pool := testService(t)
	publishRoomState(pool, nil, [3]int{}, [3]string{})

	svc.deliver(inboundMessage{playerID: "ghost", text: "boo", mode: ModeGlobal})

	if len(bc.broadcasts()) != 0 || len(bc.directs()) != 0 {
		t.Fatal("message from unknown sender was delivered")
	}
	if svc.Dropped() != 1 {
		t.Errorf("expected 1 drop, got %d", svc.Dropped())
	}
}

func TestRateLimitSilencesSpam(t *testing.T) {
	svc, bc, pool := testService(t)
	publishRoomState(pool, []game.PlayerSnapshot{
		chatPlayer("p1", "A", game.Factions[0], 0, 1.5),
	}, [3]int{}, [3]string{})

	for i := 0; i < 10; i++ {
		svc.deliver(inboundMessage{playerID: "p1", text: fmt.Sprintf("spam %d", i), mode: ModeGlobal})
	}

	limit := config.DefaultLimits().MaxChatPerTenSec
	if got := len(bc.broadcasts()); got != limit {
		t.Errorf("expected %d delivered under burst limit, got %d", limit, got)
	}
}

func TestSubmitNeverBlocks(t *testing.T) {
	svc, _, _ := testService(t) // not started, queue only drains on Start

	for i := 0; i < queueSize; i++ {
		if !svc.Submit("p1", "line", "global") {
			t.Fatalf("submit %d rejected before queue was full", i)
		}
	}
	if svc.Submit("p1", "line", "global") {
		t.Fatal("submit succeeded on a full queue")
	}
	if svc.Dropped() == 0 {
		t.Error("drop not counted")
	}
}

func TestServiceLifecycle(t *testing.T) {
	svc, bc, pool := testService(t)
	publishRoomState(pool, []game.PlayerSnapshot{
		chatPlayer("p1", "A", game.Factions[0], 0, 1.5),
	}, [3]int{}, [3]string{})

	svc.Start()
	defer svc.Stop()

	if !svc.Submit("p1", "anyone home?", "global") {
		t.Fatal("submit rejected")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(bc.broadcasts()) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("queued message never delivered")
}
