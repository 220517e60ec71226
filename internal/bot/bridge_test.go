package bot

import (
	"strings"
	"testing"
	"time"

	"tankwar/internal/game"
)

func TestMergeOutputs(t *testing.T) {
	older := game.TickOutput{
		Tick:             10,
		BotIDs:           []string{"bot-1"},
		Positions:        make([]float32, game.BotStride),
		NextProjectileID: 100,
		NewProjectiles:   []game.BotShot{{ID: 90}},
		Events:           []game.BotEvent{{Kind: game.BotEventDamage, BotID: "bot-1"}},
		BotStates:        map[string]game.TankWire{"bot-1": {HP: 70}},
	}
	newer := game.TickOutput{
		Tick:             11,
		BotIDs:           []string{"bot-1", "bot-2"},
		Positions:        make([]float32, 2*game.BotStride),
		NextProjectileID: 102,
		NewProjectiles:   []game.BotShot{{ID: 100}, {ID: 101}},
		Events:           []game.BotEvent{{Kind: game.BotEventDeath, BotID: "bot-1"}},
		BotStates:        map[string]game.TankWire{"bot-1": {HP: 0}, "bot-2": {HP: 100}},
	}

	m := mergeOutputs(older, newer)
	if m.Tick != 11 {
		t.Fatalf("merged tick = %d, want 11", m.Tick)
	}
	if len(m.BotIDs) != 2 || len(m.Positions) != 2*game.BotStride {
		t.Fatal("newest position view should win")
	}
	if m.NextProjectileID != 102 {
		t.Fatalf("merged NextProjectileID = %d, want 102", m.NextProjectileID)
	}
	if len(m.NewProjectiles) != 3 || m.NewProjectiles[0].ID != 90 || m.NewProjectiles[2].ID != 101 {
		t.Fatalf("projectiles should accumulate in order, got %+v", m.NewProjectiles)
	}
	if len(m.Events) != 2 || m.Events[0].Kind != game.BotEventDamage || m.Events[1].Kind != game.BotEventDeath {
		t.Fatalf("events should accumulate in order, got %+v", m.Events)
	}
	if m.BotStates["bot-1"].HP != 0 {
		t.Fatal("newest state map should win")
	}

	// An error-only output, as pushed after a worker panic, keeps the last
	// good world view and only appends its event.
	errOut := game.TickOutput{
		Tick:   12,
		Events: []game.BotEvent{{Kind: game.BotEventError, Message: "worker panic: boom"}},
	}
	m = mergeOutputs(m, errOut)
	if m.Tick != 12 {
		t.Fatalf("merged tick = %d, want 12", m.Tick)
	}
	if len(m.BotIDs) != 2 || m.BotStates == nil {
		t.Fatal("error output must not wipe the world view")
	}
	if m.NextProjectileID != 102 {
		t.Fatalf("error output moved NextProjectileID to %d", m.NextProjectileID)
	}
	if len(m.Events) != 3 || m.Events[2].Kind != game.BotEventError {
		t.Fatalf("error event lost in merge: %+v", m.Events)
	}
}

func TestBridgeCollectEmptyCountsMiss(t *testing.T) {
	br := NewBridge(botTestConfig(), botTestPlanet())
	if _, ok := br.Collect(); ok {
		t.Fatal("Collect returned output from an idle bridge")
	}
	if br.MissedTicks() != 1 {
		t.Fatalf("MissedTicks = %d, want 1", br.MissedTicks())
	}
	if _, ok := br.Collect(); ok {
		t.Fatal("Collect returned output from an idle bridge")
	}
	if br.MissedTicks() != 2 {
		t.Fatalf("MissedTicks = %d, want 2", br.MissedTicks())
	}
}

func TestBridgeDispatchNeverBlocks(t *testing.T) {
	br := NewBridge(botTestConfig(), botTestPlanet())
	// No worker is running, so the second dispatch finds the slot full.
	br.Dispatch(tickInput(1, 1, nil))
	br.Dispatch(tickInput(2, 1, nil))
	if br.DroppedMessages() != 1 {
		t.Fatalf("DroppedMessages = %d, want 1", br.DroppedMessages())
	}
}

func TestBridgeLifecycle(t *testing.T) {
	cfg := botTestConfig()
	cfg.Bots.TargetTanks = 4
	br := NewBridge(cfg, botTestPlanet())
	br.Start()
	defer br.Stop()

	waitOutput := func(minTick uint64) game.TickOutput {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if out, ok := br.Collect(); ok && out.Tick >= minTick {
				return out
			}
			time.Sleep(time.Millisecond)
		}
		t.Fatalf("no worker output for tick %d within 2s", minTick)
		return game.TickOutput{}
	}

	br.Dispatch(tickInput(1, 50, nil))
	out := waitOutput(1)
	if len(out.BotIDs) != 4 {
		t.Fatalf("worker booted %d bots, want 4", len(out.BotIDs))
	}

	// Commands queued before an input apply before that tick runs.
	br.Command(game.BotCommand{Kind: game.BotCommandDespawn})
	br.Dispatch(tickInput(2, 50, nil))
	out = waitOutput(2)
	if len(out.BotIDs) != 3 {
		t.Fatalf("despawn command left %d bots, want 3", len(out.BotIDs))
	}
}

func TestBridgeWorkerPanicReported(t *testing.T) {
	cfg := botTestConfig()
	cfg.Bots.TargetTanks = 4
	cfg.Bots.RestartBackoff = 0.01

	// A planet with no portals makes the first spawn panic. The panic must
	// surface as an error event on the loop side, never as a crash.
	broken := *botTestPlanet()
	broken.Portals = nil

	br := NewBridge(cfg, &broken)
	br.Start()
	defer br.Stop()

	br.Dispatch(tickInput(1, 1, nil))

	var errEv *game.BotEvent
	deadline := time.Now().Add(2 * time.Second)
	for errEv == nil && time.Now().Before(deadline) {
		if out, ok := br.Collect(); ok {
			for i := range out.Events {
				if out.Events[i].Kind == game.BotEventError {
					errEv = &out.Events[i]
					break
				}
			}
		}
		time.Sleep(time.Millisecond)
	}
	if errEv == nil {
		t.Fatal("worker panic never surfaced as an error event")
	}
	if !strings.Contains(errEv.Message, "panic") {
		t.Fatalf("error event message = %q, want a panic report", errEv.Message)
	}
}
