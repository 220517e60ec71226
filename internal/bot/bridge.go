package bot

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tankwar/internal/config"
	"tankwar/internal/game"
	"tankwar/internal/game/spatial"
	"tankwar/internal/world"
)

const commandQueueCap = 256

// Bridge runs the Worker on its own goroutine and connects it to the tick
// loop through channels. Both loop-facing calls are non-blocking: a slow
// worker costs bot freshness for a tick, never frame budget. A panicking
// worker is reported as an error event and replaced after a backoff.
type Bridge struct {
	cfg    config.AppConfig
	planet *world.Planet

	in   chan game.TickInput
	out  chan game.TickOutput
	cmds *spatial.LockFreeQueue[game.BotCommand]

	missed  atomic.Uint64
	dropped atomic.Uint64

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ game.BotBridge = (*Bridge)(nil)

// NewBridge wires a bridge over the shared immutable planet. Call Start
// before the first tick.
func NewBridge(cfg config.AppConfig, planet *world.Planet) *Bridge {
	return &Bridge{
		cfg:    cfg,
		planet: planet,
		// Steady state holds at most one input and two outputs in flight.
		// The extra output slots absorb a worker catching up after a stall.
		in:       make(chan game.TickInput, 1),
		out:      make(chan game.TickOutput, 4),
		cmds:     spatial.NewLockFreeQueue[game.BotCommand](commandQueueCap),
		stopChan: make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (br *Bridge) Start() {
	br.wg.Add(1)
	go br.run()
}

// Stop shuts the worker down and waits for it to exit.
func (br *Bridge) Stop() {
	br.stopOnce.Do(func() { close(br.stopChan) })
	br.wg.Wait()
}

// Dispatch hands the worker this tick's input without blocking. If the
// worker still holds the previous input the new one is dropped and counted.
func (br *Bridge) Dispatch(in game.TickInput) {
	select {
	case br.in <- in:
	default:
		br.dropped.Add(1)
	}
}

// Collect returns everything the worker produced since the last call,
// merged into one output so a worker catching up after a stall cannot
// replay stale positions over fresh ones.
func (br *Bridge) Collect() (game.TickOutput, bool) {
	var merged game.TickOutput
	ok := false
	for {
		select {
		case out := <-br.out:
			if !ok {
				merged, ok = out, true
			} else {
				merged = mergeOutputs(merged, out)
			}
		default:
			if !ok {
				br.missed.Add(1)
			}
			return merged, ok
		}
	}
}

// Command queues an out-of-band command for the worker. The queue is sized
// far above anything one tick can produce; overflow is dropped and counted.
func (br *Bridge) Command(cmd game.BotCommand) {
	if !br.cmds.TryPush(cmd) {
		br.dropped.Add(1)
	}
}

// MissedTicks returns how many Collect calls found no output.
func (br *Bridge) MissedTicks() uint64 {
	return br.missed.Load()
}

// DroppedMessages returns how many inputs and commands were discarded
// because the worker fell behind.
func (br *Bridge) DroppedMessages() uint64 {
	return br.dropped.Load()
}

// mergeOutputs folds a newer output into an older one. Position buffers and
// state maps are whole-world views, so the newest non-nil one wins;
// projectiles and events accumulate. Shot ids stay unique because the
// worker allocates them monotonically across ticks.
func mergeOutputs(older, newer game.TickOutput) game.TickOutput {
	merged := older
	merged.Tick = newer.Tick
	if newer.BotIDs != nil {
		merged.BotIDs = newer.BotIDs
		merged.Positions = newer.Positions
	}
	if newer.BotStates != nil {
		merged.BotStates = newer.BotStates
	}
	if newer.NextProjectileID > merged.NextProjectileID {
		merged.NextProjectileID = newer.NextProjectileID
	}
	merged.NewProjectiles = append(merged.NewProjectiles, newer.NewProjectiles...)
	merged.Events = append(merged.Events, newer.Events...)
	return merged
}

// run keeps a worker alive until Stop. Each replacement worker is built
// with the same seed and re-censuses the field on its first tick, so a
// crash costs a backoff window of bot updates and nothing else.
func (br *Bridge) run() {
	defer br.wg.Done()
	for {
		w := NewWorker(br.cfg, br.planet)
		log.Printf("🤖 Bot worker online (tanks=%d seed=%d)", br.cfg.Bots.TargetTanks, br.cfg.Bots.BotSeed)
		if br.runWorker(w) {
			log.Printf("🛑 Bot worker stopped")
			return
		}
		log.Printf("⚠️ Restarting bot worker in %.1fs", br.cfg.Bots.RestartBackoff)
		select {
		case <-br.stopChan:
			log.Printf("🛑 Bot worker stopped")
			return
		case <-time.After(time.Duration(br.cfg.Bots.RestartBackoff * float64(time.Second))):
		}
	}
}

// runWorker drives one worker until shutdown or panic. It reports true on
// clean shutdown. A panic is converted into an error event so the main
// loop can log it, and the output view goes stale until the replacement
// worker's first tick.
func (br *Bridge) runWorker(w *Worker) (stopped bool) {
	var lastTick uint64
	defer func() {
		if r := recover(); r != nil {
			log.Printf("💥 Bot worker panic: %v", r)
			br.pushOutput(game.TickOutput{Tick: lastTick, Events: []game.BotEvent{{
				Kind:    game.BotEventError,
				Message: fmt.Sprintf("worker panic: %v", r),
			}}})
			stopped = false
		}
	}()

	buf := make([]game.BotCommand, commandQueueCap)
	for {
		select {
		case <-br.stopChan:
			return true
		case in := <-br.in:
			lastTick = in.Tick
			for {
				n := br.cmds.DrainTo(buf)
				if n == 0 {
					break
				}
				for i := 0; i < n; i++ {
					w.Apply(buf[i])
				}
			}
			br.pushOutput(w.RunTick(in))
		}
	}
}

// pushOutput never blocks: when the consumer has fallen four ticks behind,
// the oldest queued output is sacrificed for the new one.
func (br *Bridge) pushOutput(out game.TickOutput) {
	select {
	case br.out <- out:
		return
	default:
	}
	select {
	case <-br.out:
	default:
	}
	select {
	case br.out <- out:
	default:
		br.dropped.Add(1)
	}
}
