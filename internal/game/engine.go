package game

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"microcraft/internal/logger"
	"microcraft/internal/metrics"
)

// EngineOptions configures the tick driver.
type EngineOptions struct {
	TickRate        int  // ticks per second for Start
	InboxSize       int  // external commands accepted per tick
	CheckInvariants bool // verify occupancy every tick
}

// DefaultEngineOptions returns 30 TPS with invariant checks on.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		TickRate:        30,
		InboxSize:       256,
		CheckInvariants: true,
	}
}

// Engine is the simulation tick driver. Each tick runs, in order:
// queued commands, movement, combat, economy, occupancy check, visibility,
// opponent controllers, victory check, snapshot, event dispatch.
//
// Everything inside a tick runs on one goroutine under mu. Other goroutines
// only Submit commands and read published snapshots.
type Engine struct {
	mu          sync.Mutex
	world       *World
	controllers []Controller
	aiStates    map[Faction]string
	inbox       *Inbox
	snapshots   SnapshotStore
	opts        EngineOptions

	subsMu      sync.Mutex
	subscribers map[int]chan []Event
	nextSub     int
	eventLog    *EventLog

	halted    error
	lastPaths [2]uint64

	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	doneChan chan struct{}

	log *logrus.Entry
}

// NewEngine wraps a world in a tick driver and publishes the initial snapshot.
func NewEngine(world *World, opts EngineOptions) *Engine {
	if opts.TickRate <= 0 {
		opts.TickRate = 30
	}
	e := &Engine{
		world:       world,
		aiStates:    make(map[Faction]string),
		inbox:       NewInbox(opts.InboxSize),
		opts:        opts,
		subscribers: make(map[int]chan []Event),
		log:         logger.Component("engine"),
	}
	e.snapshots.Publish(world.Snapshot(e.copyAIStates()))
	return e
}

// AddController registers an opponent controller. Controllers run in
// registration order.
func (e *Engine) AddController(c Controller) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.controllers = append(e.controllers, c)
	e.aiStates[c.Faction()] = c.State()
}

// SetEventLog attaches an NDJSON sink that receives every drained event.
func (e *Engine) SetEventLog(el *EventLog) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	e.eventLog = el
}

// Submit queues a command for the next tick. Safe for concurrent use.
func (e *Engine) Submit(cmd Command) error {
	if !e.inbox.TryPush(cmd) {
		return ErrInboxFull
	}
	return nil
}

// Snapshot returns the latest published snapshot. Safe for concurrent use.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshots.Load()
}

// Subscribe returns a channel receiving one batch per tick that produced
// events. A subscriber that falls behind loses batches rather than stalling
// the tick. cancel closes the channel.
func (e *Engine) Subscribe(buffer int) (<-chan []Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan []Event, buffer)

	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = ch
	e.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.subsMu.Lock()
			delete(e.subscribers, id)
			e.subsMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// World exposes the simulation state for setup and tests. Callers must not
// touch it while the engine is running.
func (e *Engine) World() *World { return e.world }

// Step runs one tick. It returns an *InconsistentStateError when the
// occupancy invariant breaks; the engine refuses further ticks after that.
func (e *Engine) Step() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step()
}

// RunTicks runs n ticks back to back, stopping early on error or game over.
func (e *Engine) RunTicks(n int) error {
	for i := 0; i < n; i++ {
		if err := e.Step(); err != nil {
			return err
		}
		if e.world.GameOver() {
			return nil
		}
	}
	return nil
}

func (e *Engine) step() error {
	if e.halted != nil {
		return e.halted
	}
	w := e.world
	if w.gameOver {
		return nil
	}
	start := time.Now()

	w.tick++
	w.events.setTick(w.tick)

	for _, cmd := range e.inbox.Drain() {
		if err := w.Issue(cmd); err != nil {
			e.log.WithFields(logrus.Fields{
				"tick":    w.tick,
				"faction": cmd.Faction,
				"command": cmd.Type.String(),
			}).WithError(err).Debug("command rejected")
		}
	}

	if err := w.stepMovement(); err != nil {
		return e.halt(err)
	}
	w.stepCombat()
	w.stepEconomy()

	if e.opts.CheckInvariants {
		if err := w.CheckInvariants(); err != nil {
			return e.halt(err)
		}
	}

	w.UpdateVisibility()

	for _, c := range e.controllers {
		f := c.Faction()
		if w.eliminated[f] {
			continue
		}
		before := c.State()
		c.Update(w.ViewFor(f), w.CommanderFor(f))
		if after := c.State(); after != before {
			w.events.Emit(EventTypeAIStateChanged, f, 0, AIStatePayload{From: before, To: after})
			metrics.RecordAITransition(before, after)
			e.log.WithFields(logrus.Fields{
				"tick":    w.tick,
				"faction": f,
				"from":    before,
				"to":      after,
			}).Info("opponent state changed")
		}
		e.aiStates[f] = c.State()
	}

	w.checkVictory()
	w.reap()

	e.snapshots.Publish(w.Snapshot(e.copyAIStates()))
	e.dispatch(w.events.Drain())

	stats := w.pathfinder.Stats()
	metrics.AddPathStats(stats.Requests-e.lastPaths[0], stats.Failures-e.lastPaths[1])
	e.lastPaths = [2]uint64{stats.Requests, stats.Failures}
	metrics.RecordTick(time.Since(start), w.EntityCount())

	if w.gameOver {
		e.log.WithFields(logrus.Fields{
			"tick":   w.tick,
			"winner": w.winner,
		}).Info("game over")
	}
	return nil
}

func (e *Engine) halt(err error) error {
	e.halted = err
	var inconsistent *InconsistentStateError
	entry := e.log.WithField("tick", e.world.tick).WithError(err)
	if errors.As(err, &inconsistent) {
		entry = entry.WithFields(logrus.Fields{
			"cell":   inconsistent.Cell,
			"entity": inconsistent.Entity,
		})
	}
	entry.Error("simulation halted")
	return err
}

// dispatch fans a tick's events out to the event log and subscribers.
func (e *Engine) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		metrics.RecordEvent(ev.Type.String())
		if ev.Type == EventTypeCommandRejected {
			var p CommandRejectedPayload
			if DecodePayload(ev.Payload, &p) == nil {
				metrics.RecordCommandRejected(p.Reason)
			}
		}
	}

	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	if e.eventLog != nil {
		e.eventLog.EmitBatch(events)
	}
	for _, ch := range e.subscribers {
		select {
		case ch <- events:
		default:
			metrics.RecordEventsDropped()
		}
	}
}

func (e *Engine) copyAIStates() map[Faction]string {
	if len(e.aiStates) == 0 {
		return nil
	}
	out := make(map[Faction]string, len(e.aiStates))
	for f, s := range e.aiStates {
		out[f] = s
	}
	return out
}

// Start begins the game loop
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.doneChan = make(chan struct{})
	e.ticker = time.NewTicker(time.Second / time.Duration(e.opts.TickRate))
	ticker, stop, done := e.ticker, e.stopChan, e.doneChan
	e.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ticker.C:
				if err := e.Step(); err != nil {
					ticker.Stop()
					return
				}
			case <-stop:
				return
			}
		}
	}()

	e.log.WithField("tps", e.opts.TickRate).Info("🎮 Simulation started")
}

// Stop stops the game loop and waits for the current tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.ticker.Stop()
	close(e.stopChan)
	done := e.doneChan
	e.mu.Unlock()

	<-done
	e.log.Info("🛑 Simulation stopped")
}

// Halted returns the error that stopped the simulation, if any.
func (e *Engine) Halted() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// EngineStats is a summary for the API and logs.
type EngineStats struct {
	Tick        uint64             `json:"tick"`
	Entities    int                `json:"entities"`
	Resources   map[Faction]int    `json:"resources"`
	AIStates    map[Faction]string `json:"aiStates,omitempty"`
	Pending     int                `json:"pendingCommands"`
	Subscribers int                `json:"subscribers"`
	GameOver    bool               `json:"gameOver"`
	Winner      Faction            `json:"winner,omitempty"`
	EventLog    map[string]any     `json:"eventLog,omitempty"`
}

// Stats summarizes the latest snapshot.
func (e *Engine) Stats() EngineStats {
	snap := e.Snapshot()
	stats := EngineStats{
		Tick:      snap.Tick,
		Entities:  len(snap.Entities),
		Resources: snap.Resources,
		AIStates:  snap.AIStates,
		Pending:   e.inbox.Len(),
		GameOver:  snap.GameOver,
		Winner:    snap.Winner,
	}
	e.subsMu.Lock()
	stats.Subscribers = len(e.subscribers)
	if e.eventLog != nil {
		stats.EventLog = e.eventLog.GetStats()
	}
	e.subsMu.Unlock()
	return stats
}
