package game

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	EventBufferSize    = 1024                   // Circular buffer size
	MaxEventsPerSec    = 10000                  // Global rate limit
	MaxEventsPerSide   = 2000                   // Per-faction rate limit per second
	BatchFlushSize     = 64                     // Events per batch write
	BatchFlushInterval = 100 * time.Millisecond // How often to flush
)

// EventLog is an append-only NDJSON sink for drained events. It is bounded
// and rate limited so a runaway match cannot fill the disk; when the buffer
// is full the oldest pending events are dropped.
type EventLog struct {
	mu     sync.Mutex
	buffer [EventBufferSize]Event
	head   int // next read position
	size   int // pending events

	// Rate limiting
	globalLimiter *rate.Limiter
	sideLimiters  map[Faction]*rate.Limiter

	// Async writer
	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	out    io.Writer
	closer io.Closer

	// Stats for monitoring
	droppedCount atomic.Uint64
	totalCount   atomic.Uint64
	writtenCount atomic.Uint64
}

// NewEventLog creates a new bounded event log
func NewEventLog() *EventLog {
	return &EventLog{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		sideLimiters:  make(map[Faction]*rate.Limiter),
		stopChan:      make(chan struct{}),
	}
}

// Start opens filePath for append and begins the async writer goroutine.
func (el *EventLog) Start(filePath string) error {
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	el.StartWriter(file, file)
	return nil
}

// StartWriter begins writing to w. closer may be nil.
func (el *EventLog) StartWriter(w io.Writer, closer io.Closer) {
	if el.running.Load() {
		return
	}
	el.out = w
	el.closer = closer
	el.running.Store(true)
	el.writerWg.Add(1)
	go el.writerLoop()
}

// Stop flushes pending events and closes the output.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		if !el.running.Load() {
			return
		}
		close(el.stopChan)
		el.writerWg.Wait()
		el.running.Store(false)
		if el.closer != nil {
			el.closer.Close()
		}
	})
}

// Emit adds an event with rate limiting.
// Returns false if rate limited or not running.
func (el *EventLog) Emit(event Event) bool {
	if !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		el.droppedCount.Add(1)
		return false
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	// Per-faction limit keeps one side's combat spam from starving the other
	if event.Faction != Neutral {
		limiter, ok := el.sideLimiters[event.Faction]
		if !ok {
			limiter = rate.NewLimiter(MaxEventsPerSide, MaxEventsPerSide/10)
			el.sideLimiters[event.Faction] = limiter
		}
		if !limiter.Allow() {
			el.droppedCount.Add(1)
			return false
		}
	}

	if el.size == EventBufferSize {
		// Drop oldest
		el.head = (el.head + 1) % EventBufferSize
		el.size--
		el.droppedCount.Add(1)
	}
	el.buffer[(el.head+el.size)%EventBufferSize] = event
	el.size++

	el.totalCount.Add(1)
	return true
}

// EmitBatch emits every event of a drained tick.
func (el *EventLog) EmitBatch(events []Event) {
	for _, ev := range events {
		el.Emit(ev)
	}
}

// writerLoop batches and writes events asynchronously
func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)

	for {
		select {
		case <-el.stopChan:
			// Final flush
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}

		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

// collectBatch pops up to BatchFlushSize events
func (el *EventLog) collectBatch(batch []Event) []Event {
	el.mu.Lock()
	defer el.mu.Unlock()

	for el.size > 0 && len(batch) < BatchFlushSize {
		batch = append(batch, el.buffer[el.head])
		el.head = (el.head + 1) % EventBufferSize
		el.size--
	}
	return batch
}

// flushBatch writes events as newline-delimited JSON
func (el *EventLog) flushBatch(batch []Event) {
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		data = append(data, '\n')
		if _, err := el.out.Write(data); err != nil {
			el.droppedCount.Add(1)
			continue
		}
		el.writtenCount.Add(1)
	}
}

// GetStats returns metrics for monitoring
func (el *EventLog) GetStats() map[string]interface{} {
	el.mu.Lock()
	pending := el.size
	el.mu.Unlock()

	return map[string]interface{}{
		"total":   el.totalCount.Load(),
		"written": el.writtenCount.Load(),
		"dropped": el.droppedCount.Load(),
		"pending": pending,
		"running": el.running.Load(),
	}
}

// GetDroppedCount returns the number of dropped events
func (el *EventLog) GetDroppedCount() uint64 {
	return el.droppedCount.Load()
}
