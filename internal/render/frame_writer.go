package render

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"microcraft/internal/logger"
	"microcraft/internal/metrics"
)

// MaxConsecutiveErrors before the writer gives up on its sink.
const MaxConsecutiveErrors = 10

// FrameSink stores encoded frames.
type FrameSink interface {
	WriteFrame(f Frame) error
}

// DirSink writes each frame to Dir as frame_<tick>.png.
type DirSink struct {
	Dir string
}

// WriteFrame implements FrameSink.
func (d DirSink) WriteFrame(f Frame) error {
	path := filepath.Join(d.Dir, fmt.Sprintf("frame_%08d.png", f.Tick))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, f.Data, 0o644); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename frame: %w", err)
	}
	return nil
}

// FrameWriter moves frames from a ring to a sink on its own goroutine so disk
// latency never reaches the renderer.
type FrameWriter struct {
	ring     *FrameRing
	sink     FrameSink
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  int32 // atomic

	framesWritten     uint64
	writeErrors       uint64
	consecutiveErrors int32 // atomic
	failed            int32 // atomic
	maxWriteTimeNs    int64 // atomic

	mu       sync.RWMutex
	onFailed func(error)

	log *logrus.Entry
}

// NewFrameWriter creates a writer from ring to sink.
func NewFrameWriter(ring *FrameRing, sink FrameSink) *FrameWriter {
	return &FrameWriter{
		ring:     ring,
		sink:     sink,
		stopChan: make(chan struct{}),
		log:      logger.Component("frames"),
	}
}

// SetOnFailed sets a callback run once the sink has failed
// MaxConsecutiveErrors times in a row.
func (w *FrameWriter) SetOnFailed(callback func(error)) {
	w.mu.Lock()
	w.onFailed = callback
	w.mu.Unlock()
}

// Failed reports whether the writer has given up on the sink.
func (w *FrameWriter) Failed() bool {
	return atomic.LoadInt32(&w.failed) == 1
}

// Start polls the ring every interval.
func (w *FrameWriter) Start(interval time.Duration) {
	if !atomic.CompareAndSwapInt32(&w.running, 0, 1) {
		return
	}
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	atomic.StoreInt32(&w.failed, 0)
	atomic.StoreInt32(&w.consecutiveErrors, 0)
	w.stopChan = make(chan struct{})
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		w.log.WithField("interval", interval).Info("🖼️ Frame writer started")

		for {
			select {
			case <-w.stopChan:
				w.drain()
				return
			case <-ticker.C:
				w.drain()
			}
		}
	}()
}

// Flush writes every buffered frame on the caller's goroutine. It is for
// callers that never Start the writer; the ring has a single consumer.
func (w *FrameWriter) Flush() {
	if w.IsRunning() {
		return
	}
	w.drain()
}

// drain writes every frame currently in the ring.
func (w *FrameWriter) drain() {
	for {
		if atomic.LoadInt32(&w.failed) == 1 {
			return
		}
		f, ok := w.ring.TryRead()
		if !ok {
			return
		}
		w.write(f)
	}
}

func (w *FrameWriter) write(f Frame) {
	start := time.Now()
	err := w.sink.WriteFrame(f)
	elapsed := time.Since(start)

	if err != nil {
		atomic.AddUint64(&w.writeErrors, 1)
		metrics.RecordFrame("error")
		count := atomic.AddInt32(&w.consecutiveErrors, 1)
		if count <= 5 {
			w.log.WithError(err).WithField("tick", f.Tick).Warn("❌ Frame write failed")
		}
		if count >= MaxConsecutiveErrors && atomic.CompareAndSwapInt32(&w.failed, 0, 1) {
			w.log.WithField("errors", count).Error("🔴 Frame sink failed, frames disabled")
			w.mu.RLock()
			callback := w.onFailed
			w.mu.RUnlock()
			if callback != nil {
				go callback(err)
			}
		}
		return
	}

	atomic.StoreInt32(&w.consecutiveErrors, 0)
	atomic.AddUint64(&w.framesWritten, 1)
	metrics.RecordFrame("written")
	if ns := elapsed.Nanoseconds(); ns > atomic.LoadInt64(&w.maxWriteTimeNs) {
		atomic.StoreInt64(&w.maxWriteTimeNs, ns)
	}
}

// Stop writes whatever is still buffered and waits for the goroutine.
func (w *FrameWriter) Stop() {
	if !atomic.CompareAndSwapInt32(&w.running, 1, 0) {
		return
	}

	close(w.stopChan)
	w.wg.Wait()
	w.log.WithField("written", atomic.LoadUint64(&w.framesWritten)).Info("🖼️ Frame writer stopped")
}

// IsRunning returns whether the writer goroutine is running.
func (w *FrameWriter) IsRunning() bool {
	return atomic.LoadInt32(&w.running) == 1
}

// GetStats returns writer statistics.
func (w *FrameWriter) GetStats() map[string]interface{} {
	bufWritten, bufDropped, bufRead := w.ring.GetStats()

	return map[string]interface{}{
		"framesWritten":     atomic.LoadUint64(&w.framesWritten),
		"writeErrors":       atomic.LoadUint64(&w.writeErrors),
		"consecutiveErrors": atomic.LoadInt32(&w.consecutiveErrors),
		"failed":            atomic.LoadInt32(&w.failed) == 1,
		"maxWriteTimeMs":    float64(atomic.LoadInt64(&w.maxWriteTimeNs)) / 1e6,
		"bufferAvailable":   w.ring.Available(),
		"bufferWritten":     bufWritten,
		"bufferDropped":     bufDropped,
		"bufferRead":        bufRead,
	}
}
