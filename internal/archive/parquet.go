// Package archive records simulation events into Parquet files for offline
// analysis of finished matches.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
	"github.com/sirupsen/logrus"

	"microcraft/internal/game"
	"microcraft/internal/logger"
	"microcraft/internal/metrics"
)

// SchemaVersion is stored in the file metadata.
const SchemaVersion = "event_v1"

// EventRow is one event as stored in the archive.
type EventRow struct {
	RunID    string `parquet:"run_id,dict"`
	Sequence uint64 `parquet:"sequence"`
	Tick     uint64 `parquet:"tick"`
	Type     string `parquet:"type,dict"`
	Faction  int32  `parquet:"faction"`
	Other    int32  `parquet:"other_faction"`
	EntityID uint64 `parquet:"entity_id"`
	// Payload is the event's JSON payload, empty when it has none.
	Payload []byte `parquet:"payload,optional,zstd"`
}

// Recorder buffers event rows for one run. Once MaxRows rows are held,
// further events are counted and discarded.
type Recorder struct {
	runID   string
	maxRows int

	mu      sync.Mutex
	rows    []EventRow
	dropped uint64

	log *logrus.Entry
}

// NewRecorder creates a recorder for runID. maxRows <= 0 means unbounded.
func NewRecorder(runID string, maxRows int) *Recorder {
	return &Recorder{
		runID:   runID,
		maxRows: maxRows,
		log:     logger.Component("archive").WithField("run", runID),
	}
}

// Add appends a batch of events.
func (r *Recorder) Add(events []game.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, ev := range events {
		if r.maxRows > 0 && len(r.rows) >= r.maxRows {
			r.dropped += uint64(len(events) - added)
			break
		}
		r.rows = append(r.rows, EventRow{
			RunID:    r.runID,
			Sequence: ev.Sequence,
			Tick:     ev.TickNum,
			Type:     ev.Type.String(),
			Faction:  int32(ev.Faction),
			Other:    int32(ev.Other),
			EntityID: uint64(ev.EntityID),
			Payload:  append([]byte(nil), ev.Payload...),
		})
		added++
	}
	metrics.AddArchiveRows(added)
}

// Consume adds every batch from ch until it is closed. Run it on its own
// goroutine against an engine subscription.
func (r *Recorder) Consume(ch <-chan []game.Event) {
	for batch := range ch {
		r.Add(batch)
	}
}

// Len returns the number of buffered rows.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// Dropped returns the number of events discarded past MaxRows.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// GetStats returns recorder counters
func (r *Recorder) GetStats() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]interface{}{
		"run":     r.runID,
		"rows":    len(r.rows),
		"dropped": r.dropped,
	}
}

// Rows returns a copy of the buffered rows.
func (r *Recorder) Rows() []EventRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventRow(nil), r.rows...)
}

// WriteFile writes the buffered rows to outPath. The file is written next to
// the target and renamed into place.
func (r *Recorder) WriteFile(outPath string) error {
	rows := r.Rows()
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", SchemaVersion),
		parquet.KeyValueMetadata("run_id", r.runID),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("rename parquet: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"path":    outPath,
		"rows":    len(rows),
		"dropped": r.Dropped(),
	}).Info("📦 Event archive written")
	return nil
}

// ReadFile loads an archive written by WriteFile.
func ReadFile(path string) ([]EventRow, error) {
	rows, err := parquet.ReadFile[EventRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return rows, nil
}

// CountByType tallies rows by event type name.
func CountByType(rows []EventRow) map[string]int {
	out := make(map[string]int)
	for _, row := range rows {
		out[row.Type]++
	}
	return out
}
