package match

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"microcraft/internal/api"
	"microcraft/internal/archive"
	"microcraft/internal/config"
	"microcraft/internal/game"
	"microcraft/internal/logger"
	"microcraft/internal/render"
)

// archiveMaxRows bounds the in-memory Parquet buffer of one run.
const archiveMaxRows = 2_000_000

// Outputs are the optional sinks of a match: PNG frames, the NDJSON event
// log and the Parquet archive. Each is nil when its config entry is empty.
type Outputs struct {
	EventLog *game.EventLog
	Archive  *archive.Recorder
	Frames   *render.FrameWriter

	engine      *game.Engine
	cfg         config.OutputConfig
	renderer    *render.FrameRenderer
	events      <-chan []game.Event
	unsubscribe func()

	live        bool
	stopPump    context.CancelFunc
	pumpDone    chan struct{}
	consumeDone chan struct{}

	log *logrus.Entry
}

// OpenOutputs creates the configured sinks and attaches them to engine.
func OpenOutputs(engine *game.Engine, cfg config.OutputConfig, runID string) (*Outputs, error) {
	o := &Outputs{engine: engine, cfg: cfg, log: logger.Component("outputs")}

	if cfg.EventLog != "" {
		o.EventLog = game.NewEventLog()
		if err := o.EventLog.Start(cfg.EventLog); err != nil {
			return nil, fmt.Errorf("outputs: event log: %w", err)
		}
		engine.SetEventLog(o.EventLog)
		o.log.WithField("path", cfg.EventLog).Info("📝 Event log enabled")
	}

	if cfg.FrameDir != "" {
		if err := os.MkdirAll(cfg.FrameDir, 0o755); err != nil {
			o.closeEventLog()
			return nil, fmt.Errorf("outputs: frames: %w", err)
		}
		ring := render.NewFrameRing()
		o.renderer = render.NewFrameRenderer(render.FrameConfig{
			CellSize: cfg.CellSize,
			Faction:  game.Faction(cfg.ViewFaction),
			Every:    cfg.FrameEvery,
		}, ring)
		o.Frames = render.NewFrameWriter(ring, render.DirSink{Dir: cfg.FrameDir})
		o.Frames.SetOnFailed(func(err error) {
			o.log.WithError(err).Error("🔴 Frames disabled")
		})
		o.log.WithFields(logrus.Fields{"dir": cfg.FrameDir, "every": cfg.FrameEvery}).Info("🖼️ Frames enabled")
	}

	if cfg.ArchivePath != "" {
		o.Archive = archive.NewRecorder(runID, archiveMaxRows)
		o.events, o.unsubscribe = engine.Subscribe(256)
		o.log.WithField("path", cfg.ArchivePath).Info("🗄️ Event archive enabled")
	}

	return o, nil
}

// Live runs the sinks on their own goroutines, for an engine driven by
// Start. tickRate paces the frame pump.
func (o *Outputs) Live(ctx context.Context, tickRate int) {
	o.live = true
	if o.Archive != nil {
		o.consumeDone = make(chan struct{})
		go func() {
			defer close(o.consumeDone)
			o.Archive.Consume(o.events)
		}()
	}
	if o.renderer != nil {
		interval := time.Second / time.Duration(max(1, tickRate))
		o.Frames.Start(interval * 2)

		pumpCtx, cancel := context.WithCancel(ctx)
		o.stopPump = cancel
		o.pumpDone = make(chan struct{})
		go func() {
			defer close(o.pumpDone)
			if err := render.Pump(pumpCtx, o.engine, o.renderer, interval); err != nil {
				o.log.WithError(err).Error("❌ Frame pump stopped")
			}
		}()
	}
}

// Sync feeds the sinks on the caller's goroutine, for an engine driven by
// Step. Call it after every tick.
func (o *Outputs) Sync() error {
	if o.Archive != nil {
		for pending := true; pending; {
			select {
			case batch := <-o.events:
				o.Archive.Add(batch)
			default:
				pending = false
			}
		}
	}
	if o.renderer != nil {
		if err := o.renderer.Render(o.engine.Snapshot()); err != nil {
			return fmt.Errorf("outputs: frame: %w", err)
		}
		o.Frames.Flush()
	}
	return nil
}

// Stats lists the sinks for /api/stats.
func (o *Outputs) Stats() map[string]api.StatsSource {
	out := make(map[string]api.StatsSource)
	if o.EventLog != nil {
		out["eventLog"] = o.EventLog
	}
	if o.Frames != nil {
		out["frames"] = o.Frames
	}
	if o.Archive != nil {
		out["archive"] = o.Archive
	}
	return out
}

// Close stops the sinks, flushing frames and the event log and writing the
// archive.
func (o *Outputs) Close() error {
	var errs []error

	if o.stopPump != nil {
		o.stopPump()
		<-o.pumpDone
	}
	if o.Frames != nil {
		if o.live {
			o.Frames.Stop()
		} else {
			o.Frames.Flush()
		}
	}

	if o.Archive != nil {
		o.unsubscribe()
		if o.consumeDone != nil {
			<-o.consumeDone
		} else {
			// The channel is closed now, so this drains what is left.
			for batch := range o.events {
				o.Archive.Add(batch)
			}
		}
		if err := o.Archive.WriteFile(o.cfg.ArchivePath); err != nil {
			errs = append(errs, err)
		}
	}

	o.closeEventLog()
	return errors.Join(errs...)
}

func (o *Outputs) closeEventLog() {
	if o.EventLog != nil {
		o.EventLog.Stop()
	}
}
