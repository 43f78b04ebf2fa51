// Package render turns published snapshots into something a person can look
// at and turns their input back into commands. Every renderer reads only
// immutable snapshots and writes only through the engine inbox, so any number
// of them can run next to the tick without touching simulation state.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"microcraft/internal/game"
	"microcraft/internal/logger"
)

// ErrClosed is returned by Render once the renderer has shut down.
var ErrClosed = errors.New("render: renderer closed")

// Renderer draws snapshots and reports player input.
type Renderer interface {
	Render(snap *game.Snapshot) error
	PollInput() (game.Command, bool)
}

// Source is where a renderer gets its snapshots and sends its commands.
// *game.Engine satisfies it.
type Source interface {
	Snapshot() *game.Snapshot
	Submit(cmd game.Command) error
}

// Pump connects r to src until ctx is done or the renderer closes. Each
// interval it forwards pending input and renders the latest snapshot if it
// has not been rendered yet.
func Pump(ctx context.Context, src Source, r Renderer, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second / 30
	}
	log := logger.Component("render")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last uint64
	rendered := false
	for {
		for {
			cmd, ok := r.PollInput()
			if !ok {
				break
			}
			if err := src.Submit(cmd); err != nil {
				log.WithError(err).WithField("type", cmd.Type.String()).Warn("command not queued")
			}
		}

		if snap := src.Snapshot(); snap != nil && (!rendered || snap.Sequence != last) {
			if err := r.Render(snap); err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				return fmt.Errorf("render tick %d: %w", snap.Tick, err)
			}
			last = snap.Sequence
			rendered = true
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
