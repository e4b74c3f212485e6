// Package transport carries level snapshots off the machine.
package transport

import (
	"context"
	"errors"
	"time"

	"iocapture/internal/events"
	applog "iocapture/internal/log"
	"iocapture/internal/meter"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

// Transport defines a generic interface for sending level frames or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// PublishLevels snapshots src every interval and sends the result to each
// transport as an events.LevelEvent until ctx is done. Cycles that did not
// advance since the previous tick are skipped.
func PublishLevels(ctx context.Context, src meter.Source, interval time.Duration, sinks ...Transport) error {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		levels  meter.Levels
		lastSeq uint64
		sent    bool
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			src.Snapshot(&levels)
			if sent && levels.Seq == lastSeq {
				continue
			}
			lastSeq, sent = levels.Seq, true

			ev := events.LevelEvent{
				Seq:       levels.Seq,
				Peak:      append([]float64(nil), levels.Peak...),
				RMS:       append([]float64(nil), levels.RMS...),
				Timestamp: now,
			}
			for _, t := range sinks {
				if err := t.Send(ev); err != nil && !errors.Is(err, ErrClosed) {
					applog.Debugf("Transport: send failed: %v", err)
				}
			}
		}
	}
}
