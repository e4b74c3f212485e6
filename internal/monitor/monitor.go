// Package monitor watches a running engine from the control side. It turns
// counter growth into FramesDroppedEvent notifications and declares the
// device lost when a running stream stops producing cycles.
package monitor

import (
	"context"
	"fmt"
	"time"

	"iocapture/internal/audio"
	"iocapture/internal/events"
	applog "iocapture/internal/log"
)

// Engine is the part of audio.Engine the monitor reads.
type Engine interface {
	Stats() audio.Stats
	ReportDeviceLost(cause error)
	DeviceLost() bool
}

// Publisher receives monitor events. *events.Bus satisfies it.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configures a Monitor.
type Options struct {
	PollInterval time.Duration // Default 500ms.
	StallTimeout time.Duration // Zero disables the watchdog.
}

// Monitor polls engine statistics.
type Monitor struct {
	engine Engine
	pub    Publisher
	opts   Options

	prev         audio.Stats
	lastCycles   uint64
	lastProgress time.Time
}

// New returns a monitor for engine. pub may be nil.
func New(engine Engine, pub Publisher, opts Options) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Monitor{engine: engine, pub: pub, opts: opts}
}

// Run polls until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	m.check(time.Now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			m.check(now)
		}
	}
}

func (m *Monitor) check(now time.Time) {
	s := m.engine.Stats()

	ev := events.FramesDroppedEvent{
		Sink:      delta(s.SinkDropped, m.prev.SinkDropped),
		Dispatch:  delta(s.DispatchDropped, m.prev.DispatchDropped),
		Overflows: delta(s.InputOverflows, m.prev.InputOverflows),
		Timestamp: now,
	}
	m.prev = s
	if ev.Sink+ev.Dispatch+ev.Overflows > 0 {
		applog.Warnf("Monitor: dropped %d sink frames, %d handler cycles, %d input overflows",
			ev.Sink, ev.Dispatch, ev.Overflows)
		if m.pub != nil {
			m.pub.Publish(ev)
		}
	}

	m.watch(s, now)
}

func (m *Monitor) watch(s audio.Stats, now time.Time) {
	if s.State != audio.Running || s.Cycles != m.lastCycles || m.lastProgress.IsZero() {
		m.lastCycles = s.Cycles
		m.lastProgress = now
		return
	}
	if m.opts.StallTimeout <= 0 || m.engine.DeviceLost() {
		return
	}
	if stalled := now.Sub(m.lastProgress); stalled >= m.opts.StallTimeout {
		m.engine.ReportDeviceLost(fmt.Errorf("no audio cycles for %s", stalled.Round(time.Millisecond)))
	}
}

func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}
