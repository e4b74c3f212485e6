// Package meter computes per-channel peak and RMS levels on the real-time
// thread and publishes them to control-side readers.
package meter

import (
	"errors"
	"math"
	"runtime"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"iocapture/internal/audio"
)

// ErrChannelMismatch is returned by HandleCycle when a cycle does not have
// the channel count the meter was built for.
var ErrChannelMismatch = errors.New("meter: channel count mismatch")

const fullScale = float64(math.MaxInt32)

// Levels is a snapshot of the most recent metered cycle. Values are
// normalised to 0..1 of full scale.
type Levels struct {
	Seq  uint64    `json:"seq"`
	Peak []float64 `json:"peak"`
	RMS  []float64 `json:"rms"`
}

// Source is anything that can produce level snapshots.
type Source interface {
	Snapshot(l *Levels)
}

// Meter is an audio.Handler. HandleCycle does not allocate; readers use
// Snapshot from any goroutine.
type Meter struct {
	channels int
	scratch  []float64 // One channel of one cycle.

	version atomic.Uint64 // Odd while HandleCycle is publishing.
	seq     atomic.Uint64
	peak    []atomic.Uint64 // math.Float64bits
	rms     []atomic.Uint64
}

// New returns a meter for channels interleaved channels and cycles of up to
// maxFrames frames. Longer cycles are metered on their first maxFrames.
func New(channels, maxFrames int) *Meter {
	return &Meter{
		channels: channels,
		scratch:  make([]float64, maxFrames),
		peak:     make([]atomic.Uint64, channels),
		rms:      make([]atomic.Uint64, channels),
	}
}

// Channels returns the metered channel count.
func (m *Meter) Channels() int {
	return m.channels
}

// HandleCycle implements audio.Handler.
func (m *Meter) HandleCycle(c *audio.Cycle) error {
	if c.Channels != m.channels {
		return ErrChannelMismatch
	}
	if m.channels == 0 {
		return nil
	}
	frames := min(c.Frames, len(m.scratch), len(c.Samples)/m.channels)
	if frames == 0 {
		return nil
	}

	m.version.Add(1)
	buf := m.scratch[:frames]
	for ch := 0; ch < m.channels; ch++ {
		for f := range buf {
			buf[f] = float64(c.Samples[f*m.channels+ch]) / fullScale
		}
		peak := math.Max(floats.Max(buf), -floats.Min(buf))
		rms := floats.Norm(buf, 2) / math.Sqrt(float64(frames))
		m.peak[ch].Store(math.Float64bits(peak))
		m.rms[ch].Store(math.Float64bits(rms))
	}
	m.seq.Store(c.Seq)
	m.version.Add(1)
	return nil
}

// Snapshot copies the latest levels into l, growing its slices if needed.
// All channels in the snapshot come from the same cycle.
func (m *Meter) Snapshot(l *Levels) {
	if cap(l.Peak) < m.channels {
		l.Peak = make([]float64, m.channels)
	}
	if cap(l.RMS) < m.channels {
		l.RMS = make([]float64, m.channels)
	}
	l.Peak = l.Peak[:m.channels]
	l.RMS = l.RMS[:m.channels]

	for {
		v := m.version.Load()
		if v&1 == 1 {
			runtime.Gosched()
			continue
		}
		for ch := range l.Peak {
			l.Peak[ch] = math.Float64frombits(m.peak[ch].Load())
			l.RMS[ch] = math.Float64frombits(m.rms[ch].Load())
		}
		l.Seq = m.seq.Load()
		if m.version.Load() == v {
			return
		}
	}
}

// DBFS converts a normalised level to decibels relative to full scale.
// Silence maps to -Inf.
func DBFS(level float64) float64 {
	return 20 * math.Log10(level)
}

var _ audio.Handler = (*Meter)(nil)
