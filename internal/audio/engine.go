// SPDX-License-Identifier: MIT
/*
Package audio implements a real-time capture engine with:
- A device binding that registers one callback with a hardware clock
- Lock-free recording and loopback flags shared with the control thread
- WAV capture through a pre-allocated ring and a background flusher
- Input-to-output loopback with fixed channel mappings
- Per-cycle delivery of captured frames to an application handler

Thread Safety:
- The process callback only uses atomics and pre-allocated buffers
- Control operations are serialised by a mutex the callback never takes
- Sinks are retired only after the callback has left the cycle that used them
*/
package audio

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	applog "iocapture/internal/log"
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Reporter         Reporter      // Receives lifecycle notifications (default: none).
	SinkBufferFrames int           // Recording ring capacity in frames.
	FlushInterval    time.Duration // Recording flusher period.
	Create           CreateFunc    // Recording file factory.
}

// Stats is a point-in-time snapshot of the engine counters.
type Stats struct {
	State            State
	Recording        bool
	Loopback         bool
	Cycles           uint64 // Completed cycles.
	Frames           uint64 // Frames seen by the callback.
	DispatchDropped  uint64 // Cycles the handler failed or panicked on.
	SinkWritten      uint64 // Frames persisted across every take.
	SinkDropped      uint64 // Frames lost to a full ring or a failed sink.
	InputOverflows   uint64 // Cycles the host flagged as input overflow.
	OutputUnderflows uint64 // Cycles the host flagged as output underflow.
	LoopbackCycles   uint64 // Cycles routed to the output.
}

// take is a recording destination with its open sink. It is published to the
// callback through Engine.current.
type take struct {
	Take
	sink    *Sink
	started bool // Recording was enabled on this take. Guarded by Engine.mu.
}

// Engine drives one bound device. Its process method is the only code run
// by the hardware clock; everything else is a control operation.
type Engine struct {
	format   Format
	opts     Options
	reporter Reporter
	binding  *Binding
	controls ControlState
	dispatch dispatcher

	loopback    *Loopback
	loopbackErr error

	// Cycle sequence, odd while a cycle is in flight.
	seq     atomic.Uint64
	current atomic.Pointer[take]
	cycle   Cycle // Reused by the callback for every delivery.

	cycles           atomic.Uint64
	frames           atomic.Uint64
	inputOverflows   atomic.Uint64
	outputUnderflows atomic.Uint64
	loopbackCycles   atomic.Uint64

	deviceLost atomic.Bool

	mu       sync.Mutex // Serialises control operations.
	retiring sync.WaitGroup

	statsMu        sync.Mutex // Guards sinks and the retired totals.
	sinks          map[*Sink]struct{}
	retiredWritten uint64
	retiredDropped uint64

	errMu   sync.Mutex
	lastErr error
}

// NewEngine creates an engine for format on host. The engine is unbound.
func NewEngine(host Host, format Format, opts Options) (*Engine, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		format:   format,
		opts:     opts,
		reporter: opts.Reporter,
		binding:  NewBinding(host, format),
		sinks:    make(map[*Sink]struct{}),
	}
	if e.reporter == nil {
		e.reporter = nopReporter{}
	}
	if format.HasOutput() {
		e.loopback, e.loopbackErr = LoopbackFor(format)
	}
	e.cycle.Channels = format.InputChannels

	return e, nil
}

// Format returns the negotiated stream format.
func (e *Engine) Format() Format {
	return e.format
}

// State returns the binding state.
func (e *Engine) State() State {
	return e.binding.State()
}

// Device returns the bound device.
func (e *Engine) Device() Device {
	return e.binding.Device()
}

// Bind registers the engine with deviceID. A loopback route that cannot be
// built for the format fails here with ErrUnsupportedFormat.
func (e *Engine) Bind(deviceID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loopbackErr != nil {
		return e.loopbackErr
	}
	if err := e.binding.Bind(deviceID, e.process); err != nil {
		return err
	}
	e.deviceLost.Store(false)
	return nil
}

// Start begins cycle delivery.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.binding.Start()
}

// Stop halts cycle delivery. When it returns, no cycle is in flight and none
// will begin.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.binding.Stop()
	if errors.Is(err, ErrInvalidState) {
		return err
	}
	e.waitIdle()
	if err != nil {
		e.setLastError(err)
	}
	return err
}

// Unbind releases the device registration.
func (e *Engine) Unbind() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.binding.Unbind()
}

// SetHandler installs h as the per-cycle handler, replacing any previous one.
// A nil h clears it. The callback observes the change on its next cycle.
func (e *Engine) SetHandler(h Handler) {
	e.dispatch.set(h)
}

// SetLoopbackEnabled toggles routing of captured input to the output side.
func (e *Engine) SetLoopbackEnabled(enabled bool) {
	if enabled && e.loopback == nil {
		applog.Warnf("Engine: loopback enabled but the stream has no output side")
	}
	e.controls.SetLoopbackEnabled(enabled)
}

// IsLoopbackEnabled reports the loopback flag.
func (e *Engine) IsLoopbackEnabled() bool {
	return e.controls.IsLoopbackEnabled()
}

// IsRecordingEnabled reports the recording flag.
func (e *Engine) IsRecordingEnabled() bool {
	return e.controls.IsRecordingEnabled()
}

// RecordingDestination returns the current destination path.
func (e *Engine) RecordingDestination() string {
	return e.controls.RecordingDestination()
}

// CurrentTake returns the take that recording writes to, if one is open.
func (e *Engine) CurrentTake() (Take, bool) {
	if t := e.current.Load(); t != nil {
		return t.Take, true
	}
	return Take{}, false
}

// Stats returns a snapshot of the engine counters. Safe from any thread
// except the callback.
func (e *Engine) Stats() Stats {
	s := Stats{
		State:            e.binding.State(),
		Recording:        e.controls.IsRecordingEnabled(),
		Loopback:         e.controls.IsLoopbackEnabled(),
		Cycles:           e.cycles.Load(),
		Frames:           e.frames.Load(),
		DispatchDropped:  e.dispatch.dropped.Load(),
		InputOverflows:   e.inputOverflows.Load(),
		OutputUnderflows: e.outputUnderflows.Load(),
		LoopbackCycles:   e.loopbackCycles.Load(),
	}

	e.statsMu.Lock()
	s.SinkWritten = e.retiredWritten
	s.SinkDropped = e.retiredDropped
	for sink := range e.sinks {
		s.SinkWritten += sink.FramesWritten()
		s.SinkDropped += sink.FramesDropped()
	}
	e.statsMu.Unlock()

	return s
}

// LastError returns the most recent error raised outside a control call:
// a failed sink, a failed stop or a lost device.
func (e *Engine) LastError() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.lastErr
}

func (e *Engine) setLastError(err error) {
	e.errMu.Lock()
	e.lastErr = err
	e.errMu.Unlock()
}

// ReportDeviceLost records that the bound device stopped delivering cycles.
// Stop and Unbind remain callable afterwards.
func (e *Engine) ReportDeviceLost(cause error) {
	if !e.deviceLost.CompareAndSwap(false, true) {
		return
	}
	err := cause
	if !errors.Is(err, ErrDeviceLost) {
		err = fmt.Errorf("%w: %w", ErrDeviceLost, cause)
	}
	e.setLastError(err)
	applog.Errorf("Engine: %v", err)
	e.reporter.DeviceLost(err)
}

// DeviceLost reports whether the device was declared lost since the last Bind.
func (e *Engine) DeviceLost() bool {
	return e.deviceLost.Load()
}

// Close stops the stream, finalises any recording and unbinds.
func (e *Engine) Close() error {
	var errs []error

	if e.State() == Running {
		if err := e.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.StopRecording(); err != nil {
		errs = append(errs, err)
	}

	e.mu.Lock()
	if t := e.current.Swap(nil); t != nil {
		if err := e.retire(t); err != nil {
			errs = append(errs, err)
		}
	}
	e.mu.Unlock()
	e.retiring.Wait()

	if e.State() == Bound {
		if err := e.Unbind(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// process is the hardware callback. Per cycle, in this order: snapshot the
// control flags, write to the sink, route or silence the output, dispatch.
func (e *Engine) process(in, out []int32, info CycleInfo) {
	seq := e.seq.Add(1)

	recording := e.controls.IsRecordingEnabled()
	loopback := e.controls.IsLoopbackEnabled()
	t := e.current.Load()

	frames := len(in) / e.format.InputChannels
	if info.InputOverflow {
		e.inputOverflows.Add(1)
	}
	if info.OutputUnderflow {
		e.outputUnderflows.Add(1)
	}

	if recording && t != nil {
		t.sink.WriteFrames(in, frames)
	}

	if out != nil {
		if loopback && e.loopback != nil {
			e.loopback.Route(in, out, frames)
			e.loopbackCycles.Add(1)
		} else {
			clear(out)
		}
	}

	c := &e.cycle
	c.Seq = seq / 2
	c.Samples = in[:frames*e.format.InputChannels]
	c.Frames = frames
	c.Timestamp = info.Timestamp
	e.dispatch.deliver(c)
	c.Samples = nil

	e.frames.Add(uint64(frames))
	e.cycles.Add(1)
	e.seq.Add(1)
}

// waitIdle returns once the cycle in flight at the time of the call, if any,
// has finished. Any cycle starting later observes state published before the
// call.
func (e *Engine) waitIdle() {
	s := e.seq.Load()
	if s&1 == 0 {
		return
	}
	for e.seq.Load() == s {
		runtime.Gosched()
	}
}
