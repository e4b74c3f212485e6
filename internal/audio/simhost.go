package audio

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"iocapture/pkg/signal"
)

// FillFunc writes one cycle of interleaved input into dst.
type FillFunc func(dst []int32, channels int)

// SimHost is a Host backed by a software clock. It stands in for hardware
// on machines without audio devices and drives deterministic tests.
type SimHost struct {
	devices []Device

	// Manual disables the clock goroutine; cycles are produced by Tick.
	Manual bool
	// Fill generates the input of each cycle. Defaults to a 440 Hz tone.
	Fill FillFunc

	mu     sync.Mutex
	stream *SimStream
}

// NewSimHost returns a host with a single duplex device. Additional devices
// may be passed to replace the default one.
func NewSimHost(devices ...Device) *SimHost {
	if len(devices) == 0 {
		devices = []Device{{
			Name:              "Simulated Input",
			MaxInputChannels:  2,
			MaxOutputChannels: 2,
			DefaultSampleRate: 48000,
			LowInputLatency:   5 * time.Millisecond,
			HighInputLatency:  20 * time.Millisecond,
		}}
	}
	for i := range devices {
		devices[i].ID = i
	}
	return &SimHost{devices: devices}
}

// Devices implements Host.
func (h *SimHost) Devices() ([]Device, error) {
	out := make([]Device, len(h.devices))
	copy(out, h.devices)
	return out, nil
}

// Lookup implements Host. DefaultDeviceID resolves to the first device with
// input channels.
func (h *SimHost) Lookup(deviceID int) (Device, error) {
	if deviceID == DefaultDeviceID {
		for _, d := range h.devices {
			if d.MaxInputChannels > 0 {
				return d, nil
			}
		}
		return Device{}, fmt.Errorf("%w: no default input device", ErrDeviceNotFound)
	}
	if deviceID < 0 || deviceID >= len(h.devices) {
		return Device{}, fmt.Errorf("%w: invalid device ID: %d", ErrDeviceNotFound, deviceID)
	}
	if h.devices[deviceID].MaxInputChannels == 0 {
		return Device{}, fmt.Errorf("%w: device %d does not support input", ErrDeviceNotFound, deviceID)
	}
	return h.devices[deviceID], nil
}

// Open implements Host.
func (h *SimHost) Open(device Device, format Format, process ProcessFunc) (Stream, error) {
	if format.HasOutput() && device.MaxOutputChannels < format.OutputChannels {
		return nil, fmt.Errorf("%w: device %q has %d output channels, %d requested",
			ErrUnsupportedFormat, device.Name, device.MaxOutputChannels, format.OutputChannels)
	}

	fill := h.Fill
	if fill == nil {
		fill = signal.NewSine(440, format.SampleRate).Fill
	}

	s := &SimStream{
		format:  format,
		process: process,
		fill:    fill,
		manual:  h.Manual,
		in:      make([]int32, format.InputSamples()),
	}
	if format.HasOutput() {
		s.out = make([]int32, format.OutputSamples())
	}

	h.mu.Lock()
	h.stream = s
	h.mu.Unlock()
	return s, nil
}

// Stream returns the most recently opened stream, or nil.
func (h *SimHost) Stream() *SimStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stream
}

// SimStream is the software clock of a SimHost device.
type SimStream struct {
	format  Format
	process ProcessFunc
	fill    FillFunc
	manual  bool

	in  []int32
	out []int32

	mu      sync.Mutex // Serialises Start, Stop and Close.
	running atomic.Bool
	lost    atomic.Bool
	closed  bool
	active  atomic.Int32 // Ticks past the running check.
	elapsed time.Duration
	quit    chan struct{}
	done    chan struct{}
}

// Start implements Stream.
func (s *SimStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: stream closed", ErrInvalidState)
	}
	if s.lost.Load() {
		return fmt.Errorf("start stream: %w", ErrDeviceLost)
	}
	s.running.Store(true)

	if !s.manual {
		s.quit = make(chan struct{})
		s.done = make(chan struct{})
		go s.clock(s.quit, s.done)
	}
	return nil
}

// Stop implements Stream. It returns only after any in-flight Tick has
// finished; no Tick runs the process function afterwards.
func (s *SimStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running.Store(false)
	if s.quit != nil {
		close(s.quit)
		<-s.done
		s.quit, s.done = nil, nil
	}
	for s.active.Load() != 0 {
		runtime.Gosched()
	}

	if s.lost.Load() {
		return fmt.Errorf("stop stream: %w", ErrDeviceLost)
	}
	return nil
}

// Close implements Stream.
func (s *SimStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Tick runs one cycle if the stream is running and reports whether it did.
// Only one goroutine may tick at a time, as with a hardware clock.
func (s *SimStream) Tick() bool {
	s.active.Add(1)
	defer s.active.Add(-1)

	if !s.running.Load() || s.lost.Load() {
		return false
	}

	s.fill(s.in, s.format.InputChannels)
	s.process(s.in, s.out, CycleInfo{Timestamp: s.elapsed})
	s.elapsed += s.format.Period()
	return true
}

// Output returns the output buffer of the last cycle.
func (s *SimStream) Output() []int32 {
	return s.out
}

// Disconnect simulates the device disappearing: the clock stops producing
// cycles and the next Stop reports ErrDeviceLost.
func (s *SimStream) Disconnect() {
	s.lost.Store(true)
}

func (s *SimStream) clock(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.format.Period())
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

var _ Host = (*SimHost)(nil)
