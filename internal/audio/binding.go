// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	applog "iocapture/internal/log"
)

// State is the lifecycle state of a Binding.
type State int32

const (
	Unbound State = iota
	Bound
	Running
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Binding owns the registration of a process function with one hardware
// device. It is the only component allowed to start or stop the clock.
//
//	Unbound -> Bound -> Running -> Bound -> Unbound
//
// All methods are control-thread operations; none may be called from inside
// the process function.
type Binding struct {
	host   Host
	format Format

	mu     sync.Mutex // Serialises lifecycle calls, never taken by the clock.
	state  atomic.Int32
	device Device
	stream Stream
}

// NewBinding creates an unbound binding for the given host and format.
func NewBinding(host Host, format Format) *Binding {
	return &Binding{host: host, format: format}
}

// State returns the current lifecycle state. Safe from any thread.
func (b *Binding) State() State {
	return State(b.state.Load())
}

// Device returns the bound device. Only meaningful while not Unbound.
func (b *Binding) Device() Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.device
}

// Bind validates that deviceID exists and can capture the binding's format,
// then registers process with the device clock without starting it.
func (b *Binding) Bind(deviceID int, process ProcessFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s := b.State(); s != Unbound {
		return fmt.Errorf("%w: bind called while %s", ErrInvalidState, s)
	}

	device, err := b.host.Lookup(deviceID)
	if err != nil {
		return err
	}
	if device.MaxInputChannels < b.format.InputChannels {
		return fmt.Errorf("%w: device %q has %d input channels, %d requested",
			ErrUnsupportedFormat, device.Name, device.MaxInputChannels, b.format.InputChannels)
	}

	stream, err := b.host.Open(device, b.format, process)
	if err != nil {
		return err
	}

	b.device = device
	b.stream = stream
	b.state.Store(int32(Bound))
	applog.Infof("Binding: bound to [%d] %s (%d ch @ %.0f Hz, %d frames)",
		device.ID, device.Name, b.format.InputChannels, b.format.SampleRate, b.format.FramesPerBuffer)
	return nil
}

// Start begins delivery of cycles. Only valid from Bound.
func (b *Binding) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s := b.State(); s != Bound {
		return fmt.Errorf("%w: start called while %s", ErrInvalidState, s)
	}
	if err := b.stream.Start(); err != nil {
		return err
	}
	b.state.Store(int32(Running))
	applog.Debugf("Binding: stream started")
	return nil
}

// Stop halts delivery of cycles. Only valid from Running. When it returns no
// further cycle will begin. The binding returns to Bound even if the
// underlying stream reports an error, so Unbind stays callable.
func (b *Binding) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s := b.State(); s != Running {
		return fmt.Errorf("%w: stop called while %s", ErrInvalidState, s)
	}
	err := b.stream.Stop()
	b.state.Store(int32(Bound))
	applog.Debugf("Binding: stream stopped")
	return err
}

// Unbind releases the registration. Fails while running.
func (b *Binding) Unbind() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s := b.State(); s != Bound {
		return fmt.Errorf("%w: unbind called while %s", ErrInvalidState, s)
	}
	err := b.stream.Close()
	b.stream = nil
	b.device = Device{}
	b.state.Store(int32(Unbound))
	applog.Debugf("Binding: unbound")
	return err
}
