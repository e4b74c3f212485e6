// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync/atomic"
)

// ControlState holds the flags shared between the control thread (writer)
// and the real-time thread (reader). Every accessor is a single atomic load
// or store, so both sides are wait-free.
type ControlState struct {
	recording   atomic.Bool
	loopback    atomic.Bool
	destination atomic.Pointer[string]
}

// SetRecordingEnabled toggles capture to file. Takes effect no later than
// the next cycle after the store is visible.
func (c *ControlState) SetRecordingEnabled(enabled bool) {
	c.recording.Store(enabled)
}

// SetLoopbackEnabled toggles routing of input to output.
func (c *ControlState) SetLoopbackEnabled(enabled bool) {
	c.loopback.Store(enabled)
}

// IsRecordingEnabled is callable from any thread, including the clock.
func (c *ControlState) IsRecordingEnabled() bool {
	return c.recording.Load()
}

// IsLoopbackEnabled is callable from any thread, including the clock.
func (c *ControlState) IsLoopbackEnabled() bool {
	return c.loopback.Load()
}

// SetRecordingDestination replaces the destination path. It fails with
// ErrInvalidState while recording is enabled and leaves the current
// destination untouched in that case.
func (c *ControlState) SetRecordingDestination(path string) error {
	if c.recording.Load() {
		return fmt.Errorf("%w: recording destination cannot change while recording", ErrInvalidState)
	}
	c.destination.Store(&path)
	return nil
}

// RecordingDestination returns the last accepted destination, or "".
func (c *ControlState) RecordingDestination() string {
	if p := c.destination.Load(); p != nil {
		return *p
	}
	return ""
}

// swapRecording stores enabled and reports the previous value.
func (c *ControlState) swapRecording(enabled bool) bool {
	return c.recording.Swap(enabled)
}
