// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"time"
)

// Format describes the negotiated stream format. Samples are interleaved
// signed 32-bit PCM on both the input and output side.
type Format struct {
	SampleRate       float64 // Input (and stream) sample rate in Hz.
	InputChannels    int     // Captured channels.
	OutputChannels   int     // Loopback output channels, 0 disables the output side.
	OutputSampleRate float64 // Requested output rate, 0 means SampleRate.
	FramesPerBuffer  int     // Frames delivered per cycle.
	LowLatency       bool    // Prefer the device's low latency settings.
}

// Validate checks the format for values no device can satisfy.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %v", ErrUnsupportedFormat, f.SampleRate)
	}
	if f.InputChannels <= 0 {
		return fmt.Errorf("%w: input channels must be positive, got %d", ErrUnsupportedFormat, f.InputChannels)
	}
	if f.OutputChannels < 0 {
		return fmt.Errorf("%w: output channels must not be negative, got %d", ErrUnsupportedFormat, f.OutputChannels)
	}
	if f.FramesPerBuffer <= 0 {
		return fmt.Errorf("%w: frames per buffer must be positive, got %d", ErrUnsupportedFormat, f.FramesPerBuffer)
	}
	return nil
}

// HasOutput reports whether the stream carries a loopback output side.
func (f Format) HasOutput() bool {
	return f.OutputChannels > 0
}

// Period is the nominal duration of one cycle.
func (f Format) Period() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(f.FramesPerBuffer) / f.SampleRate * float64(time.Second))
}

// InputSamples is the interleaved sample count of one input buffer.
func (f Format) InputSamples() int {
	return f.FramesPerBuffer * f.InputChannels
}

// OutputSamples is the interleaved sample count of one output buffer.
func (f Format) OutputSamples() int {
	return f.FramesPerBuffer * f.OutputChannels
}
