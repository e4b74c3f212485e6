// SPDX-License-Identifier: MIT
package audio

import "time"

// DefaultDeviceID selects the host's default input device.
const DefaultDeviceID = -1

// CycleInfo carries the per-cycle metadata reported by the hardware clock.
type CycleInfo struct {
	Timestamp       time.Duration // Capture time of the first input frame.
	InputOverflow   bool          // Input samples were discarded by the host before this cycle.
	OutputUnderflow bool          // The host ran out of output samples before this cycle.
}

// ProcessFunc is invoked by the hardware clock once per cycle. in holds the
// captured interleaved samples, out is the output region for the same cycle
// (nil when the stream has no output side). Neither slice may be retained.
type ProcessFunc func(in, out []int32, info CycleInfo)

// Stream is a registered, clock-driven callback.
//
// Stop must not return while a callback invocation is still executing and
// no invocation may begin after it returns.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Host is the platform capability the binding needs: enumerate and look up
// devices, then register a process function on one of them.
type Host interface {
	Devices() ([]Device, error)
	Lookup(deviceID int) (Device, error)
	Open(device Device, format Format, process ProcessFunc) (Stream, error)
}
