// SPDX-License-Identifier: MIT
package audio

import "errors"

// Error taxonomy shared by the binding, the sink and the engine. Lifecycle
// errors are returned synchronously to the control caller; the real-time path
// only ever counts ErrDroppedFrame/ErrIO conditions and surfaces them later.
var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrInvalidState      = errors.New("invalid state")
	ErrIO                = errors.New("i/o error")
	ErrDroppedFrame      = errors.New("dropped frame")
	ErrDeviceLost        = errors.New("device lost")
)
