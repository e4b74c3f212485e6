package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeRecordingStarted uint32 = iota + 1
	TypeRecordingFinished
	TypeSinkFailed
	TypeFramesDropped
	TypeDeviceLost
	TypeLevel
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// RecordingStartedEvent is published when recording is enabled on a take.
type RecordingStartedEvent struct {
	TakeID    string    `json:"take_id"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for RecordingStartedEvent.
func (e RecordingStartedEvent) Type() uint32 { return TypeRecordingStarted }

// RecordingFinishedEvent is published once a take's file is finalised.
type RecordingFinishedEvent struct {
	TakeID    string    `json:"take_id"`
	Path      string    `json:"path"`
	Frames    uint64    `json:"frames"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for RecordingFinishedEvent.
func (e RecordingFinishedEvent) Type() uint32 { return TypeRecordingFinished }

// SinkFailedEvent is published when storage fails during a take.
type SinkFailedEvent struct {
	TakeID    string    `json:"take_id"`
	Path      string    `json:"path"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for SinkFailedEvent.
func (e SinkFailedEvent) Type() uint32 { return TypeSinkFailed }

// FramesDroppedEvent reports drops observed since the previous poll.
type FramesDroppedEvent struct {
	Sink      uint64    `json:"sink"`     // Frames that did not reach the file.
	Dispatch  uint64    `json:"dispatch"` // Cycles the handler failed on.
	Overflows uint64    `json:"overflows"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for FramesDroppedEvent.
func (e FramesDroppedEvent) Type() uint32 { return TypeFramesDropped }

// DeviceLostEvent is published when the bound device stops delivering cycles.
type DeviceLostEvent struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for DeviceLostEvent.
func (e DeviceLostEvent) Type() uint32 { return TypeDeviceLost }

// LevelEvent carries per-channel peak and RMS levels, 0..1 of full scale.
type LevelEvent struct {
	Seq       uint64    `json:"seq"`
	Peak      []float64 `json:"peak"`
	RMS       []float64 `json:"rms"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for LevelEvent.
func (e LevelEvent) Type() uint32 { return TypeLevel }
