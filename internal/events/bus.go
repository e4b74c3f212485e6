package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers. Level events stay off the
// bus; they travel over the level transports.
// Usage: bus.Publish(RecordingStartedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case RecordingStartedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingFinishedEvent:
		event.Publish(b.dispatcher, e)
	case SinkFailedEvent:
		event.Publish(b.dispatcher, e)
	case FramesDroppedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceLostEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type it accepts and returns an
// unsubscribe function. Unknown handler types get a no-op unsubscribe.
// Usage: unsub := bus.Subscribe(func(e DeviceLostEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(RecordingStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingFinishedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SinkFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FramesDroppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceLostEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// Close stops the dispatcher and its subscriber goroutines.
func (b *Bus) Close() error {
	return b.dispatcher.Close()
}
