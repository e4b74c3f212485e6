package events

import (
	"time"

	"iocapture/internal/audio"
)

// Reporter publishes engine notifications on a Bus.
type Reporter struct {
	bus *Bus
	now func() time.Time
}

// NewReporter returns an audio.Reporter backed by bus.
func NewReporter(bus *Bus) *Reporter {
	return &Reporter{bus: bus, now: time.Now}
}

func (r *Reporter) RecordingStarted(t audio.Take) {
	r.bus.Publish(RecordingStartedEvent{TakeID: t.ID, Path: t.Path, Timestamp: r.now()})
}

func (r *Reporter) RecordingFinished(t audio.Take, frames uint64, err error) {
	r.bus.Publish(RecordingFinishedEvent{
		TakeID:    t.ID,
		Path:      t.Path,
		Frames:    frames,
		Error:     errString(err),
		Timestamp: r.now(),
	})
}

func (r *Reporter) SinkFailed(t audio.Take, err error) {
	r.bus.Publish(SinkFailedEvent{TakeID: t.ID, Path: t.Path, Error: errString(err), Timestamp: r.now()})
}

func (r *Reporter) DeviceLost(err error) {
	r.bus.Publish(DeviceLostEvent{Error: errString(err), Timestamp: r.now()})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ audio.Reporter = (*Reporter)(nil)
