package audio

import (
	"testing"
	"time"
)

const (
	testSampleRate = 48000
	testFrameSize  = 64
)

func testFormat(in, out int) Format {
	return Format{
		SampleRate:      testSampleRate,
		InputChannels:   in,
		OutputChannels:  out,
		FramesPerBuffer: testFrameSize,
	}
}

// newManualEngine returns a running engine on a manual SimHost, so every
// cycle is produced by an explicit Tick.
func newManualEngine(t *testing.T, format Format, opts Options, fill FillFunc) (*Engine, *SimStream) {
	t.Helper()

	host := NewSimHost()
	host.Manual = true
	host.Fill = fill

	if opts.FlushInterval == 0 {
		opts.FlushInterval = time.Millisecond
	}
	e, err := NewEngine(host, format, opts)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := e.Bind(DefaultDeviceID); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })

	return e, host.Stream()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// recordingReporter collects engine notifications.
type recordingReporter struct {
	started  chan Take
	finished chan finishedTake
	failed   chan error
	lost     chan error
}

type finishedTake struct {
	take   Take
	frames uint64
	err    error
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{
		started:  make(chan Take, 8),
		finished: make(chan finishedTake, 8),
		failed:   make(chan error, 8),
		lost:     make(chan error, 8),
	}
}

func (r *recordingReporter) RecordingStarted(t Take) { r.started <- t }
func (r *recordingReporter) RecordingFinished(t Take, frames uint64, err error) {
	r.finished <- finishedTake{t, frames, err}
}
func (r *recordingReporter) SinkFailed(_ Take, err error) { r.failed <- err }
func (r *recordingReporter) DeviceLost(err error)         { r.lost <- err }
