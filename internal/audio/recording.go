package audio

import (
	"fmt"

	"github.com/google/uuid"

	applog "iocapture/internal/log"
)

// Take identifies one recording destination for its whole life.
type Take struct {
	ID   string
	Path string
}

// Reporter receives engine notifications. Methods are called from control
// goroutines, never from the callback, and must not call back into the
// engine's control operations.
type Reporter interface {
	RecordingStarted(t Take)
	RecordingFinished(t Take, frames uint64, err error)
	SinkFailed(t Take, err error)
	DeviceLost(err error)
}

type nopReporter struct{}

func (nopReporter) RecordingStarted(Take)                 {}
func (nopReporter) RecordingFinished(Take, uint64, error) {}
func (nopReporter) SinkFailed(Take, error)                {}
func (nopReporter) DeviceLost(error)                      {}

// SetRecordingDestination opens path for the next take. The file and its
// WAV header are created before this returns. Fails with ErrInvalidState
// while recording is enabled, leaving the open destination untouched.
func (e *Engine) SetRecordingDestination(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.controls.IsRecordingEnabled() {
		return fmt.Errorf("%w: recording destination cannot change while recording", ErrInvalidState)
	}

	// A take retired by SetRecordingEnabled(false) may still be finalising;
	// path can name the same file.
	e.retiring.Wait()
	if old := e.current.Load(); old != nil && old.Path == path {
		e.current.Store(nil)
		_ = e.retire(old)
	}

	t, err := e.openTake(path)
	if err != nil {
		return err
	}
	if err := e.controls.SetRecordingDestination(path); err != nil {
		_ = e.retire(t) // never started, so nothing is reported
		return err
	}

	if old := e.current.Swap(t); old != nil {
		// A replaced take was never started; retire records any close
		// error through setLastError.
		_ = e.retire(old)
	}
	return nil
}

// SetRecordingEnabled toggles capture to file. Enabling needs an open take:
// a destination is finalised when recording is disabled and is never opened
// again, so enabling after that fails with ErrInvalidState until a new
// destination is set. Disabling retires the take in the background;
// StopRecording waits for it.
func (e *Engine) SetRecordingEnabled(enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enabled {
		t := e.current.Load()
		if t == nil {
			if path := e.controls.RecordingDestination(); path != "" {
				return fmt.Errorf("%w: recording destination %s is finalised", ErrInvalidState, path)
			}
			return fmt.Errorf("%w: no recording destination set", ErrInvalidState)
		}
		if !e.controls.swapRecording(true) {
			t.started = true
			applog.Infof("Recording: started take %s -> %s", t.ID, t.Path)
			e.reporter.RecordingStarted(t.Take)
		}
		return nil
	}

	if !e.controls.swapRecording(false) {
		return nil
	}
	if t := e.current.Swap(nil); t != nil {
		e.retiring.Add(1)
		go func() {
			defer e.retiring.Done()
			// StopRecording returns the error; LastError keeps it otherwise.
			_ = e.retire(t)
		}()
	}
	return nil
}

// StartRecording sets path as the destination and enables recording.
func (e *Engine) StartRecording(path string) error {
	if err := e.SetRecordingDestination(path); err != nil {
		return err
	}
	return e.SetRecordingEnabled(true)
}

// StopRecording disables recording and waits until the take is finalised.
// It returns the take's storage error, if any.
func (e *Engine) StopRecording() error {
	t := e.current.Load()
	wasRecording := e.controls.IsRecordingEnabled()

	if err := e.SetRecordingEnabled(false); err != nil {
		return err
	}
	e.retiring.Wait()

	if !wasRecording || t == nil {
		return nil
	}
	return t.sink.Close()
}

// openTake opens a sink for path. Called with e.mu held.
func (e *Engine) openTake(path string) (*take, error) {
	t := &take{Take: Take{ID: uuid.NewString(), Path: path}}

	sink, err := OpenSink(path, e.format, SinkOptions{
		BufferFrames:  e.opts.SinkBufferFrames,
		FlushInterval: e.opts.FlushInterval,
		Create:        e.opts.Create,
		OnError: func(err error) {
			e.setLastError(err)
			applog.Errorf("Recording: take %s failed: %v", t.ID, err)
			e.reporter.SinkFailed(t.Take, err)
		},
	})
	if err != nil {
		return nil, err
	}
	t.sink = sink

	e.statsMu.Lock()
	e.sinks[sink] = struct{}{}
	e.statsMu.Unlock()

	applog.Debugf("Recording: opened %s (take %s)", path, t.ID)
	return t, nil
}

// retire closes a take that is no longer published to the callback.
func (e *Engine) retire(t *take) error {
	e.waitIdle()
	err := t.sink.Close()

	written := t.sink.FramesWritten()
	e.statsMu.Lock()
	delete(e.sinks, t.sink)
	e.retiredWritten += written
	e.retiredDropped += t.sink.FramesDropped()
	e.statsMu.Unlock()

	if err != nil {
		e.setLastError(err)
	}
	if t.started {
		applog.Infof("Recording: finished take %s (%d frames)", t.ID, written)
		e.reporter.RecordingFinished(t.Take, written, err)
	}
	return err
}
