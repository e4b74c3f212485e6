// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	sinkBitDepth    = 32 // Samples are stored exactly as captured.
	wavFormatPCM    = 1
	defaultFlushInt = 10 * time.Millisecond
)

// SinkState is the state of a Sink.
type SinkState int32

const (
	SinkOpen SinkState = iota
	SinkFailed
	SinkClosed
)

func (s SinkState) String() string {
	switch s {
	case SinkOpen:
		return "open"
	case SinkFailed:
		return "failed"
	case SinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// WriteSeekCloser is the file handle a Sink writes through.
type WriteSeekCloser interface {
	io.WriteSeeker
	io.Closer
}

// CreateFunc creates or truncates the destination file.
type CreateFunc func(path string) (WriteSeekCloser, error)

func createFile(path string) (WriteSeekCloser, error) {
	return os.Create(path)
}

// SinkOptions tunes a Sink. Zero values select the defaults.
type SinkOptions struct {
	BufferFrames  int             // Ring capacity in frames (default: one second).
	FlushInterval time.Duration   // How often the flusher drains the ring.
	Create        CreateFunc      // File factory (default: os.Create).
	OnError       func(err error) // Called once, from the flusher, when the sink fails.
}

// Sink persists captured frames to a WAV file.
//
// WriteFrames is the only method called from the real-time thread. It copies
// into a pre-allocated ring and returns; a flusher goroutine encodes the ring
// contents to storage. A storage error moves the sink to SinkFailed, after
// which frames are dropped and counted.
type Sink struct {
	path     string
	channels int

	file    WriteSeekCloser
	encoder *wav.Encoder
	ring    *sampleRing

	// Flusher-owned scratch buffers.
	scratch []int32
	data    []int
	intBuf  *audio.IntBuffer

	state   atomic.Int32
	written atomic.Uint64 // Frames handed to the encoder.
	dropped atomic.Uint64 // Frames that never reached the encoder.

	onError  func(err error)
	interval time.Duration
	quit     chan struct{}
	done     chan struct{}

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
	closeErr  error
}

// OpenSink creates or truncates path and writes the WAV header for format's
// input side before returning, so the header exists before any frame does.
func OpenSink(path string, format Format, opts SinkOptions) (*Sink, error) {
	if opts.Create == nil {
		opts.Create = createFile
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInt
	}
	if opts.BufferFrames <= 0 {
		opts.BufferFrames = int(format.SampleRate)
	}
	if opts.BufferFrames < format.FramesPerBuffer {
		opts.BufferFrames = format.FramesPerBuffer
	}

	file, err := opts.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrIO, path, err)
	}

	channels := format.InputChannels
	sampleRate := int(format.SampleRate)
	encoder := wav.NewEncoder(file, sampleRate, sinkBitDepth, channels, wavFormatPCM)

	chunk := format.FramesPerBuffer * channels
	s := &Sink{
		path:     path,
		channels: channels,
		file:     file,
		encoder:  encoder,
		ring:     newSampleRing(opts.BufferFrames * channels),
		scratch:  make([]int32, chunk),
		data:     make([]int, chunk),
		intBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: sinkBitDepth,
		},
		onError:  opts.OnError,
		interval: opts.FlushInterval,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	// An empty write emits the RIFF header and opens the data chunk.
	s.intBuf.Data = s.data[:0]
	if err := encoder.Write(s.intBuf); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: write header %s: %w", ErrIO, path, err)
	}

	go s.run()
	return s, nil
}

// Path returns the destination file.
func (s *Sink) Path() string {
	return s.path
}

// State returns the current sink state.
func (s *Sink) State() SinkState {
	return SinkState(s.state.Load())
}

// FramesWritten returns the number of frames handed to the encoder.
func (s *Sink) FramesWritten() uint64 {
	return s.written.Load()
}

// FramesDropped returns the number of frames that will never reach the file.
func (s *Sink) FramesDropped() uint64 {
	return s.dropped.Load()
}

// Err returns the storage error that failed the sink, if any.
func (s *Sink) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// WriteFrames queues frames interleaved samples for the file. It never
// blocks, allocates or touches storage. It reports whether the frames were
// accepted; rejected frames are counted as dropped.
func (s *Sink) WriteFrames(samples []int32, frames int) bool {
	n := frames * s.channels
	if n > len(samples) {
		n = len(samples) - len(samples)%s.channels
		frames = n / s.channels
	}
	if SinkState(s.state.Load()) != SinkOpen || !s.ring.Write(samples[:n]) {
		s.dropped.Add(uint64(frames))
		return false
	}
	return true
}

// Close drains queued frames, finalises the WAV header and releases the
// file. It is idempotent and always returns the same error.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done

		var errs []error
		if err := s.Err(); err != nil {
			errs = append(errs, err)
		}
		if err := s.encoder.Close(); err != nil && s.State() != SinkFailed {
			errs = append(errs, fmt.Errorf("%w: finalize %s: %w", ErrIO, s.path, err))
		}
		if err := s.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%w: close %s: %w", ErrIO, s.path, err))
		}
		s.state.Store(int32(SinkClosed))
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *Sink) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			s.drain()
			return
		case <-ticker.C:
			s.drain()
		}
	}
}

// drain moves everything currently queued into the encoder.
func (s *Sink) drain() {
	for {
		n := s.ring.Read(s.scratch)
		if n == 0 {
			return
		}
		frames := uint64(n / s.channels)

		if s.State() != SinkOpen {
			s.dropped.Add(frames)
			continue
		}

		data := s.data[:n]
		for i, v := range s.scratch[:n] {
			data[i] = int(v)
		}
		s.intBuf.Data = data

		if err := s.encoder.Write(s.intBuf); err != nil {
			s.dropped.Add(frames)
			s.fail(fmt.Errorf("%w: write %s: %w", ErrIO, s.path, err))
			continue
		}
		s.written.Add(frames)
	}
}

func (s *Sink) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()

	if s.state.CompareAndSwap(int32(SinkOpen), int32(SinkFailed)) && s.onError != nil {
		s.onError(err)
	}
}
