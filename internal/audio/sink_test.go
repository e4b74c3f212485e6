package audio

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"iocapture/pkg/signal"
)

// failingFile wraps a real file and fails every write once armed.
type failingFile struct {
	*os.File
	armed atomic.Bool
}

var errDiskFull = errors.New("disk full")

func (f *failingFile) Write(p []byte) (int, error) {
	if f.armed.Load() {
		return 0, errDiskFull
	}
	return f.File.Write(p)
}

func openTestSink(t *testing.T, format Format, opts SinkOptions) (*Sink, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "take.wav")
	if opts.FlushInterval == 0 {
		opts.FlushInterval = time.Millisecond
	}
	s, err := OpenSink(path, format, opts)
	if err != nil {
		t.Fatalf("OpenSink() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func decodeWAV(t *testing.T, path string) (*wav.Decoder, []int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatalf("%s is not a valid WAV file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer() error = %v", err)
	}
	return d, buf.Data
}

func TestSinkHeaderWrittenOnOpen(t *testing.T) {
	s, path := openTestSink(t, testFormat(2, 0), SinkOptions{})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("header missing after OpenSink: %q", data)
	}
	if s.State() != SinkOpen {
		t.Errorf("State() = %s, want open", s.State())
	}
}

func TestSinkOpenError(t *testing.T) {
	_, err := OpenSink(filepath.Join(t.TempDir(), "missing", "take.wav"), testFormat(2, 0), SinkOptions{})
	if !errors.Is(err, ErrIO) {
		t.Errorf("OpenSink() error = %v, want ErrIO", err)
	}
}

func TestSinkRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		channels int
		cycles   int
	}{
		{"mono", 1, 10},
		{"stereo", 2, 37},
		{"six channels", 6, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format := testFormat(tt.channels, 0)
			s, path := openTestSink(t, format, SinkOptions{BufferFrames: testFrameSize * (tt.cycles + 1)})

			var ramp signal.Ramp
			buf := make([]int32, format.InputSamples())
			for i := 0; i < tt.cycles; i++ {
				ramp.Fill(buf, tt.channels)
				if !s.WriteFrames(buf, testFrameSize) {
					t.Fatalf("cycle %d rejected", i)
				}
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			wantFrames := uint64(tt.cycles * testFrameSize)
			if s.FramesWritten() != wantFrames || s.FramesDropped() != 0 {
				t.Errorf("written/dropped = %d/%d, want %d/0", s.FramesWritten(), s.FramesDropped(), wantFrames)
			}

			d, samples := decodeWAV(t, path)
			if int(d.NumChans) != tt.channels || d.SampleRate != testSampleRate || d.BitDepth != 32 {
				t.Errorf("header = %d ch, %d Hz, %d bit", d.NumChans, d.SampleRate, d.BitDepth)
			}
			if uint64(len(samples)) != wantFrames*uint64(tt.channels) {
				t.Fatalf("decoded %d samples, want %d", len(samples), wantFrames*uint64(tt.channels))
			}
			for i, v := range samples {
				if v != i {
					t.Fatalf("sample %d = %d, want %d", i, v, i)
				}
			}
		})
	}
}

func TestSinkRingFullCountsDrops(t *testing.T) {
	format := testFormat(1, 0)
	s, _ := openTestSink(t, format, SinkOptions{
		BufferFrames:  testFrameSize,
		FlushInterval: time.Hour,
	})

	buf := make([]int32, format.InputSamples())
	if !s.WriteFrames(buf, testFrameSize) {
		t.Fatal("first write rejected")
	}
	if s.WriteFrames(buf, testFrameSize) {
		t.Fatal("write into a full ring accepted")
	}
	if s.FramesDropped() != testFrameSize {
		t.Errorf("FramesDropped() = %d, want %d", s.FramesDropped(), testFrameSize)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if s.FramesWritten() != testFrameSize {
		t.Errorf("Close() should drain queued frames: written = %d", s.FramesWritten())
	}
}

func TestSinkWriteFailure(t *testing.T) {
	var file *failingFile
	var errCount atomic.Int32
	var errMu sync.Mutex
	var reported error

	format := testFormat(2, 0)
	s, _ := openTestSink(t, format, SinkOptions{
		Create: func(path string) (WriteSeekCloser, error) {
			f, err := os.Create(path)
			if err != nil {
				return nil, err
			}
			file = &failingFile{File: f}
			return file, nil
		},
		OnError: func(err error) {
			errCount.Add(1)
			errMu.Lock()
			reported = err
			errMu.Unlock()
		},
	})

	buf := make([]int32, format.InputSamples())
	file.armed.Store(true)
	s.WriteFrames(buf, testFrameSize)

	waitFor(t, "sink failure", func() bool { return s.State() == SinkFailed })

	if s.WriteFrames(buf, testFrameSize) {
		t.Error("failed sink accepted frames")
	}
	if s.FramesDropped() != 2*testFrameSize {
		t.Errorf("FramesDropped() = %d, want %d", s.FramesDropped(), 2*testFrameSize)
	}

	err := s.Err()
	if !errors.Is(err, ErrIO) || !errors.Is(err, errDiskFull) {
		t.Errorf("Err() = %v, want ErrIO wrapping disk full", err)
	}
	errMu.Lock()
	if !errors.Is(reported, errDiskFull) {
		t.Errorf("OnError got %v", reported)
	}
	errMu.Unlock()

	closeErr := s.Close()
	if !errors.Is(closeErr, errDiskFull) {
		t.Errorf("Close() error = %v, want the storage error", closeErr)
	}
	if errCount.Load() != 1 {
		t.Errorf("OnError called %d times, want 1", errCount.Load())
	}
}

func TestSinkCloseIdempotent(t *testing.T) {
	s, _ := openTestSink(t, testFormat(1, 0), SinkOptions{})

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if s.State() != SinkClosed {
		t.Errorf("State() = %s, want closed", s.State())
	}

	buf := make([]int32, testFrameSize)
	if s.WriteFrames(buf, testFrameSize) {
		t.Error("closed sink accepted frames")
	}
}

func TestSinkWriteFramesAllocations(t *testing.T) {
	format := testFormat(2, 0)
	s, _ := openTestSink(t, format, SinkOptions{BufferFrames: 1 << 16})
	buf := make([]int32, format.InputSamples())

	allocs := testing.AllocsPerRun(100, func() {
		s.WriteFrames(buf, testFrameSize)
	})
	if allocs > 0 {
		t.Errorf("WriteFrames() allocations = %.1f, want 0", allocs)
	}
}

func BenchmarkSinkWriteFrames(b *testing.B) {
	format := testFormat(2, 0)
	s, err := OpenSink(filepath.Join(b.TempDir(), "bench.wav"), format, SinkOptions{})
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()
	buf := make([]int32, format.InputSamples())

	for b.Loop() {
		s.WriteFrames(buf, testFrameSize)
	}
}
