package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"iocapture/internal/audio"
	"iocapture/internal/meter"
)

type staticStats audio.Stats

func (s staticStats) Stats() audio.Stats { return audio.Stats(s) }

type staticLevels meter.Levels

func (s staticLevels) Snapshot(l *meter.Levels) {
	l.Seq = s.Seq
	l.Peak = append(l.Peak[:0], s.Peak...)
	l.RMS = append(l.RMS[:0], s.RMS...)
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()

	h, err := Handler(c)
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestCollectorExportsStats(t *testing.T) {
	stats := staticStats{
		State:           audio.Running,
		Recording:       true,
		Cycles:          120,
		Frames:          7680,
		DispatchDropped: 2,
		SinkWritten:     7000,
		SinkDropped:     64,
		InputOverflows:  1,
		LoopbackCycles:  3,
	}
	body := scrape(t, NewCollector(stats, nil))

	for _, want := range []string{
		"iocapture_binding_state 2",
		"iocapture_recording_enabled 1",
		"iocapture_loopback_enabled 0",
		"iocapture_cycles_total 120",
		"iocapture_frames_total 7680",
		"iocapture_dispatch_dropped_total 2",
		"iocapture_sink_frames_written_total 7000",
		"iocapture_sink_frames_dropped_total 64",
		"iocapture_input_overflows_total 1",
		"iocapture_output_underflows_total 0",
		"iocapture_loopback_cycles_total 3",
	} {
		if !strings.Contains(body, want+"\n") {
			t.Errorf("scrape missing %q", want)
		}
	}
	if strings.Contains(body, "iocapture_level_peak") {
		t.Error("level metrics exported without a level source")
	}
}

func TestCollectorExportsLevels(t *testing.T) {
	levels := staticLevels{Peak: []float64{0.5, 1}, RMS: []float64{0.25, 0.5}}
	body := scrape(t, NewCollector(staticStats{}, levels))

	for _, want := range []string{
		`iocapture_level_peak{channel="0"} 0.5`,
		`iocapture_level_peak{channel="1"} 1`,
		`iocapture_level_rms{channel="0"} 0.25`,
		`iocapture_level_rms{channel="1"} 0.5`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", NewCollector(staticStats{}, nil)) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return")
	}
}
