// Package metrics exports engine statistics in the Prometheus text format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iocapture/internal/audio"
	applog "iocapture/internal/log"
	"iocapture/internal/meter"
)

const namespace = "iocapture"

// StatsSource is the part of audio.Engine the collector reads.
type StatsSource interface {
	Stats() audio.Stats
}

// Collector turns one Stats snapshot per scrape into metrics.
type Collector struct {
	engine StatsSource
	levels meter.Source

	state     *prometheus.Desc
	recording *prometheus.Desc
	loopback  *prometheus.Desc
	cycles    *prometheus.Desc
	frames    *prometheus.Desc
	dispatch  *prometheus.Desc
	written   *prometheus.Desc
	dropped   *prometheus.Desc
	overflow  *prometheus.Desc
	underflow *prometheus.Desc
	routed    *prometheus.Desc
	peak      *prometheus.Desc
	rms       *prometheus.Desc
}

// NewCollector returns a collector for engine. levels may be nil.
func NewCollector(engine StatsSource, levels meter.Source) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		engine:    engine,
		levels:    levels,
		state:     desc("binding_state", "Device binding state (0 unbound, 1 bound, 2 running)."),
		recording: desc("recording_enabled", "1 while capture to file is enabled."),
		loopback:  desc("loopback_enabled", "1 while input is routed to the output."),
		cycles:    desc("cycles_total", "Completed audio cycles."),
		frames:    desc("frames_total", "Frames seen by the audio callback."),
		dispatch:  desc("dispatch_dropped_total", "Cycles the handler failed or panicked on."),
		written:   desc("sink_frames_written_total", "Frames persisted to recording files."),
		dropped:   desc("sink_frames_dropped_total", "Frames lost before reaching a recording file."),
		overflow:  desc("input_overflows_total", "Cycles flagged with input overflow."),
		underflow: desc("output_underflows_total", "Cycles flagged with output underflow."),
		routed:    desc("loopback_cycles_total", "Cycles routed to the output."),
		peak:      desc("level_peak", "Peak level of the last cycle, 0..1 of full scale.", "channel"),
		rms:       desc("level_rms", "RMS level of the last cycle, 0..1 of full scale.", "channel"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.state, c.recording, c.loopback, c.cycles, c.frames, c.dispatch,
		c.written, c.dropped, c.overflow, c.underflow, c.routed,
	} {
		ch <- d
	}
	if c.levels != nil {
		ch <- c.peak
		ch <- c.rms
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.engine.Stats()

	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}

	gauge(c.state, float64(s.State))
	gauge(c.recording, boolFloat(s.Recording))
	gauge(c.loopback, boolFloat(s.Loopback))
	counter(c.cycles, s.Cycles)
	counter(c.frames, s.Frames)
	counter(c.dispatch, s.DispatchDropped)
	counter(c.written, s.SinkWritten)
	counter(c.dropped, s.SinkDropped)
	counter(c.overflow, s.InputOverflows)
	counter(c.underflow, s.OutputUnderflows)
	counter(c.routed, s.LoopbackCycles)

	if c.levels == nil {
		return
	}
	var l meter.Levels
	c.levels.Snapshot(&l)
	for i := range l.Peak {
		label := strconv.Itoa(i)
		ch <- prometheus.MustNewConstMetric(c.peak, prometheus.GaugeValue, l.Peak[i], label)
		ch <- prometheus.MustNewConstMetric(c.rms, prometheus.GaugeValue, l.RMS[i], label)
	}
}

// Handler returns an HTTP handler exposing c on a private registry.
func Handler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// Serve exposes c on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, c *Collector) error {
	h, err := Handler(c)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		applog.Infof("Metrics: Listening on %s/metrics", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		<-errc
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var _ prometheus.Collector = (*Collector)(nil)
