package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"iocapture/cmd"
	"iocapture/internal/audio"
	"iocapture/internal/config"
	"iocapture/internal/events"
	applog "iocapture/internal/log"
	"iocapture/internal/meter"
	"iocapture/internal/metrics"
	"iocapture/internal/monitor"
	"iocapture/internal/notify"
	"iocapture/internal/transport"
	"iocapture/internal/transport/udp"
	"iocapture/internal/tui"
	"iocapture/pkg/build"
)

const levelInterval = 50 * time.Millisecond

// main is the entry point for the capture application.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information and logging
//   - Parse command line arguments and configuration
//   - Open the audio host (PortAudio or the simulated device)
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Bind and start the device
//   - Start recording and loopback if enabled
//   - Run the monitor, transports, metrics, notifier and control panel
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals, device loss or quitting the panel
//   - Finalise the recording
//   - Clean up resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("Build info incomplete: %v", err)
	}

	inv, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if inv == nil {
		return
	}

	if err := run(inv); err != nil {
		applog.Errorf("%v", err)
		applog.Close()
		os.Exit(1)
	}
}

func run(inv *cmd.Invocation) error {
	cfg := inv.Config

	level, ok := applog.ParseLevel(cfg.LogLevel)
	if !ok {
		applog.Warnf("Unknown log level %q, using %s", cfg.LogLevel, level)
	}
	if err := applog.Configure(applog.Options{Level: level, File: cfg.LogFile, JSON: cfg.LogJSON}); err != nil {
		return err
	}
	defer applog.Close()

	// One thread for the audio callback, one for control and I/O.
	runtime.GOMAXPROCS(2)

	host, closeHost, err := openHost(cfg)
	if err != nil {
		return err
	}
	defer closeHost()

	if inv.Command == cmd.CommandList {
		return list(host, inv.Pick)
	}
	return capture(cfg, host)
}

func openHost(cfg *config.Config) (audio.Host, func(), error) {
	if cfg.Audio.Simulate {
		applog.Infof("Using simulated audio device")
		return audio.NewSimHost(), func() {}, nil
	}

	if err := audio.Initialize(); err != nil {
		return nil, nil, err
	}
	return audio.NewPortAudioHost(), func() {
		if err := audio.Terminate(); err != nil {
			applog.Warnf("%v", err)
		}
	}, nil
}

func list(host audio.Host, pick bool) error {
	if !pick {
		return audio.ListDevices(os.Stdout, host)
	}

	sel, ok, err := tui.PickDevice(host)
	if err != nil || !ok {
		return err
	}
	fmt.Printf("--device %d --sample-rate %.0f\n", sel.Device.ID, sel.SampleRate)
	return nil
}

func capture(cfg *config.Config, host audio.Host) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.New()
	defer bus.Close()

	format := audio.Format{
		SampleRate:       cfg.Audio.SampleRate,
		InputChannels:    cfg.Audio.InputChannels,
		OutputChannels:   cfg.Audio.OutputChannels,
		OutputSampleRate: cfg.Audio.OutputSampleRate,
		FramesPerBuffer:  cfg.Audio.FramesPerBuffer,
		LowLatency:       cfg.Audio.LowLatency,
	}
	engine, err := audio.NewEngine(host, format, audio.Options{
		Reporter:         events.NewReporter(bus),
		SinkBufferFrames: cfg.RecordingBufferFrames(),
	})
	if err != nil {
		return err
	}

	levels := meter.New(format.InputChannels, format.FramesPerBuffer)
	engine.SetHandler(levels)

	// A lost device ends the session; the recording is finalised on the way out.
	unsubLost := bus.Subscribe(func(e events.DeviceLostEvent) {
		applog.Errorf("Device lost: %s", e.Error)
		stop()
	})
	defer unsubLost()

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	if err := engine.Bind(cfg.Audio.InputDevice); err != nil {
		return err
	}
	applog.Infof("Bound to %q (%d in, %d out, %.0f Hz, %d frames)", engine.Device().Name,
		format.InputChannels, format.OutputChannels, format.SampleRate, format.FramesPerBuffer)

	if cfg.Loopback.Enabled {
		engine.SetLoopbackEnabled(true)
	}

	// The first Start begins callbacks and with them the hot path.
	if err := engine.Start(); err != nil {
		return errors.Join(err, engine.Close())
	}

	if cfg.Recording.Enabled || cfg.TUI {
		if err := prepareRecording(engine, cfg, cfg.Recording.Enabled); err != nil {
			return errors.Join(err, engine.Close())
		}
	}

	var notifier *notify.Notifier
	if cfg.NATS.URL != "" {
		nc, err := notify.Connect(ctx, cfg.NATS.URL, 5, 2*time.Second)
		if err != nil {
			applog.Warnf("Continuing without NATS notifications: %v", err)
		} else {
			notifier = notify.New(nc, cfg.NATS.Subject)
			notifier.Attach(bus)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	mon := monitor.New(engine, bus, monitor.Options{
		PollInterval: cfg.Monitor.PollInterval,
		StallTimeout: cfg.Monitor.StallTimeout,
	})
	g.Go(func() error { return mon.Run(gctx) })

	var sinks []transport.Transport
	if cfg.Transport.WebSocketAddr != "" {
		wst := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr)
		sinks = append(sinks, wst)
		g.Go(func() error { return wst.Serve(gctx) })
	}
	if applog.GetLevel() == applog.LevelDebug {
		sinks = append(sinks, transport.NewLoggingTransport())
	}
	if len(sinks) > 0 {
		g.Go(func() error { return transport.PublishLevels(gctx, levels, levelInterval, sinks...) })
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.DialSender(ctx, cfg.Transport.UDPTargetAddress)
		if err != nil {
			applog.Warnf("UDP level stream disabled: %v", err)
		} else if publisher, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, levels); err != nil {
			sender.Close()
			applog.Warnf("UDP level stream disabled: %v", err)
		} else {
			publisher.Start()
			g.Go(func() error {
				<-gctx.Done()
				return errors.Join(publisher.Stop(), sender.Close())
			})
		}
	}

	if cfg.Metrics.Addr != "" {
		collector := metrics.NewCollector(engine, levels)
		g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Addr, collector) })
	}

	if cfg.TUI {
		g.Go(func() error {
			next := func() string { return cfg.NextRecordingPath(time.Now()) }
			err := tui.RunPanel(gctx, engine, levels, next)
			stop()
			return err
		})
	} else {
		applog.Infof("%s running, press Ctrl+C to stop", build.Get().Name)
	}

	runErr := g.Wait()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	take, recording := engine.CurrentTake()
	recording = recording && engine.IsRecordingEnabled()

	closeErr := engine.Close()
	if recording {
		applog.Infof("Recording saved to: %s", take.Path)
	}
	if notifier != nil {
		if err := notifier.Close(); err != nil {
			applog.Warnf("%v", err)
		}
	}
	return errors.Join(runErr, closeErr)
}

// prepareRecording opens the configured destination. Without start the take
// is only armed and begins when the panel's record key is pressed.
func prepareRecording(engine *audio.Engine, cfg *config.Config, start bool) error {
	path := cfg.RecordingPath(time.Now())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create recording directory: %w", err)
	}
	if start {
		return engine.StartRecording(path)
	}
	return engine.SetRecordingDestination(path)
}
