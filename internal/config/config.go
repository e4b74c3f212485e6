// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Core configuration constants that define the boundaries and defaults
// for the capture engine.
const (
	DefaultDeviceID        = MinDeviceID // System default device
	DefaultInputChannels   = 2
	DefaultOutputChannels  = 2
	DefaultFramesPerBuffer = 512   // Balanced latency/performance
	DefaultSampleRate      = 48000 // Hz
	DefaultOutputDir       = "./recordings"
	DefaultBufferSeconds   = 2.0 // Recording ring capacity

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer
	MaxChannels     = 32
)

// Config is the application configuration, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // "debug", "info", "warn", "error".
	LogFile   string          `yaml:"log_file"`  // Rotated log file, empty for stderr only.
	LogJSON   bool            `yaml:"log_json"`  // JSON lines on stderr instead of the console format.
	Audio     AudioConfig     `yaml:"audio"`
	Recording RecordingConfig `yaml:"recording"`
	Loopback  LoopbackConfig  `yaml:"loopback"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	NATS      NATSConfig      `yaml:"nats"`
	TUI       bool            `yaml:"tui"` // Run the terminal control panel.
}

// AudioConfig holds the device and stream format settings.
type AudioConfig struct {
	InputDevice      int     `yaml:"input_device"`       // Device index for capture (-1 for default).
	SampleRate       float64 `yaml:"sample_rate"`        // Stream sample rate in Hz.
	FramesPerBuffer  int     `yaml:"frames_per_buffer"`  // Frames per callback cycle.
	LowLatency       bool    `yaml:"low_latency"`        // Request the device's low latency settings.
	InputChannels    int     `yaml:"input_channels"`     // Captured channels.
	OutputChannels   int     `yaml:"output_channels"`    // Loopback output channels, 0 for input-only.
	OutputSampleRate float64 `yaml:"output_sample_rate"` // Output rate, 0 to follow sample_rate.
	Simulate         bool    `yaml:"simulate"`           // Use the software clock instead of hardware.
}

// RecordingConfig holds settings for capture to file.
type RecordingConfig struct {
	Enabled       bool    `yaml:"enabled"`        // Start recording as soon as the stream runs.
	OutputDir     string  `yaml:"output_dir"`     // Directory for generated file names.
	File          string  `yaml:"file"`           // Explicit destination, overrides output_dir.
	BufferSeconds float64 `yaml:"buffer_seconds"` // Ring capacity between callback and flusher.
}

// LoopbackConfig holds settings for input to output routing.
type LoopbackConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MonitorConfig holds settings for the stats poller and device watchdog.
type MonitorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	StallTimeout time.Duration `yaml:"stall_timeout"` // 0 disables the device-lost watchdog.
}

// TransportConfig holds settings for streaming level data to clients.
type TransportConfig struct {
	WebSocketAddr    string        `yaml:"websocket_addr"`     // Listen address, empty to disable.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending level packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address for UDP packets.
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between level packets.
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // Listen address, empty to disable.
}

// NATSConfig holds the event notifier settings.
type NATSConfig struct {
	URL     string `yaml:"url"`     // Server URL, empty to disable.
	Subject string `yaml:"subject"` // Subject prefix for published events.
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultInputChannels,
			OutputChannels:  DefaultOutputChannels,
		},
		Recording: RecordingConfig{
			OutputDir:     DefaultOutputDir,
			BufferSeconds: DefaultBufferSeconds,
		},
		Monitor: MonitorConfig{
			PollInterval: time.Second,
			StallTimeout: 2 * time.Second,
		},
		Transport: TransportConfig{
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // ~30Hz
		},
		NATS: NATSConfig{
			Subject: "iocapture",
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges the engine cannot recover from at runtime.
func (c *Config) Validate() error {
	var errs []error

	a := c.Audio
	if a.InputDevice < MinDeviceID {
		errs = append(errs, fmt.Errorf("audio.input_device must be >= %d, got %d", MinDeviceID, a.InputDevice))
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be within %d..%d Hz, got %v",
			MinSampleRate, MaxSampleRate, a.SampleRate))
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be within 1..%d, got %d",
			MaxBufferFrames, a.FramesPerBuffer))
	}
	if a.InputChannels <= 0 || a.InputChannels > MaxChannels {
		errs = append(errs, fmt.Errorf("audio.input_channels must be within 1..%d, got %d",
			MaxChannels, a.InputChannels))
	}
	if a.OutputChannels < 0 || a.OutputChannels > MaxChannels {
		errs = append(errs, fmt.Errorf("audio.output_channels must be within 0..%d, got %d",
			MaxChannels, a.OutputChannels))
	}
	if a.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate must not be negative"))
	}

	if c.Recording.BufferSeconds <= 0 {
		errs = append(errs, fmt.Errorf("recording.buffer_seconds must be positive"))
	}
	if c.Monitor.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("monitor.poll_interval must be positive"))
	}
	if c.Monitor.StallTimeout < 0 {
		errs = append(errs, fmt.Errorf("monitor.stall_timeout must not be negative"))
	}

	if c.Transport.UDPEnabled {
		if !strings.Contains(c.Transport.UDPTargetAddress, ":") {
			errs = append(errs, fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)",
				c.Transport.UDPTargetAddress))
		}
		if c.Transport.UDPSendInterval <= 0 {
			errs = append(errs, fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled"))
		}
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		errs = append(errs, fmt.Errorf("nats.subject must be set when nats.url is set"))
	}

	return errors.Join(errs...)
}

// RecordingPath returns the destination for a take started at now: the
// explicit file if set, otherwise a timestamped name in the output directory.
func (c *Config) RecordingPath(now time.Time) string {
	if c.Recording.File != "" {
		return c.Recording.File
	}
	name := fmt.Sprintf("capture-%s.wav", now.Format("20060102-150405"))
	return filepath.Join(c.Recording.OutputDir, name)
}

// NextRecordingPath is RecordingPath with a -2, -3, ... suffix added while the
// file already exists, so a later take never truncates an earlier one.
func (c *Config) NextRecordingPath(now time.Time) string {
	path := c.RecordingPath(now)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 2; ; i++ {
		if _, err := os.Stat(path); err != nil {
			return path
		}
		path = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
}

// RecordingBufferFrames converts buffer_seconds to frames at the configured rate.
func (c *Config) RecordingBufferFrames() int {
	return int(c.Recording.BufferSeconds * c.Audio.SampleRate)
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
// Malformed values are ignored.
func (c *Config) applyEnvOverrides() {
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
	}
	// ENV_LOG_JSON
	if val, ok := os.LookupEnv("ENV_LOG_JSON"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.LogJSON = b
		}
	}
	// ENV_INPUT_DEVICE
	if val, ok := os.LookupEnv("ENV_INPUT_DEVICE"); ok {
		if i, err := strconv.Atoi(val); err == nil {
			c.Audio.InputDevice = i
		}
	}
	// ENV_SIMULATE
	if val, ok := os.LookupEnv("ENV_SIMULATE"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Audio.Simulate = b
		}
	}
	// ENV_RECORDING_DIR
	if val, ok := os.LookupEnv("ENV_RECORDING_DIR"); ok {
		c.Recording.OutputDir = val
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = b
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
		}
	}

	// ENV_METRICS_ADDR
	if val, ok := os.LookupEnv("ENV_METRICS_ADDR"); ok {
		c.Metrics.Addr = val
	}
	// ENV_NATS_URL
	if val, ok := os.LookupEnv("ENV_NATS_URL"); ok {
		c.NATS.URL = val
	}
}
