// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Audio.SampleRate != DefaultSampleRate || cfg.Audio.InputDevice != DefaultDeviceID {
		t.Errorf("expected defaults, got %+v", cfg.Audio)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
audio:
  input_device: 3
  sample_rate: 44100
  frames_per_buffer: 256
  input_channels: 1
  output_channels: 2
recording:
  enabled: true
  file: take.wav
loopback:
  enabled: true
monitor:
  stall_timeout: 500ms
metrics:
  addr: ":9100"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Audio.InputDevice != 3 || cfg.Audio.SampleRate != 44100 || cfg.Audio.FramesPerBuffer != 256 {
		t.Errorf("Audio = %+v", cfg.Audio)
	}
	if cfg.Audio.InputChannels != 1 || cfg.Audio.OutputChannels != 2 {
		t.Errorf("channels = %d/%d, want 1/2", cfg.Audio.InputChannels, cfg.Audio.OutputChannels)
	}
	if !cfg.Recording.Enabled || cfg.Recording.File != "take.wav" || !cfg.Loopback.Enabled {
		t.Errorf("Recording = %+v, Loopback = %+v", cfg.Recording, cfg.Loopback)
	}
	if cfg.Monitor.StallTimeout != 500*time.Millisecond {
		t.Errorf("StallTimeout = %v, want 500ms", cfg.Monitor.StallTimeout)
	}
	// Untouched sections keep their defaults.
	if cfg.Monitor.PollInterval != time.Second || cfg.Recording.BufferSeconds != DefaultBufferSeconds {
		t.Errorf("defaults lost: %+v %+v", cfg.Monitor, cfg.Recording)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV_INPUT_DEVICE", "4")
	t.Setenv("ENV_SIMULATE", "true")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "10ms")
	t.Setenv("ENV_NATS_URL", "nats://localhost:4222")
	t.Setenv("ENV_LOG_JSON", "true")

	cfg, err := LoadConfig(writeTempConfig(t, "audio:\n  input_device: 1\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Audio.InputDevice != 4 || !cfg.Audio.Simulate {
		t.Errorf("Audio = %+v", cfg.Audio)
	}
	if !cfg.LogJSON {
		t.Error("ENV_LOG_JSON not applied")
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPSendInterval != 10*time.Millisecond {
		t.Errorf("Transport = %+v", cfg.Transport)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("NATS.URL = %q", cfg.NATS.URL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"device", func(c *Config) { c.Audio.InputDevice = -2 }, "audio.input_device"},
		{"low rate", func(c *Config) { c.Audio.SampleRate = 100 }, "audio.sample_rate"},
		{"high rate", func(c *Config) { c.Audio.SampleRate = 384000 }, "audio.sample_rate"},
		{"frames", func(c *Config) { c.Audio.FramesPerBuffer = 0 }, "audio.frames_per_buffer"},
		{"input channels", func(c *Config) { c.Audio.InputChannels = 0 }, "audio.input_channels"},
		{"output channels", func(c *Config) { c.Audio.OutputChannels = -1 }, "audio.output_channels"},
		{"input only", func(c *Config) { c.Audio.OutputChannels = 0 }, ""},
		{"buffer", func(c *Config) { c.Recording.BufferSeconds = 0 }, "recording.buffer_seconds"},
		{"udp address", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "udp_target_address"},
		{"nats subject", func(c *Config) {
			c.NATS.URL = "nats://x"
			c.NATS.Subject = ""
		}, "nats.subject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestRecordingPath(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

	cfg := Default()
	cfg.Recording.OutputDir = "out"
	if got, want := cfg.RecordingPath(now), filepath.Join("out", "capture-20250314-150926.wav"); got != want {
		t.Errorf("RecordingPath() = %q, want %q", got, want)
	}

	cfg.Recording.File = "fixed.wav"
	if got := cfg.RecordingPath(now); got != "fixed.wav" {
		t.Errorf("RecordingPath() = %q, want fixed.wav", got)
	}
}

func TestNextRecordingPath(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	dir := t.TempDir()

	cfg := Default()
	cfg.Recording.OutputDir = dir
	first := cfg.NextRecordingPath(now)
	if want := cfg.RecordingPath(now); first != want {
		t.Fatalf("NextRecordingPath() = %q, want %q while it does not exist", first, want)
	}
	if err := os.WriteFile(first, nil, 0644); err != nil {
		t.Fatal(err)
	}
	second := cfg.NextRecordingPath(now)
	if want := filepath.Join(dir, "capture-20250314-150926-2.wav"); second != want {
		t.Errorf("NextRecordingPath() = %q, want %q", second, want)
	}

	cfg.Recording.File = filepath.Join(dir, "fixed.wav")
	if err := os.WriteFile(cfg.Recording.File, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if got, want := cfg.NextRecordingPath(now), filepath.Join(dir, "fixed-2.wav"); got != want {
		t.Errorf("NextRecordingPath() = %q, want %q", got, want)
	}
}

func TestRecordingBufferFrames(t *testing.T) {
	cfg := Default()
	cfg.Recording.BufferSeconds = 0.5
	cfg.Audio.SampleRate = 48000
	if got := cfg.RecordingBufferFrames(); got != 24000 {
		t.Errorf("RecordingBufferFrames() = %d, want 24000", got)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := LoadConfig("../../config.example.yaml")
	if err != nil {
		t.Fatalf("LoadConfig(example) error = %v", err)
	}
	want := Default()
	if cfg.Audio != want.Audio || cfg.Monitor != want.Monitor || cfg.Transport != want.Transport {
		t.Errorf("example config differs from defaults:\n got %+v\nwant %+v", cfg, want)
	}
}
