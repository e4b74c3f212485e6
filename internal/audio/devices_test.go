package audio

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
)

var testPADevices = []*portaudio.DeviceInfo{
	{Name: "Built-in Output", MaxOutputChannels: 2, DefaultSampleRate: 48000},
	{
		Name:                    "USB Interface",
		MaxInputChannels:        2,
		MaxOutputChannels:       2,
		DefaultSampleRate:       48000,
		DefaultLowInputLatency:  3 * time.Millisecond,
		DefaultHighInputLatency: 12 * time.Millisecond,
	},
	{Name: "Mono Mic", MaxInputChannels: 1, DefaultSampleRate: 44100},
}

// stubPortAudio replaces the device seams with testPADevices.
func stubPortAudio(t *testing.T) {
	t.Helper()

	origDevices := paLibDevicesFunc
	origDefaultIn := paLibDefaultInputDeviceFunc
	origDefaultOut := paLibDefaultOutputDeviceFunc
	t.Cleanup(func() {
		paLibDevicesFunc = origDevices
		paLibDefaultInputDeviceFunc = origDefaultIn
		paLibDefaultOutputDeviceFunc = origDefaultOut
	})

	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return testPADevices, nil }
	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) { return testPADevices[1], nil }
	paLibDefaultOutputDeviceFunc = func() (*portaudio.DeviceInfo, error) { return testPADevices[0], nil }
}

func TestHostDevices(t *testing.T) {
	stubPortAudio(t)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	if len(devices) != len(testPADevices) {
		t.Fatalf("got %d devices, want %d", len(devices), len(testPADevices))
	}
	for i, d := range devices {
		if d.ID != i {
			t.Errorf("Device ID mismatch: got %d, want %d", d.ID, i)
		}
		if d.Name != testPADevices[i].Name {
			t.Errorf("Device %d name = %q, want %q", i, d.Name, testPADevices[i].Name)
		}
	}
	if devices[1].LowInputLatency != 3*time.Millisecond {
		t.Errorf("LowInputLatency = %v, want 3ms", devices[1].LowInputLatency)
	}
}

func TestHostDevices_paDevicesError(t *testing.T) {
	orig := paDevicesFunc
	defer func() { paDevicesFunc = orig }()
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, fmt.Errorf("mock error")
	}

	_, err := HostDevices()
	if err == nil || !strings.Contains(err.Error(), "mock error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestInputDevice(t *testing.T) {
	stubPortAudio(t)

	t.Run("Default input device", func(t *testing.T) {
		dev, err := InputDevice(DefaultDeviceID)
		if err != nil {
			t.Fatalf("InputDevice(-1) error: %v", err)
		}
		if dev.Name != "USB Interface" {
			t.Errorf("default device = %q", dev.Name)
		}
	})

	t.Run("Valid input device", func(t *testing.T) {
		dev, err := InputDevice(2)
		if err != nil {
			t.Fatalf("InputDevice(2) error: %v", err)
		}
		if dev.Name != "Mono Mic" {
			t.Errorf("device = %q", dev.Name)
		}
	})

	tests := []struct {
		name   string
		id     int
		substr string
	}{
		{"Negative ID", -2, "invalid device ID"},
		{"Too high ID", len(testPADevices) + 10, "invalid device ID"},
		{"Non-input device", 0, "does not support input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InputDevice(tt.id)
			if err == nil {
				t.Fatalf("Expected error for ID %d", tt.id)
			}
			if !errors.Is(err, ErrDeviceNotFound) {
				t.Errorf("error %v does not wrap ErrDeviceNotFound", err)
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("Error = %q, want substring %q", err.Error(), tt.substr)
			}
		})
	}
}

func TestInputDevice_paDefaultInputDeviceError(t *testing.T) {
	stubPortAudio(t)
	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		return nil, fmt.Errorf("mock default input error")
	}

	_, err := InputDevice(DefaultDeviceID)
	if err == nil || !strings.Contains(err.Error(), "mock default input error") {
		t.Errorf("expected mock error, got %v", err)
	}
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("error %v does not wrap ErrDeviceNotFound", err)
	}
}

func TestErrorInitialize(t *testing.T) {
	orig := paLibInitialize
	defer func() { paLibInitialize = orig }()

	paLibInitialize = func() error { return nil }
	if err := Initialize(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paLibInitialize = func() error { return fmt.Errorf("mock init error") }
	if err := Initialize(); err == nil || !strings.Contains(err.Error(), "mock init error") {
		t.Errorf("expected mock init error, got %v", err)
	}
}

func TestErrorTerminate(t *testing.T) {
	orig := paLibTerminate
	defer func() { paLibTerminate = orig }()

	paLibTerminate = func() error { return nil }
	if err := Terminate(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paLibTerminate = func() error { return fmt.Errorf("mock term error") }
	if err := Terminate(); err == nil || !strings.Contains(err.Error(), "mock term error") {
		t.Errorf("expected mock term error, got %v", err)
	}
}

func TestNilDevices(t *testing.T) {
	orig := paLibDevicesFunc
	defer func() { paLibDevicesFunc = orig }()
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, nil
	}

	devices, err := paDevices()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if devices == nil {
		t.Errorf("expected empty slice, got nil")
	}
	if len(devices) != 0 {
		t.Errorf("expected length 0, got %d", len(devices))
	}
}

func TestPortAudioNotInitialized(t *testing.T) {
	orig := paLibDevicesFunc
	defer func() { paLibDevicesFunc = orig }()
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, fmt.Errorf("PortAudio not initialized")
	}

	devices, err := paDevices()
	if err == nil || !strings.Contains(err.Error(), "PortAudio not initialized") {
		t.Errorf("expected 'PortAudio not initialized' error, got %v", err)
	}
	if devices != nil {
		t.Errorf("expected devices to be nil on error, got %v", devices)
	}
}

func TestPortAudioHostLookup(t *testing.T) {
	stubPortAudio(t)
	host := NewPortAudioHost()

	dev, err := host.Lookup(DefaultDeviceID)
	if err != nil {
		t.Fatalf("Lookup(-1) error = %v", err)
	}
	if dev.ID != 1 || dev.Name != "USB Interface" {
		t.Errorf("Lookup(-1) = %+v, want device 1", dev)
	}

	if _, err := host.Lookup(0); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Lookup(output-only) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestPortAudioHostOpen(t *testing.T) {
	stubPortAudio(t)

	origSupported := paLibIsFormatSupported
	origOpen := paLibOpenStream
	t.Cleanup(func() {
		paLibIsFormatSupported = origSupported
		paLibOpenStream = origOpen
	})

	var gotParams portaudio.StreamParameters
	var gotCallback any
	paLibIsFormatSupported = func(p portaudio.StreamParameters, args ...interface{}) error {
		gotParams = p
		gotCallback = args[0]
		return nil
	}
	paLibOpenStream = func(p portaudio.StreamParameters, args ...interface{}) (*portaudio.Stream, error) {
		return nil, portaudio.DeviceUnavailable
	}

	host := NewPortAudioHost()

	t.Run("duplex on the same device", func(t *testing.T) {
		format := testFormat(2, 2)
		format.LowLatency = true
		_, err := host.Open(Device{ID: 1}, format, func(in, out []int32, info CycleInfo) {})
		if !errors.Is(err, ErrDeviceLost) {
			t.Errorf("Open() error = %v, want mapped DeviceUnavailable", err)
		}
		if gotParams.Output.Device != testPADevices[1] || gotParams.Output.Channels != 2 {
			t.Errorf("output params = %+v", gotParams.Output)
		}
		if gotParams.Input.Latency != 3*time.Millisecond {
			t.Errorf("input latency = %v, want low latency", gotParams.Input.Latency)
		}
		if _, ok := gotCallback.(func([]int32, []int32, portaudio.StreamCallbackTimeInfo, portaudio.StreamCallbackFlags)); !ok {
			t.Errorf("callback type = %T, want duplex callback", gotCallback)
		}
	})

	t.Run("mono mic falls back to default output", func(t *testing.T) {
		host.Open(Device{ID: 2}, testFormat(1, 2), func(in, out []int32, info CycleInfo) {})
		if gotParams.Output.Device != testPADevices[0] {
			t.Errorf("output device = %v, want default output", gotParams.Output.Device)
		}
	})

	t.Run("input only", func(t *testing.T) {
		host.Open(Device{ID: 2}, testFormat(1, 0), func(in, out []int32, info CycleInfo) {})
		if gotParams.Output.Device != nil {
			t.Errorf("output device = %v, want none", gotParams.Output.Device)
		}
		if _, ok := gotCallback.(func([]int32, portaudio.StreamCallbackTimeInfo, portaudio.StreamCallbackFlags)); !ok {
			t.Errorf("callback type = %T, want input-only callback", gotCallback)
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		paLibIsFormatSupported = func(portaudio.StreamParameters, ...interface{}) error {
			return portaudio.InvalidChannelCount
		}
		_, err := host.Open(Device{ID: 1}, testFormat(2, 2), func(in, out []int32, info CycleInfo) {})
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Open() error = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("invalid device", func(t *testing.T) {
		_, err := host.Open(Device{ID: 42}, testFormat(2, 2), func(in, out []int32, info CycleInfo) {})
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("Open() error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestMapPortAudioError(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{portaudio.InvalidSampleRate, ErrUnsupportedFormat},
		{portaudio.SampleFormatNotSupported, ErrUnsupportedFormat},
		{portaudio.BadIODeviceCombination, ErrUnsupportedFormat},
		{portaudio.InvalidDevice, ErrDeviceNotFound},
		{portaudio.DeviceUnavailable, ErrDeviceLost},
	}
	for _, tt := range tests {
		t.Run(tt.in.Error(), func(t *testing.T) {
			err := mapPortAudioError("op", tt.in)
			if !errors.Is(err, tt.want) || !errors.Is(err, tt.in) {
				t.Errorf("mapPortAudioError(%v) = %v, want wrap of %v", tt.in, err, tt.want)
			}
		})
	}

	if mapPortAudioError("op", nil) != nil {
		t.Error("nil error should stay nil")
	}
	plain := errors.New("other")
	if err := mapPortAudioError("op", plain); !errors.Is(err, plain) || !strings.HasPrefix(err.Error(), "op: ") {
		t.Errorf("unmapped error = %v", err)
	}
}

func TestListDevices(t *testing.T) {
	var buf bytes.Buffer
	if err := ListDevices(&buf, NewSimHost()); err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "[0] Simulated Input (Input/Output)") {
		t.Errorf("ListDevices() output:\n%s", out)
	}

	buf.Reset()
	if err := ListDevices(&buf, NewSimHost(Device{Name: "Silent"})); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "(None)") {
		t.Errorf("ListDevices() output:\n%s", buf.String())
	}
}
