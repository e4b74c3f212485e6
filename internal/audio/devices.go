package audio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudio entry points, replaced in tests.
var (
	paLibInitialize              = portaudio.Initialize
	paLibTerminate               = portaudio.Terminate
	paLibDevicesFunc             = portaudio.Devices
	paLibDefaultInputDeviceFunc  = portaudio.DefaultInputDevice
	paLibDefaultOutputDeviceFunc = portaudio.DefaultOutputDevice
	paLibIsFormatSupported       = portaudio.IsFormatSupported
	paLibOpenStream              = portaudio.OpenStream
	paDevicesFunc                = paDevices
)

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
// This should be deferred immediately after Initialize().
func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// HostDevices returns all PortAudio devices converted to Device values. The
// device ID is the PortAudio device index.
func HostDevices() ([]Device, error) {
	paDeviceInfos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	devices := make([]Device, len(paDeviceInfos))
	for i, info := range paDeviceInfos {
		devices[i] = toDevice(i, info)
	}
	return devices, nil
}

// InputDevice retrieves the audio input device for the given device ID.
// If deviceID is DefaultDeviceID (-1), returns the system default input device.
// Returns an error wrapping ErrDeviceNotFound if the device ID is invalid or
// the device has no input channels.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	devices, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	if deviceID == DefaultDeviceID {
		device, err := paLibDefaultInputDeviceFunc()
		if err != nil {
			return nil, fmt.Errorf("%w: no default input device: %w", ErrDeviceNotFound, err)
		}
		return device, nil
	}

	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("%w: invalid device ID: %d", ErrDeviceNotFound, deviceID)
	}
	if devices[deviceID].MaxInputChannels == 0 {
		return nil, fmt.Errorf("%w: device %d does not support input", ErrDeviceNotFound, deviceID)
	}
	return devices[deviceID], nil
}

// paDevices returns all available PortAudio devices, never a nil slice on success.
func paDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []*portaudio.DeviceInfo{}
	}
	return devices, nil
}

func toDevice(id int, info *portaudio.DeviceInfo) Device {
	return Device{
		ID:                id,
		Name:              info.Name,
		MaxInputChannels:  info.MaxInputChannels,
		MaxOutputChannels: info.MaxOutputChannels,
		DefaultSampleRate: info.DefaultSampleRate,
		LowInputLatency:   info.DefaultLowInputLatency,
		HighInputLatency:  info.DefaultHighInputLatency,
	}
}

// deviceIndex finds the PortAudio index of info, or -1.
func deviceIndex(devices []*portaudio.DeviceInfo, info *portaudio.DeviceInfo) int {
	for i, d := range devices {
		if d == info || (d.Name == info.Name && d.HostApi == info.HostApi) {
			return i
		}
	}
	return -1
}

// mapPortAudioError folds PortAudio error codes into the package taxonomy.
func mapPortAudioError(op string, err error) error {
	if err == nil {
		return nil
	}
	var paErr portaudio.Error
	if errors.As(err, &paErr) {
		switch paErr {
		case portaudio.InvalidChannelCount,
			portaudio.InvalidSampleRate,
			portaudio.SampleFormatNotSupported,
			portaudio.BadIODeviceCombination:
			return fmt.Errorf("%s: %w: %w", op, ErrUnsupportedFormat, err)
		case portaudio.InvalidDevice:
			return fmt.Errorf("%s: %w: %w", op, ErrDeviceNotFound, err)
		case portaudio.DeviceUnavailable:
			return fmt.Errorf("%s: %w: %w", op, ErrDeviceLost, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
