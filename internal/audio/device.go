package audio

import (
	"fmt"
	"io"
	"time"
)

// Device represents an audio device as reported by a Host.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	LowInputLatency   time.Duration
	HighInputLatency  time.Duration
}

// Kind describes which directions the device supports.
func (d Device) Kind() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	default:
		return "None"
	}
}

// ListDevices prints information about every device the host reports.
// For each device, it shows:
// - Device ID and name
// - Device type (Input/Output/Input+Output)
// - Channel count
// - Default sample rate
// - Latency ranges
func ListDevices(w io.Writer, host Host) error {
	devices, err := host.Devices()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")

	if len(devices) == 0 {
		fmt.Fprintln(w, "No audio devices found.")
		return nil
	}

	for _, device := range devices {
		fmt.Fprintf(w, "[%d] %s (%s)\n", device.ID, device.Name, device.Kind())
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n",
			device.MaxInputChannels, device.MaxOutputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
		fmt.Fprintf(w, "    Latency: Low=%.2fms, High=%.2fms\n",
			device.LowInputLatency.Seconds()*1000,
			device.HighInputLatency.Seconds()*1000)
		fmt.Fprintln(w)
	}

	return nil
}
