// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioHost implements Host on top of PortAudio. Initialize must have
// been called before any method is used.
type PortAudioHost struct{}

// NewPortAudioHost returns a Host backed by the PortAudio subsystem.
func NewPortAudioHost() *PortAudioHost {
	return &PortAudioHost{}
}

// Devices implements Host.
func (h *PortAudioHost) Devices() ([]Device, error) {
	return HostDevices()
}

// Lookup implements Host. DefaultDeviceID resolves to the system default
// input device.
func (h *PortAudioHost) Lookup(deviceID int) (Device, error) {
	info, err := InputDevice(deviceID)
	if err != nil {
		return Device{}, err
	}

	id := deviceID
	if deviceID == DefaultDeviceID {
		devices, err := paDevicesFunc()
		if err != nil {
			return Device{}, err
		}
		id = deviceIndex(devices, info)
	}
	return toDevice(id, info), nil
}

// Open implements Host. The stream is duplex when the format has an output
// side: the bound device is used for output when it has enough channels,
// otherwise the default output device.
func (h *PortAudioHost) Open(device Device, format Format, process ProcessFunc) (Stream, error) {
	devices, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}
	if device.ID < 0 || device.ID >= len(devices) {
		return nil, fmt.Errorf("%w: invalid device ID: %d", ErrDeviceNotFound, device.ID)
	}
	input := devices[device.ID]

	latency := input.DefaultHighInputLatency
	if format.LowLatency {
		latency = input.DefaultLowInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   input,
			Channels: format.InputChannels,
			Latency:  latency,
		},
		FramesPerBuffer: format.FramesPerBuffer,
		SampleRate:      format.SampleRate,
	}

	var callback any
	if format.HasOutput() {
		output := input
		if input.MaxOutputChannels < format.OutputChannels {
			output, err = paLibDefaultOutputDeviceFunc()
			if err != nil {
				return nil, fmt.Errorf("%w: no output device for loopback: %w", ErrUnsupportedFormat, err)
			}
		}
		outLatency := output.DefaultHighOutputLatency
		if format.LowLatency {
			outLatency = output.DefaultLowOutputLatency
		}
		params.Output = portaudio.StreamDeviceParameters{
			Device:   output,
			Channels: format.OutputChannels,
			Latency:  outLatency,
		}
		callback = func(in, out []int32, ti portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			process(in, out, cycleInfo(ti, flags))
		}
	} else {
		callback = func(in []int32, ti portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			process(in, nil, cycleInfo(ti, flags))
		}
	}

	if err := paLibIsFormatSupported(params, callback); err != nil {
		return nil, mapPortAudioError("format check", err)
	}

	stream, err := paLibOpenStream(params, callback)
	if err != nil {
		return nil, mapPortAudioError("open stream", err)
	}
	return &portAudioStream{stream: stream}, nil
}

func cycleInfo(ti portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) CycleInfo {
	return CycleInfo{
		Timestamp:       ti.InputBufferAdcTime,
		InputOverflow:   flags&portaudio.InputOverflow != 0,
		OutputUnderflow: flags&portaudio.OutputUnderflow != 0,
	}
}

// portAudioStream adapts *portaudio.Stream to Stream. Pa_StopStream only
// returns once the callback has finished, which is the Stream.Stop contract.
type portAudioStream struct {
	stream *portaudio.Stream
}

func (s *portAudioStream) Start() error {
	return mapPortAudioError("start stream", s.stream.Start())
}

func (s *portAudioStream) Stop() error {
	return mapPortAudioError("stop stream", s.stream.Stop())
}

func (s *portAudioStream) Close() error {
	return mapPortAudioError("close stream", s.stream.Close())
}

var _ Host = (*PortAudioHost)(nil)
