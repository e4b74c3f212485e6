// SPDX-License-Identifier: MIT

// Package signal generates interleaved int32 test signals. The Fill methods
// keep their phase between calls and never allocate, so they can run inside
// a simulated device clock.
package signal

import "math"

// FullScale is the largest sample magnitude used by the generators.
const FullScale = math.MaxInt32

// Sine is a continuous sine tone written to every channel of a frame.
type Sine struct {
	Frequency  float64 // Hz
	SampleRate float64 // Hz
	Amplitude  float64 // 0..1 of full scale

	phase float64
}

// NewSine returns a sine generator at 90% of full scale.
func NewSine(frequency, sampleRate float64) *Sine {
	return &Sine{Frequency: frequency, SampleRate: sampleRate, Amplitude: 0.9}
}

// Fill writes len(dst)/channels frames of the tone into dst.
func (s *Sine) Fill(dst []int32, channels int) {
	if channels <= 0 || s.SampleRate <= 0 {
		return
	}
	step := 2 * math.Pi * s.Frequency / s.SampleRate
	for f := 0; f+channels <= len(dst); f += channels {
		v := int32(math.Sin(s.phase) * s.Amplitude * FullScale)
		for c := 0; c < channels; c++ {
			dst[f+c] = v
		}
		s.phase += step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
}

// Ramp writes a counter that increases by one per sample. Every sample of a
// capture is distinct, which makes dropped or reordered samples visible.
type Ramp struct {
	next int32
}

// Fill writes the next len(dst) counter values into dst.
func (r *Ramp) Fill(dst []int32, _ int) {
	for i := range dst {
		dst[i] = r.next
		r.next++
	}
}

// Next returns the value the next Fill starts from.
func (r *Ramp) Next() int32 {
	return r.next
}

// SineWave returns size mono samples of a tone. It allocates and is meant
// for tests.
func SineWave(size int, sampleRate, frequency float64) []int32 {
	buffer := make([]int32, size)
	NewSine(frequency, sampleRate).Fill(buffer, 1)
	return buffer
}

// Peak returns the largest absolute sample value in samples.
func Peak(samples []int32) int64 {
	var peak int64
	for _, s := range samples {
		v := int64(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}
