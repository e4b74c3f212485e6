package audio

import "fmt"

// channelMap describes how input channels are laid onto output channels.
type channelMap int

const (
	mapCopy      channelMap = iota // Equal channel counts.
	mapDuplicate                   // Mono input fanned out to every output channel.
	mapFirst                       // First input channel to a mono output.
)

// Loopback copies each cycle's input onto the output buffer. It only supports
// conversions that are lossless or trivially defined; anything else is
// rejected when the loopback is built, never mid-stream.
type Loopback struct {
	in, out int
	mode    channelMap
}

// NewLoopback builds the routing for in input and out output channels.
func NewLoopback(in, out int) (*Loopback, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("%w: loopback needs input and output channels (in=%d, out=%d)",
			ErrUnsupportedFormat, in, out)
	}

	l := &Loopback{in: in, out: out}
	switch {
	case in == out:
		l.mode = mapCopy
	case in == 1:
		l.mode = mapDuplicate
	case out == 1:
		l.mode = mapFirst
	default:
		return nil, fmt.Errorf("%w: no loopback mapping from %d to %d channels",
			ErrUnsupportedFormat, in, out)
	}
	return l, nil
}

// LoopbackFor validates that format can be looped back and returns the route.
func LoopbackFor(format Format) (*Loopback, error) {
	if !format.HasOutput() {
		return nil, fmt.Errorf("%w: format has no output side", ErrUnsupportedFormat)
	}
	if format.OutputSampleRate != 0 && format.OutputSampleRate != format.SampleRate {
		return nil, fmt.Errorf("%w: loopback requires equal rates (in=%.0f Hz, out=%.0f Hz)",
			ErrUnsupportedFormat, format.SampleRate, format.OutputSampleRate)
	}
	return NewLoopback(format.InputChannels, format.OutputChannels)
}

// Route writes frames frames of in onto out. Output past the routed frames
// is silenced. Route does not allocate.
func (l *Loopback) Route(in, out []int32, frames int) {
	if limit := len(in) / l.in; frames > limit {
		frames = limit
	}
	if limit := len(out) / l.out; frames > limit {
		frames = limit
	}

	var n int
	switch l.mode {
	case mapCopy:
		n = copy(out, in[:frames*l.in])
	case mapDuplicate:
		for f := 0; f < frames; f++ {
			s := in[f]
			row := out[f*l.out : (f+1)*l.out]
			for c := range row {
				row[c] = s
			}
		}
		n = frames * l.out
	case mapFirst:
		for f := 0; f < frames; f++ {
			out[f] = in[f*l.in]
		}
		n = frames
	}
	clear(out[n:])
}
