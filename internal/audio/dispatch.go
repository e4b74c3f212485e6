package audio

import (
	"sync/atomic"
	"time"
)

// Cycle is the view of one hardware cycle handed to a Handler. The value and
// its Samples are owned by the engine and only valid for the duration of
// HandleCycle.
type Cycle struct {
	Seq       uint64        // Zero-based cycle index since the engine was created.
	Samples   []int32       // Interleaved captured samples.
	Frames    int           // Frames in Samples.
	Channels  int           // Samples per frame.
	Timestamp time.Duration // Host capture time of the first frame.
}

// Handler receives every captured cycle on the real-time thread. It must not
// block, allocate or retain c. A returned error or a panic counts the cycle
// as dropped by the handler; the engine keeps running.
type Handler interface {
	HandleCycle(c *Cycle) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(c *Cycle) error

func (f HandlerFunc) HandleCycle(c *Cycle) error {
	return f(c)
}

type handlerRef struct {
	h Handler
}

// dispatcher publishes the current handler to the real-time thread.
type dispatcher struct {
	current atomic.Pointer[handlerRef]
	dropped atomic.Uint64
}

func (d *dispatcher) set(h Handler) {
	if h == nil {
		d.current.Store(nil)
		return
	}
	d.current.Store(&handlerRef{h: h})
}

// deliver hands c to the current handler, if any.
func (d *dispatcher) deliver(c *Cycle) {
	ref := d.current.Load()
	if ref == nil {
		return
	}
	if !invoke(ref.h, c) {
		d.dropped.Add(1)
	}
}

func invoke(h Handler, c *Cycle) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return h.HandleCycle(c) == nil
}
