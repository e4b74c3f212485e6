package audio

import (
	"sync/atomic"

	"iocapture/pkg/bitint"
)

// sampleRing is a single-producer/single-consumer ring of int32 samples.
// The producer is the real-time thread, the consumer is the sink flusher.
// Positions grow monotonically and are masked on access, so the capacity is
// always a power of two.
type sampleRing struct {
	buf  []int32
	mask uint64
	head atomic.Uint64 // Next write position, owned by the producer.
	tail atomic.Uint64 // Next read position, owned by the consumer.
}

func newSampleRing(capacity int) *sampleRing {
	size := bitint.NextPowerOfTwo(capacity)
	return &sampleRing{
		buf:  make([]int32, size),
		mask: bitint.Mask(size),
	}
}

// Cap returns the ring capacity in samples.
func (r *sampleRing) Cap() int {
	return len(r.buf)
}

// Len returns the number of buffered samples.
func (r *sampleRing) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Write appends all of p or nothing. It never blocks or allocates.
func (r *sampleRing) Write(p []int32) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if uint64(len(p)) > uint64(len(r.buf))-(head-tail) {
		return false
	}

	start := int(head & r.mask)
	n := copy(r.buf[start:], p)
	if n < len(p) {
		copy(r.buf, p[n:])
	}

	r.head.Store(head + uint64(len(p)))
	return true
}

// Read moves up to len(p) samples into p and returns how many were read.
func (r *sampleRing) Read(p []int32) int {
	tail := r.tail.Load()
	head := r.head.Load()
	avail := int(head - tail)
	if avail == 0 {
		return 0
	}
	if avail < len(p) {
		p = p[:avail]
	}

	start := int(tail & r.mask)
	n := copy(p, r.buf[start:])
	if n < len(p) {
		copy(p[n:], r.buf)
	}

	r.tail.Store(tail + uint64(len(p)))
	return len(p)
}
