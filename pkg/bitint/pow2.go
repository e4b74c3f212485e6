/*
Package bitint provides power-of-two helpers for sizing real-time buffers.

Ring buffers in this module address slots with a mask instead of a modulo,
which only works when the capacity is a power of two:

	size := bitint.NextPowerOfTwo(frames * channels)
	slot := pos & uint64(size-1)

All functions are allocation free and constant time.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Values <= 0
// return 1.
//
// The subtraction keeps exact powers of two unchanged: bits.Len(7) is 3, so
// 8 maps to 1<<3 = 8 rather than 16.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Mask returns size-1 as a ring index mask. size must be a power of two.
func Mask(size int) uint64 {
	return uint64(size - 1)
}
