/*
Package bitint provides the power-of-two helpers used to validate FFT sizes.
All functions are O(1), allocation free and safe to call from the audio
callback.

Usage:

	// Suggest the next usable FFT size
	size := bitint.NextPowerOfTwo(requested)

	// Reject an FFT size the transform cannot use
	if !bitint.IsPowerOfTwoInRange(fftSize, 32, 32768) { ... }

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two map to themselves:

	size = 8: bits.Len(7) = 3, 1 << 3 = 8
	size = 9: bits.Len(8) = 4, 1 << 4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo checks if n is a power of 2. A power of two has exactly one
// bit set, so clearing the lowest set bit with n&(n-1) leaves zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// IsPowerOfTwoInRange reports whether n is a power of two within [lo, hi].
func IsPowerOfTwoInRange(n, lo, hi int) bool {
	return IsPowerOfTwo(n) && n >= lo && n <= hi
}
