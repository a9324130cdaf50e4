// Package utils implements generic helper functions shared across the module.
package utils

import (
	"golang.org/x/exp/constraints"
)

// BitReverse64 returns the bit-reversal of the n-bit representation of x.
func BitReverse64(x uint64, n int) uint64 {
	var r uint64
	for i := 0; i < n; i++ {
		r = (r << 1) | (x & 1)
		x >>= 1
	}
	return r
}

// Min returns the minimum of a and b.
func Min[T constraints.Ordered](a, b T) T {
	if a <= b {
		return a
	}
	return b
}

// Max returns the maximum of a and b.
func Max[T constraints.Ordered](a, b T) T {
	if a >= b {
		return a
	}
	return b
}

// IsPowerOfTwo returns true if x is a non-zero power of two.
func IsPowerOfTwo[T constraints.Integer](x T) bool {
	return x > 0 && x&(x-1) == 0
}

// DivCeil returns ceil(a/b).
func DivCeil[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}
