// Package utils contains small helpers shared by the image and matching packages.
package utils

import "math"

// AbsInt returns the absolute value of n.
func AbsInt(n int) int {
	if n < 0 {
		return -1 * n
	}
	return n
}

// MaxInt returns the maximum of two ints.
func MaxInt(a, b int) int {
	if a < b {
		return b
	}
	return a
}

// MinInt returns the minimum of two ints.
func MinInt(a, b int) int {
	if a > b {
		return b
	}
	return a
}

// ClampF64 restricts v to [lo, hi].
func ClampF64(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Square returns n squared.
func Square(n float64) float64 {
	return n * n
}
