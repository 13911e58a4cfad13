// Package matrix contains integer sampling helpers used to build descriptor test patterns.
package matrix

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// sampleInRange rounds draws of dist and rejects those outside [vMin, vMax].
func sampleInRange(n int, vMin, vMax float64, dist interface{ Rand() float64 }) []int {
	z := make([]int, n)
	for i := range z {
		val := math.Round(dist.Rand())
		for val < vMin || val > vMax {
			val = math.Round(dist.Rand())
		}
		z[i] = int(val)
	}
	return z
}

// SampleNIntegersNormal samples n integers in [vMin, vMax] from a normal distribution centered
// on the middle of the range. The standard deviation follows the isotropic gaussian pattern
// of BRIEF (variance of a fifth of the squared range).
func SampleNIntegersNormal(n int, vMin, vMax float64) []int {
	return sampleInRange(n, vMin, vMax, distuv.Normal{
		Mu:    (vMax + vMin) / 2,
		Sigma: (vMax - vMin) * math.Sqrt(0.2),
	})
}

// SampleNIntegersUniform samples n integers uniformly in [vMin, vMax].
func SampleNIntegersUniform(n int, vMin, vMax float64) []int {
	return sampleInRange(n, vMin, vMax, distuv.Uniform{Min: vMin, Max: vMax})
}

// SampleNRegularlySpaced returns n integers spread over [vMin, vMax] with a stride chosen so
// that consecutive values cycle through the range. The output is deterministic.
func SampleNRegularlySpaced(n int, vMin, vMax float64) []int {
	z := make([]int, n)
	span := int(vMax-vMin) + 1
	if span <= 0 {
		return z
	}
	// an odd stride co-prime with most spans visits every value before repeating
	stride := span/2 + 1
	if stride%2 == 0 {
		stride++
	}
	current := 0
	for i := range z {
		z[i] = int(vMin) + current
		current = (current + stride) % span
	}
	return z
}
