package correspondence

import (
	"math/bits"

	"gonum.org/v1/gonum/floats"

	"go.viam.com/slamfront/vision/keypoints"
)

// DistanceFunc measures the dissimilarity of two descriptors. Smaller is more similar.
type DistanceFunc[D any] func(a, b D) float64

// HammingDistance counts the differing bits of two binary descriptors. Words missing from the
// shorter descriptor count as zero.
func HammingDistance(a, b keypoints.Descriptor) float64 {
	if len(a) < len(b) {
		a, b = b, a
	}
	dist := 0
	for i := range b {
		dist += bits.OnesCount64(a[i] ^ b[i])
	}
	for _, w := range a[len(b):] {
		dist += bits.OnesCount64(w)
	}
	return float64(dist)
}

// SquaredEuclideanDistance is the squared L2 distance of two equally sized real descriptors.
// It panics if the lengths differ.
func SquaredEuclideanDistance(a, b []float64) float64 {
	diff := make([]float64, len(a))
	floats.SubTo(diff, a, b)
	return floats.Dot(diff, diff)
}
