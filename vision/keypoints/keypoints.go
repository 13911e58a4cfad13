// Package keypoints contains the implementation of keypoints in an image. For now:
// - FAST keypoints
// - BRIEF descriptors
// - ORB keypoints and descriptors over an image pyramid
package keypoints

import (
	"image"
	"math"

	"go.viam.com/slamfront/utils"
)

type (
	// KeyPoint is an image.Point that contains coordinates of a kp.
	KeyPoint image.Point // keypoint type
	// KeyPoints is a slice of image.Point that contains several kps.
	KeyPoints []image.Point // set of keypoints type
)

// Descriptor is a binary descriptor packed 64 bits per word.
type Descriptor []uint64

// Descriptors is a set of binary descriptors.
type Descriptors []Descriptor

// OrientedKeypoints contains keypoints and their corresponding orientations.
type OrientedKeypoints struct {
	Points       KeyPoints
	Orientations []float64
}

const orientationPatchRadius = 15

// orientationMaskHalfWidths holds, for each absolute row offset from the center of the
// orientation patch, the half width of the circular mask on that row.
var orientationMaskHalfWidths = []int{15, 15, 15, 15, 14, 14, 14, 13, 13, 12, 11, 10, 9, 8, 6, 3}

// computeKeypointsOrientations returns the intensity centroid angle of each keypoint. Pixels of
// the circular patch that fall outside the image contribute nothing.
func computeKeypointsOrientations(img *image.Gray, kps KeyPoints) []float64 {
	bounds := img.Bounds()
	orientations := make([]float64, len(kps))
	for i, kp := range kps {
		m01, m10 := 0, 0
		for dy := -orientationPatchRadius; dy <= orientationPatchRadius; dy++ {
			halfWidth := orientationMaskHalfWidths[utils.AbsInt(dy)]
			y := kp.Y + dy
			if y < bounds.Min.Y || y >= bounds.Max.Y {
				continue
			}
			rowSum := 0
			for dx := -halfWidth; dx <= halfWidth; dx++ {
				x := kp.X + dx
				if x < bounds.Min.X || x >= bounds.Max.X {
					continue
				}
				pixVal := int(img.GrayAt(x, y).Y)
				m10 += pixVal * dx
				rowSum += pixVal
			}
			m01 += rowSum * dy
		}
		orientations[i] = math.Atan2(float64(m01), float64(m10))
	}
	return orientations
}

// GetOrientedKeyPointsFromKeyPoints computes the orientation of keypoints in the corresponding image
// and return kps and corresponding orientations in a OrientedKeypoints struct.
func GetOrientedKeyPointsFromKeyPoints(img *image.Gray, kps KeyPoints) *OrientedKeypoints {
	return &OrientedKeypoints{
		kps,
		computeKeypointsOrientations(img, kps),
	}
}

// RescaleKeypoints multiplies every keypoint coordinate by scaleFactor.
func RescaleKeypoints(kps KeyPoints, scaleFactor int) KeyPoints {
	rescaled := make(KeyPoints, len(kps))
	for i, kp := range kps {
		rescaled[i] = kp.Mul(scaleFactor)
	}
	return rescaled
}
