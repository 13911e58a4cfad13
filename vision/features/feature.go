// Package features fuses 2D image features with co-registered depth into 3D feature clouds.
package features

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/slamfront/vision/keypoints"
)

// Feature is a position paired with an appearance descriptor.
type Feature[P, D any] struct {
	Pos  P
	Desc D
}

// Position returns the feature position.
func (f Feature[P, D]) Position() P {
	return f.Pos
}

// Descriptor returns the feature descriptor.
func (f Feature[P, D]) Descriptor() D {
	return f.Desc
}

// Cloud is an ordered set of features. A feature's index is its identity for correspondences.
type Cloud[P, D any] []Feature[P, D]

// Vec4 is a 4 component position, e.g. a stereo measurement (u_left, v_left, u_right, v_right).
type Vec4 [4]float64

type (
	// Feature2D is a pixel position with a binary descriptor.
	Feature2D = Feature[r2.Point, keypoints.Descriptor]
	// Feature3D is a pixel position (X, Y) with the fused metric depth in Z.
	Feature3D = Feature[r3.Vector, keypoints.Descriptor]
	// Feature4D is a 4 component measurement with a binary descriptor.
	Feature4D = Feature[Vec4, keypoints.Descriptor]

	// Cloud2D is a set of 2D features.
	Cloud2D = Cloud[r2.Point, keypoints.Descriptor]
	// Cloud3D is a set of depth fused features.
	Cloud3D = Cloud[r3.Vector, keypoints.Descriptor]
	// Cloud4D is a set of 4D features.
	Cloud4D = Cloud[Vec4, keypoints.Descriptor]
)

// Positions returns the positions of the cloud in order.
func (c Cloud[P, D]) Positions() []P {
	out := make([]P, len(c))
	for i, f := range c {
		out[i] = f.Pos
	}
	return out
}

// Clone returns a copy of the cloud that shares no slice storage with c. Descriptors are
// treated as immutable and are not deep copied.
func (c Cloud[P, D]) Clone() Cloud[P, D] {
	if c == nil {
		return nil
	}
	out := make(Cloud[P, D], len(c))
	copy(out, c)
	return out
}
