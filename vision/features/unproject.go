package features

import (
	"github.com/golang/geo/r3"

	"go.viam.com/slamfront/rimage/transform"
)

// Unproject maps a depth fused cloud to metric camera coordinates. The result keeps the
// order and descriptors of cloud.
func Unproject(cloud Cloud3D, intrinsics *transform.PinholeCameraIntrinsics) (Cloud3D, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	out := make(Cloud3D, len(cloud))
	for i, f := range cloud {
		x, y, z := intrinsics.PixelToPoint(f.Pos.X, f.Pos.Y, f.Pos.Z)
		out[i] = Feature3D{Pos: r3.Vector{X: x, Y: y, Z: z}, Desc: f.Desc}
	}
	return out, nil
}
