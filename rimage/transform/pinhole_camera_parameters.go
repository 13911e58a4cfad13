// Package transform holds camera models used to move between pixel and metric coordinates.
package transform

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is returned when camera intrinsics are missing or unusable.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined or invalid.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics describes the perspective projection of a depth sensor. Focal lengths
// and the principal point are in pixels.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid returns an ErrNoIntrinsics error naming the first unusable parameter.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("intrinsics are nil")
	}
	switch {
	case params.Width <= 0 || params.Height <= 0:
		return NewNoIntrinsicsError(fmt.Sprintf("invalid size %dx%d", params.Width, params.Height))
	case !(params.Fx > 0):
		return NewNoIntrinsicsError(fmt.Sprintf("invalid focal length Fx = %v", params.Fx))
	case !(params.Fy > 0):
		return NewNoIntrinsicsError(fmt.Sprintf("invalid focal length Fy = %v", params.Fy))
	case params.Ppx < 0:
		return NewNoIntrinsicsError(fmt.Sprintf("invalid principal point Ppx = %v", params.Ppx))
	case params.Ppy < 0:
		return NewNoIntrinsicsError(fmt.Sprintf("invalid principal point Ppy = %v", params.Ppy))
	}
	return nil
}

// NewPinholeCameraIntrinsicsFromJSONFile reads and validates intrinsics stored as json.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	f, err := os.Open(filepath.Clean(jsonPath))
	if err != nil {
		return nil, errors.Wrap(err, "cannot open intrinsics")
	}
	defer utils.UncheckedErrorFunc(f.Close)
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json.NewDecoder(f).Decode(intrinsics); err != nil {
		return nil, errors.Wrapf(err, "cannot parse intrinsics %q", jsonPath)
	}
	return intrinsics, intrinsics.CheckValid()
}

// GetCameraMatrix returns K:
//
//	[[fx 0 ppx],
//	 [0 fy ppy],
//	 [0  0   1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}

// PixelToPoint unprojects column x, row y at metric depth z into camera coordinates. Nil
// intrinsics map everything to the origin.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return 0, 0, 0
	}
	return (x - params.Ppx) * z / params.Fx, (y - params.Ppy) * z / params.Fy, z
}

// PixelToVector is PixelToPoint for an r2.Point returning an r3.Vector.
func (params *PinholeCameraIntrinsics) PixelToVector(px r2.Point, z float64) r3.Vector {
	x, y, depth := params.PixelToPoint(px.X, px.Y, z)
	return r3.Vector{X: x, Y: y, Z: depth}
}

// PointToPixel projects a camera point to the nearest pixel. Points at zero depth map to
// (-1, -1), outside of every image.
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z == 0 {
		return -1, -1
	}
	return math.Round(x/z*params.Fx + params.Ppx), math.Round(y/z*params.Fy + params.Ppy)
}
