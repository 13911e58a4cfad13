package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func testIntrinsics() *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{
		Width:  640,
		Height: 480,
		Fx:     525,
		Fy:     525,
		Ppx:    320,
		Ppy:    240,
	}
}

func TestPixelToPointRoundTrip(t *testing.T) {
	params := testIntrinsics()
	x, y, z := params.PixelToPoint(320, 240, 2)
	test.That(t, x, test.ShouldEqual, 0.)
	test.That(t, y, test.ShouldEqual, 0.)
	test.That(t, z, test.ShouldEqual, 2.)

	v := params.PixelToVector(r2.Point{X: 425, Y: 135}, 1.5)
	test.That(t, v.X, test.ShouldAlmostEqual, 0.3)
	test.That(t, v.Y, test.ShouldAlmostEqual, -0.3)
	test.That(t, v.Z, test.ShouldEqual, 1.5)

	px, py := params.PointToPixel(v.X, v.Y, v.Z)
	test.That(t, px, test.ShouldEqual, 425.)
	test.That(t, py, test.ShouldEqual, 135.)

	px, py = params.PointToPixel(1, 1, 0)
	test.That(t, px, test.ShouldEqual, -1.)
	test.That(t, py, test.ShouldEqual, -1.)

	var nilParams *PinholeCameraIntrinsics
	x, y, z = nilParams.PixelToPoint(10, 10, 1)
	test.That(t, []float64{x, y, z}, test.ShouldResemble, []float64{0, 0, 0})
}

func TestCheckValid(t *testing.T) {
	test.That(t, testIntrinsics().CheckValid(), test.ShouldBeNil)

	var nilParams *PinholeCameraIntrinsics
	test.That(t, errors.Is(nilParams.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)

	bad := testIntrinsics()
	bad.Fx = 0
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "Fx")

	bad = testIntrinsics()
	bad.Width = 0
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)

	bad = testIntrinsics()
	bad.Ppy = -1
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
}

func TestGetCameraMatrix(t *testing.T) {
	m := testIntrinsics().GetCameraMatrix()
	test.That(t, m.At(0, 0), test.ShouldEqual, 525.)
	test.That(t, m.At(1, 1), test.ShouldEqual, 525.)
	test.That(t, m.At(0, 2), test.ShouldEqual, 320.)
	test.That(t, m.At(1, 2), test.ShouldEqual, 240.)
	test.That(t, m.At(2, 2), test.ShouldEqual, 1.)
	test.That(t, m.At(1, 0), test.ShouldEqual, 0.)
}

func TestIntrinsicsFromJSONFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "intrinsics.json")
	err := os.WriteFile(good,
		[]byte(`{"width_px": 640, "height_px": 480, "fx": 525, "fy": 525, "ppx": 320, "ppy": 240}`), 0o600)
	test.That(t, err, test.ShouldBeNil)
	params, err := NewPinholeCameraIntrinsicsFromJSONFile(good)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params, test.ShouldResemble, testIntrinsics())

	bad := filepath.Join(dir, "bad.json")
	test.That(t, os.WriteFile(bad, []byte(`{"width_px": 640}`), 0o600), test.ShouldBeNil)
	_, err = NewPinholeCameraIntrinsicsFromJSONFile(bad)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	_, err = NewPinholeCameraIntrinsicsFromJSONFile(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
