package odometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestNewMotion3DFromRotationTranslation(t *testing.T) {
	// rotation = Id
	rot := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	// Translation = 1m in z direction
	tr := mat.NewDense(3, 1, []float64{0, 0, 1})

	motion := NewMotion3DFromRotationTranslation(rot, tr)
	test.That(t, motion, test.ShouldNotBeNil)
	test.That(t, motion.Rotation, test.ShouldResemble, rot)
	test.That(t, motion.Translation, test.ShouldResemble, tr)
	test.That(t, motion.Apply(r3.Vector{X: 1, Y: 2, Z: 3}), test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 4})
	test.That(t, motion.TranslationVector(), test.ShouldResemble, r3.Vector{Z: 1})
	test.That(t, motion.RotationAngle(), test.ShouldEqual, 0.)
}

func rotationZX(yaw, roll float64) *mat.Dense {
	rz := mat.NewDense(3, 3, []float64{
		math.Cos(yaw), -math.Sin(yaw), 0,
		math.Sin(yaw), math.Cos(yaw), 0,
		0, 0, 1,
	})
	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, math.Cos(roll), -math.Sin(roll),
		0, math.Sin(roll), math.Cos(roll),
	})
	var r mat.Dense
	r.Mul(rz, rx)
	return &r
}

func TestEstimateRigidMotion(t *testing.T) {
	expected := NewMotion3DFromRotationTranslation(rotationZX(0.3, -0.2), mat.NewDense(3, 1, []float64{0.1, -0.25, 0.4}))

	rng := rand.New(rand.NewSource(1))
	from := make([]r3.Vector, 15)
	to := make([]r3.Vector, len(from))
	for i := range from {
		from[i] = r3.Vector{X: 2*rng.Float64() - 1, Y: 2*rng.Float64() - 1, Z: 1 + 2*rng.Float64()}
		to[i] = expected.Apply(from[i])
	}

	motion, err := EstimateRigidMotion(from, to)
	test.That(t, err, test.ShouldBeNil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			test.That(t, motion.Rotation.At(r, c), test.ShouldAlmostEqual, expected.Rotation.At(r, c), 1e-9)
		}
		test.That(t, motion.Translation.At(r, 0), test.ShouldAlmostEqual, expected.Translation.At(r, 0), 1e-9)
	}
	test.That(t, mat.Det(motion.Rotation), test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, motion.RMSE, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, motion.RotationAngle(), test.ShouldBeGreaterThan, 0.3)
}

func TestEstimateRigidMotionPlanar(t *testing.T) {
	from := []r3.Vector{{X: 0, Y: 0, Z: 2}, {X: 1, Y: 0, Z: 2}, {X: 0, Y: 1, Z: 2}, {X: 1, Y: 1, Z: 2}}
	to := make([]r3.Vector, len(from))
	for i, p := range from {
		to[i] = p.Add(r3.Vector{X: 0.1, Y: -0.04})
	}
	motion, err := EstimateRigidMotion(from, to)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, motion.RotationAngle(), test.ShouldAlmostEqual, 0, 1e-6)
	tr := motion.TranslationVector()
	test.That(t, tr.X, test.ShouldAlmostEqual, 0.1, 1e-9)
	test.That(t, tr.Y, test.ShouldAlmostEqual, -0.04, 1e-9)
	test.That(t, tr.Z, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestEstimateRigidMotionDegenerate(t *testing.T) {
	_, err := EstimateRigidMotion([]r3.Vector{{X: 1}}, []r3.Vector{{X: 1}, {X: 2}})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = EstimateRigidMotion([]r3.Vector{{X: 1}, {Y: 1}}, []r3.Vector{{X: 1}, {Y: 1}})
	test.That(t, errors.Is(err, ErrDegenerateMotion), test.ShouldBeTrue)

	collinear := []r3.Vector{{X: 0, Z: 1}, {X: 1, Z: 1}, {X: 2, Z: 1}, {X: 3, Z: 1}}
	_, err = EstimateRigidMotion(collinear, collinear)
	test.That(t, errors.Is(err, ErrDegenerateMotion), test.ShouldBeTrue)

	same := []r3.Vector{{X: 1, Z: 1}, {X: 1, Z: 1}, {X: 1, Z: 1}}
	_, err = EstimateRigidMotion(same, same)
	test.That(t, errors.Is(err, ErrDegenerateMotion), test.ShouldBeTrue)
}
