// Package odometry tracks depth fused features from frame to frame and estimates the rigid
// motion between consecutive frames.
package odometry

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MinMotionCorrespondences is the number of point pairs needed to estimate a rigid motion.
const MinMotionCorrespondences = 3

// ErrDegenerateMotion is returned when the point pairs do not determine a unique rigid motion.
var ErrDegenerateMotion = errors.New("point configuration does not determine a rigid motion")

// Motion3D contains the estimated 3D rotation and translation between 2 frames. Applied to a
// point expressed in the previous camera frame it yields the same point in the current one.
type Motion3D struct {
	Rotation    *mat.Dense
	Translation *mat.Dense
	// RMSE is the root mean squared residual of the aligned point pairs, in meters.
	RMSE float64
}

// NewMotion3DFromRotationTranslation returns a new pointer to Motion3D from a rotation and a translation matrix.
func NewMotion3DFromRotationTranslation(rotation, translation *mat.Dense) *Motion3D {
	return &Motion3D{
		Rotation:    rotation,
		Translation: translation,
	}
}

// Apply transforms p by the motion.
func (m *Motion3D) Apply(p r3.Vector) r3.Vector {
	r := m.Rotation
	return r3.Vector{
		X: r.At(0, 0)*p.X + r.At(0, 1)*p.Y + r.At(0, 2)*p.Z + m.Translation.At(0, 0),
		Y: r.At(1, 0)*p.X + r.At(1, 1)*p.Y + r.At(1, 2)*p.Z + m.Translation.At(1, 0),
		Z: r.At(2, 0)*p.X + r.At(2, 1)*p.Y + r.At(2, 2)*p.Z + m.Translation.At(2, 0),
	}
}

// TranslationVector returns the translation as an r3.Vector.
func (m *Motion3D) TranslationVector() r3.Vector {
	return r3.Vector{X: m.Translation.At(0, 0), Y: m.Translation.At(1, 0), Z: m.Translation.At(2, 0)}
}

// RotationAngle returns the angle of the rotation in radians.
func (m *Motion3D) RotationAngle() float64 {
	trace := m.Rotation.At(0, 0) + m.Rotation.At(1, 1) + m.Rotation.At(2, 2)
	return math.Acos(math.Max(-1, math.Min(1, (trace-1)/2)))
}

func centroid(pts []r3.Vector) r3.Vector {
	var c r3.Vector
	for _, p := range pts {
		c = c.Add(p)
	}
	return c.Mul(1 / float64(len(pts)))
}

// EstimateRigidMotion returns the rotation and translation minimizing the squared distances
// between the moved from points and their to counterparts (Kabsch).
func EstimateRigidMotion(from, to []r3.Vector) (*Motion3D, error) {
	if len(from) != len(to) {
		return nil, errors.Errorf("cannot align %d points with %d points", len(from), len(to))
	}
	if len(from) < MinMotionCorrespondences {
		return nil, errors.Wrapf(ErrDegenerateMotion, "need at least %d point pairs, got %d", MinMotionCorrespondences, len(from))
	}
	cFrom, cTo := centroid(from), centroid(to)

	// cross covariance of the centered point sets
	centeredFrom := mat.NewDense(3, len(from), nil)
	centeredTo := mat.NewDense(3, len(to), nil)
	for i := range from {
		a := from[i].Sub(cFrom)
		b := to[i].Sub(cTo)
		centeredFrom.SetCol(i, []float64{a.X, a.Y, a.Z})
		centeredTo.SetCol(i, []float64{b.X, b.Y, b.Z})
	}
	var cov mat.Dense
	cov.Mul(centeredFrom, centeredTo.T())

	var svd mat.SVD
	if ok := svd.Factorize(&cov, mat.SVDFull); !ok {
		return nil, errors.Wrap(ErrDegenerateMotion, "svd did not converge")
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[1] <= 1e-10*values[0] {
		return nil, errors.Wrap(ErrDegenerateMotion, "points are collinear")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// avoid reflections
	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := 1.
	if mat.Det(&vut) < 0 {
		d = -1
	}
	var vd, rotation mat.Dense
	vd.Mul(&v, mat.NewDiagDense(3, []float64{1, 1, d}))
	rotation.Mul(&vd, u.T())

	var rotated mat.VecDense
	rotated.MulVec(&rotation, mat.NewVecDense(3, []float64{cFrom.X, cFrom.Y, cFrom.Z}))
	translation := mat.NewDense(3, 1, []float64{
		cTo.X - rotated.AtVec(0),
		cTo.Y - rotated.AtVec(1),
		cTo.Z - rotated.AtVec(2),
	})

	motion := &Motion3D{Rotation: &rotation, Translation: translation}
	var sumSq float64
	for i := range from {
		sumSq += motion.Apply(from[i]).Sub(to[i]).Norm2()
	}
	motion.RMSE = math.Sqrt(sumSq / float64(len(from)))
	return motion, nil
}
