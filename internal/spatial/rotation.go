package spatial

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Rotation is an orthonormal direction-cosine matrix R_AB whose columns are
// B's axes expressed in A.
type Rotation Mat33

// IdentityRotation returns the zero rotation.
func IdentityRotation() Rotation { return Rotation(Identity33()) }

// RotationAboutX returns a right-handed rotation by angle about x.
func RotationAboutX(angle float64) Rotation {
	s, c := math.Sincos(angle)
	return Rotation{{1, 0, 0}, {0, c, -s}, {0, s, c}}
}

// RotationAboutY returns a right-handed rotation by angle about y.
func RotationAboutY(angle float64) Rotation {
	s, c := math.Sincos(angle)
	return Rotation{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
}

// RotationAboutZ returns a right-handed rotation by angle about z.
func RotationAboutZ(angle float64) Rotation {
	s, c := math.Sincos(angle)
	return Rotation{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

// RotationAboutAxis returns the rotation by angle about axis (Rodrigues). The
// axis is normalized; a zero axis yields the identity.
func RotationAboutAxis(angle float64, axis Vec3) Rotation {
	n := axis.Norm()
	if n < TinyTranslation {
		return IdentityRotation()
	}
	k := axis.Mul(1 / n)
	s, c := math.Sincos(angle)
	K := CrossMat(k)
	m := Identity33().Add(K.Scale(s)).Add(K.Mul(K).Scale(1 - c))
	return Rotation(m)
}

// FromQuaternion converts q (normalized here) to a rotation matrix.
func FromQuaternion(q quat.Number) Rotation {
	n := quat.Abs(q)
	if n == 0 {
		return IdentityRotation()
	}
	q = quat.Scale(1/n, q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return Rotation{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}

// Quaternion returns the unit quaternion of r with a non-negative scalar part.
func (r Rotation) Quaternion() quat.Number {
	tr := r[0][0] + r[1][1] + r[2][2]
	var q quat.Number
	switch {
	case tr >= r[0][0] && tr >= r[1][1] && tr >= r[2][2]:
		s := math.Sqrt(1+tr) * 2
		q = quat.Number{Real: s / 4, Imag: (r[2][1] - r[1][2]) / s, Jmag: (r[0][2] - r[2][0]) / s, Kmag: (r[1][0] - r[0][1]) / s}
	case r[0][0] >= r[1][1] && r[0][0] >= r[2][2]:
		s := math.Sqrt(1+r[0][0]-r[1][1]-r[2][2]) * 2
		q = quat.Number{Real: (r[2][1] - r[1][2]) / s, Imag: s / 4, Jmag: (r[0][1] + r[1][0]) / s, Kmag: (r[0][2] + r[2][0]) / s}
	case r[1][1] >= r[2][2]:
		s := math.Sqrt(1+r[1][1]-r[0][0]-r[2][2]) * 2
		q = quat.Number{Real: (r[0][2] - r[2][0]) / s, Imag: (r[0][1] + r[1][0]) / s, Jmag: s / 4, Kmag: (r[1][2] + r[2][1]) / s}
	default:
		s := math.Sqrt(1+r[2][2]-r[0][0]-r[1][1]) * 2
		q = quat.Number{Real: (r[1][0] - r[0][1]) / s, Imag: (r[0][2] + r[2][0]) / s, Jmag: (r[1][2] + r[2][1]) / s, Kmag: s / 4}
	}
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return quat.Scale(1/quat.Abs(q), q)
}

// FromBodyFixedXYZ returns Rx(a)·Ry(b)·Rz(c).
func FromBodyFixedXYZ(a, b, c float64) Rotation {
	return RotationAboutX(a).Mul(RotationAboutY(b)).Mul(RotationAboutZ(c))
}

// BodyFixedXYZ returns the body-fixed x-y-z angles of r. At gimbal lock the
// third angle is set to zero.
func (r Rotation) BodyFixedXYZ() Vec3 {
	sb := math.Max(-1, math.Min(1, r[0][2]))
	b := math.Asin(sb)
	if math.Abs(math.Cos(b)) < SignificantReal {
		return Vec3{X: math.Atan2(r[2][1], r[1][1]), Y: b}
	}
	return Vec3{
		X: math.Atan2(-r[1][2], r[2][2]),
		Y: b,
		Z: math.Atan2(-r[0][1], r[0][0]),
	}
}

// AngleAxis returns the rotation angle in [0, π] and unit axis of r. The axis
// is z when the angle is zero.
func (r Rotation) AngleAxis() (float64, Vec3) {
	q := r.Quaternion()
	s := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if s < TinyTranslation {
		return 0, ZAxis
	}
	angle := 2 * math.Atan2(s, q.Real)
	return angle, Vec3{X: q.Imag / s, Y: q.Jmag / s, Z: q.Kmag / s}
}

func (r Rotation) Mat() Mat33              { return Mat33(r) }
func (r Rotation) Mul(o Rotation) Rotation { return Rotation(Mat33(r).Mul(Mat33(o))) }
func (r Rotation) MulVec(v Vec3) Vec3      { return Mat33(r).MulVec(v) }
func (r Rotation) T() Rotation             { return Rotation(Mat33(r).T()) }

// X, Y and Z return the columns of r, i.e. the axes of B expressed in A.
func (r Rotation) X() Vec3 { return Mat33(r).Col(0) }
func (r Rotation) Y() Vec3 { return Mat33(r).Col(1) }
func (r Rotation) Z() Vec3 { return Mat33(r).Col(2) }

// ApproxEqual compares two rotations element-wise.
func (r Rotation) ApproxEqual(o Rotation, tol float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(r[i][j]-o[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// Reexpress returns R m Rᵀ, i.e. a tensor given in B re-expressed in A.
func (r Rotation) Reexpress(m Mat33) Mat33 {
	return Mat33(r).Mul(m).Mul(Mat33(r).T())
}
