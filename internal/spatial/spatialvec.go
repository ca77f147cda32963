package spatial

import "math"

// SpatialVec is a 6-vector {W, V}: angular then linear.
type SpatialVec struct {
	W Vec3
	V Vec3
}

func (s SpatialVec) Add(o SpatialVec) SpatialVec {
	return SpatialVec{W: s.W.Add(o.W), V: s.V.Add(o.V)}
}

func (s SpatialVec) Sub(o SpatialVec) SpatialVec {
	return SpatialVec{W: s.W.Sub(o.W), V: s.V.Sub(o.V)}
}

func (s SpatialVec) Scale(k float64) SpatialVec {
	return SpatialVec{W: s.W.Mul(k), V: s.V.Mul(k)}
}

// Dot is the plain 6-vector inner product, which is the power of a force on a
// velocity when one argument is a force.
func (s SpatialVec) Dot(o SpatialVec) float64 {
	return s.W.Dot(o.W) + s.V.Dot(o.V)
}

// Rotate re-expresses both halves with R.
func (s SpatialVec) Rotate(r Rotation) SpatialVec {
	return SpatialVec{W: r.MulVec(s.W), V: r.MulVec(s.V)}
}

// ShiftVelocity moves the reference point of a velocity or acceleration by r:
// {w, v + w×r}.
func (s SpatialVec) ShiftVelocity(r Vec3) SpatialVec {
	return SpatialVec{W: s.W, V: s.V.Add(s.W.Cross(r))}
}

// ShiftForce moves the reference point of a force from point A to point B,
// where r is the vector from B to A: {t + r×f, f}.
func (s SpatialVec) ShiftForce(r Vec3) SpatialVec {
	return SpatialVec{W: s.W.Add(r.Cross(s.V)), V: s.V}
}

// Component returns element i of the 6-vector.
func (s SpatialVec) Component(i int) float64 {
	if i < 3 {
		return Component(s.W, i)
	}
	return Component(s.V, i-3)
}

// ToSlice writes s into dst[0:6].
func (s SpatialVec) ToSlice(dst []float64) {
	ToSlice(s.W, dst[0:3])
	ToSlice(s.V, dst[3:6])
}

// SpatialFromSlice reads a spatial vector from src[0:6].
func SpatialFromSlice(src []float64) SpatialVec {
	return SpatialVec{W: FromSlice(src[0:3]), V: FromSlice(src[3:6])}
}

// IsFinite reports whether all six components are finite.
func (s SpatialVec) IsFinite() bool { return IsFinite(s.W) && IsFinite(s.V) }

// Norm is the Euclidean norm of the 6-vector.
func (s SpatialVec) Norm() float64 {
	return math.Sqrt(s.W.Norm2() + s.V.Norm2())
}
