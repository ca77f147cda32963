package spatial

import (
	"math"

	"github.com/golang/geo/r3"
)

// Vec3 is a Cartesian 3-vector.
type Vec3 = r3.Vector

const (
	// Eps is the float64 machine epsilon.
	Eps = 2.220446049250313e-16

	// TinyTranslation is the length below which a translation is too small to
	// determine a direction.
	TinyTranslation = 4 * Eps
)

// SignificantReal is the smallest magnitude still treated as meaningful when
// dividing by a coordinate value (eps^(7/8)).
var SignificantReal = math.Pow(Eps, 7.0/8.0)

var (
	XAxis = Vec3{X: 1}
	YAxis = Vec3{Y: 1}
	ZAxis = Vec3{Z: 1}
)

// V returns the vector (x, y, z).
func V(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

// Component returns v[i] for i in 0..2.
func Component(v Vec3, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// SetComponent returns v with component i replaced by x.
func SetComponent(v Vec3, i int, x float64) Vec3 {
	switch i {
	case 0:
		v.X = x
	case 1:
		v.Y = x
	default:
		v.Z = x
	}
	return v
}

// ToSlice writes v into dst[0:3].
func ToSlice(v Vec3, dst []float64) {
	dst[0], dst[1], dst[2] = v.X, v.Y, v.Z
}

// FromSlice reads a vector from src[0:3].
func FromSlice(src []float64) Vec3 {
	return Vec3{X: src[0], Y: src[1], Z: src[2]}
}

// IsFinite reports whether every component of v is finite.
func IsFinite(v Vec3) bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsNaN(v.Z) &&
		!math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0) && !math.IsInf(v.Z, 0)
}
