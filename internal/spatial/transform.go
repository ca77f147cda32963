package spatial

// Transform is a rigid transform X_AB: the orientation R_AB of frame B in A and
// the location P of B's origin measured from A's origin, expressed in A.
type Transform struct {
	R Rotation
	P Vec3
}

// IdentityTransform returns X with B coincident with A.
func IdentityTransform() Transform {
	return Transform{R: IdentityRotation()}
}

// NewTransform returns the transform {r, p}.
func NewTransform(r Rotation, p Vec3) Transform {
	return Transform{R: r, P: p}
}

// Translation returns a transform with identity rotation and origin p.
func Translation(p Vec3) Transform {
	return Transform{R: IdentityRotation(), P: p}
}

// Mul composes X_AB * X_BC = X_AC.
func (x Transform) Mul(o Transform) Transform {
	return Transform{
		R: x.R.Mul(o.R),
		P: x.P.Add(x.R.MulVec(o.P)),
	}
}

// Inverse returns X_BA.
func (x Transform) Inverse() Transform {
	rt := x.R.T()
	return Transform{R: rt, P: rt.MulVec(x.P).Mul(-1)}
}

// Apply maps a station fixed in B to its location in A.
func (x Transform) Apply(station Vec3) Vec3 {
	return x.P.Add(x.R.MulVec(station))
}

// ApplyVec re-expresses a free vector from B to A.
func (x Transform) ApplyVec(v Vec3) Vec3 {
	return x.R.MulVec(v)
}

// ApproxEqual compares rotation and translation to within tol.
func (x Transform) ApproxEqual(o Transform, tol float64) bool {
	d := x.P.Sub(o.P)
	return x.R.ApproxEqual(o.R, tol) && d.Norm() <= tol
}
