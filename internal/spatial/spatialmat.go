package spatial

// SpatialMat is a 6x6 matrix stored as 3x3 blocks
//
//	[ M00 M01 ]
//	[ M10 M11 ]
//
// acting on a SpatialVec {W, V}.
type SpatialMat struct {
	M00, M01, M10, M11 Mat33
}

// SpatialOuter returns a bᵀ.
func SpatialOuter(a, b SpatialVec) SpatialMat {
	return SpatialMat{
		M00: Outer(a.W, b.W),
		M01: Outer(a.W, b.V),
		M10: Outer(a.V, b.W),
		M11: Outer(a.V, b.V),
	}
}

// Phi returns the rigid-body shift operator for an offset r from a parent
// origin to a child origin. Phi·F moves a child-origin force to the parent
// origin and Phiᵀ·A moves a parent-origin acceleration to the child origin.
func Phi(r Vec3) SpatialMat {
	return SpatialMat{
		M00: Identity33(),
		M01: CrossMat(r),
		M11: Identity33(),
	}
}

func (m SpatialMat) MulVec(s SpatialVec) SpatialVec {
	return SpatialVec{
		W: m.M00.MulVec(s.W).Add(m.M01.MulVec(s.V)),
		V: m.M10.MulVec(s.W).Add(m.M11.MulVec(s.V)),
	}
}

func (m SpatialMat) Mul(o SpatialMat) SpatialMat {
	return SpatialMat{
		M00: m.M00.Mul(o.M00).Add(m.M01.Mul(o.M10)),
		M01: m.M00.Mul(o.M01).Add(m.M01.Mul(o.M11)),
		M10: m.M10.Mul(o.M00).Add(m.M11.Mul(o.M10)),
		M11: m.M10.Mul(o.M01).Add(m.M11.Mul(o.M11)),
	}
}

func (m SpatialMat) T() SpatialMat {
	return SpatialMat{M00: m.M00.T(), M01: m.M10.T(), M10: m.M01.T(), M11: m.M11.T()}
}

func (m SpatialMat) Add(o SpatialMat) SpatialMat {
	return SpatialMat{M00: m.M00.Add(o.M00), M01: m.M01.Add(o.M01), M10: m.M10.Add(o.M10), M11: m.M11.Add(o.M11)}
}

func (m SpatialMat) Sub(o SpatialMat) SpatialMat {
	return SpatialMat{M00: m.M00.Sub(o.M00), M01: m.M01.Sub(o.M01), M10: m.M10.Sub(o.M10), M11: m.M11.Sub(o.M11)}
}

// Shift returns Phi(r)·m·Phi(r)ᵀ, moving an articulated inertia from a child
// origin to its parent's origin.
func (m SpatialMat) Shift(r Vec3) SpatialMat {
	phi := Phi(r)
	return phi.Mul(m).Mul(phi.T())
}

// At returns element (i, j) of the full 6x6 matrix.
func (m SpatialMat) At(i, j int) float64 {
	switch {
	case i < 3 && j < 3:
		return m.M00[i][j]
	case i < 3:
		return m.M01[i][j-3]
	case j < 3:
		return m.M10[i-3][j]
	default:
		return m.M11[i-3][j-3]
	}
}
