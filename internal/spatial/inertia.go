package spatial

import (
	"math"

	"github.com/pkg/errors"
)

var (
	ErrNegativeMass   = errors.New("spatial: mass must be non-negative")
	ErrBadInertia     = errors.New("spatial: inertia must be symmetric with non-negative diagonal")
	ErrNonFiniteValue = errors.New("spatial: mass properties contain NaN or Inf")
)

// MassProperties describes a rigid body in its own frame B: total mass, the
// center of mass station, and the inertia about B's origin expressed in B.
type MassProperties struct {
	Mass    float64
	COM     Vec3
	Inertia Mat33
}

// NewMassProperties builds mass properties from an inertia taken about the
// center of mass, shifting it to the body origin.
func NewMassProperties(mass float64, com Vec3, inertiaAboutCOM Mat33) MassProperties {
	shift := Identity33().Scale(com.Norm2()).Sub(Outer(com, com)).Scale(mass)
	return MassProperties{Mass: mass, COM: com, Inertia: inertiaAboutCOM.Add(shift)}
}

// PointMass returns the properties of a point mass at station com.
func PointMass(mass float64, com Vec3) MassProperties {
	return NewMassProperties(mass, com, Mat33{})
}

// Massless returns zero mass properties.
func Massless() MassProperties { return MassProperties{} }

// InertiaAboutCOM returns the central inertia, in B.
func (m MassProperties) InertiaAboutCOM() Mat33 {
	shift := Identity33().Scale(m.COM.Norm2()).Sub(Outer(m.COM, m.COM)).Scale(m.Mass)
	return m.Inertia.Sub(shift)
}

// Validate checks mass sign, finiteness and inertia symmetry.
func (m MassProperties) Validate() error {
	if math.IsNaN(m.Mass) || math.IsInf(m.Mass, 0) || !IsFinite(m.COM) {
		return ErrNonFiniteValue
	}
	if m.Mass < 0 {
		return ErrNegativeMass
	}
	if !m.Inertia.IsSymmetric(1e-12 * (1 + math.Abs(m.Inertia[0][0]))) {
		return ErrBadInertia
	}
	for i := 0; i < 3; i++ {
		if m.Inertia[i][i] < 0 {
			return ErrBadInertia
		}
	}
	return nil
}

// SpatialInertia returns the 6x6 spatial inertia about the body origin with
// every quantity re-expressed in G by R_GB:
//
//	[ I    m[c×] ]
//	[ -m[c×]  m  ]
func (m MassProperties) SpatialInertia(rGB Rotation) SpatialMat {
	c := rGB.MulVec(m.COM)
	mc := CrossMat(c).Scale(m.Mass)
	return SpatialMat{
		M00: rGB.Reexpress(m.Inertia),
		M01: mc,
		M10: mc.Scale(-1),
		M11: Identity33().Scale(m.Mass),
	}
}

// GyroscopicForce returns the velocity-dependent force of a body moving with
// angular velocity w, about its origin and in G:
// {w × (I w), m w × (w × c)}.
func (m MassProperties) GyroscopicForce(rGB Rotation, w Vec3) SpatialVec {
	iG := rGB.Reexpress(m.Inertia)
	c := rGB.MulVec(m.COM)
	return SpatialVec{
		W: w.Cross(iG.MulVec(w)),
		V: w.Cross(w.Cross(c)).Mul(m.Mass),
	}
}
