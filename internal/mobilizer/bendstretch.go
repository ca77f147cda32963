package mobilizer

import (
	"math"

	"github.com/san-kum/mbsim/internal/spatial"
)

// BendStretch (polar coordinates) rotates about F's z axis, which stays
// aligned with M's z axis, and then slides along the rotated x axis of M.
// q = (angle, length). u[0] is the angular rate about z and u[1] the rate of
// extension along M's current x axis.
type BendStretch struct{ plainKinematics }

func NewBendStretch() *BendStretch { return &BendStretch{} }

func (*BendStretch) Type() string { return "bendstretch" }
func (*BendStretch) NQ(Model) int { return 2 }
func (*BendStretch) NU() int      { return 2 }

func (*BendStretch) AcrossJointTransform(_ Model, q []float64) spatial.Transform {
	r := spatial.RotationAboutZ(q[0])
	return spatial.Transform{R: r, P: r.MulVec(spatial.V(q[1], 0, 0))}
}

// VelocityJacobian: H0 = {z, z×p_FM}, H1 = {0, Mx}, with Mx expressed in F.
func (b *BendStretch) VelocityJacobian(m Model, q []float64, h []spatial.SpatialVec) {
	x := b.AcrossJointTransform(m, q)
	h[0] = spatial.SpatialVec{W: spatial.ZAxis, V: spatial.ZAxis.Cross(x.P)}
	h[1] = spatial.SpatialVec{V: x.R.X()}
}

// VelocityJacobianDot differentiates H in F: z and the joint axis are fixed,
// p_FM moves with v_FM and Mx turns with w_FM.
func (b *BendStretch) VelocityJacobianDot(m Model, q, u []float64, hdot []spatial.SpatialVec) {
	mx := spatial.RotationAboutZ(q[0]).X()
	w := spatial.ZAxis.Mul(u[0])
	v := spatial.ZAxis.Cross(mx.Mul(q[1])).Mul(u[0]).Add(mx.Mul(u[1]))
	hdot[0] = spatial.SpatialVec{V: spatial.ZAxis.Cross(v)}
	hdot[1] = spatial.SpatialVec{V: w.Cross(mx)}
}

// FitRotation keeps only the part of the rotation about z.
func (*BendStretch) FitRotation(_ Model, r spatial.Rotation, q []float64) {
	q[0] = angleAboutZ(r)
}

// FitTranslation reaches any point in F's x-y plane by turning M's x axis
// toward it and extending. A translation too small to define a direction
// leaves the angle alone.
func (*BendStretch) FitTranslation(_ Model, p spatial.Vec3, q []float64) {
	d := math.Hypot(p.X, p.Y)
	if d < spatial.TinyTranslation {
		q[1] = 0
		return
	}
	q[0] = math.Atan2(p.Y, p.X)
	q[1] = d
}

// FitAngularVelocity keeps only the z component.
func (*BendStretch) FitAngularVelocity(_ Model, _ []float64, w spatial.Vec3, u []float64) {
	u[0] = w.Z
}

// FitLinearVelocity represents the component along M's x axis directly and,
// when the joint is extended, produces the component along M's y axis by
// turning. Velocity along z can never be represented.
func (*BendStretch) FitLinearVelocity(_ Model, q []float64, v spatial.Vec3, u []float64) {
	vM := spatial.RotationAboutZ(q[0]).T().MulVec(v)
	u[1] = vM.X
	x := q[1]
	if math.Abs(x) < spatial.SignificantReal {
		return
	}
	u[0] = vM.Y / x
}

func (*BendStretch) UsingAngles(Model) (bool, int, int) { return true, 0, 1 }
