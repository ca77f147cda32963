package mobilizer

import (
	"math"

	"gonum.org/v1/gonum/num/quat"

	"github.com/san-kum/mbsim/internal/spatial"
)

// orientation implements the rotational half shared by Ball and Free. The
// generalized speeds are always w_FM expressed in F; the coordinates are a
// quaternion (w, x, y, z) or body-fixed x-y-z angles depending on the Model.
type orientation struct{}

func (orientation) nq(m Model) int {
	if m.UseEulerAngles {
		return 3
	}
	return 4
}

func (orientation) defaultQ(m Model, q []float64) {
	for i := range q {
		q[i] = 0
	}
	if !m.UseEulerAngles {
		q[0] = 1
	}
}

func quatFrom(q []float64) quat.Number {
	return quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]}
}

func quatTo(n quat.Number, q []float64) {
	q[0], q[1], q[2], q[3] = n.Real, n.Imag, n.Jmag, n.Kmag
}

func pureQuat(v spatial.Vec3) quat.Number {
	return quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
}

func (orientation) rotation(m Model, q []float64) spatial.Rotation {
	if m.UseEulerAngles {
		return spatial.FromBodyFixedXYZ(q[0], q[1], q[2])
	}
	return spatial.FromQuaternion(quatFrom(q))
}

func (orientation) fitRotation(m Model, r spatial.Rotation, q []float64) {
	if m.UseEulerAngles {
		spatial.ToSlice(r.BodyFixedXYZ(), q)
		return
	}
	quatTo(r.Quaternion(), q)
}

// eulerRates returns A(q) such that w_FM = A·qdot for body-fixed x-y-z angles.
func eulerRates(q []float64) spatial.Mat33 {
	s0, c0 := math.Sincos(q[0])
	s1, c1 := math.Sincos(q[1])
	return spatial.Mat33{
		{1, 0, s1},
		{0, c0, -s0 * c1},
		{0, s0, c0 * c1},
	}
}

// eulerRatesDot returns dA/dt along qdot.
func eulerRatesDot(q, qdot []float64) spatial.Mat33 {
	s0, c0 := math.Sincos(q[0])
	s1, c1 := math.Sincos(q[1])
	return spatial.Mat33{
		{0, 0, c1 * qdot[1]},
		{0, -s0 * qdot[0], -c0*c1*qdot[0] + s0*s1*qdot[1]},
		{0, c0 * qdot[0], -s0*c1*qdot[0] - c0*s1*qdot[1]},
	}
}

// eulerQDot solves A·qdot = w in closed form. A is singular at cos(q1) = 0
// (gimbal lock); there |cos(q1)| is held at SignificantReal so the rates stay
// finite, large and signed. Use quaternions for motions that pass through it.
func eulerQDot(q []float64, w spatial.Vec3, qdot []float64) {
	s0, c0 := math.Sincos(q[0])
	s1, c1 := math.Sincos(q[1])
	if math.Abs(c1) < spatial.SignificantReal {
		c1 = math.Copysign(spatial.SignificantReal, c1)
	}
	qdot[1] = c0*w.Y + s0*w.Z
	qdot[2] = (-s0*w.Y + c0*w.Z) / c1
	qdot[0] = w.X - s1*qdot[2]
}

func (o orientation) qdot(m Model, q, u, qdot []float64) {
	w := spatial.FromSlice(u)
	if m.UseEulerAngles {
		eulerQDot(q, w, qdot)
		return
	}
	quatTo(quat.Scale(0.5, quat.Mul(pureQuat(w), quatFrom(q))), qdot)
}

func (o orientation) uFromQDot(m Model, q, qdot, u []float64) {
	if m.UseEulerAngles {
		spatial.ToSlice(eulerRates(q).MulVec(spatial.FromSlice(qdot)), u)
		return
	}
	w := quat.Scale(2, quat.Mul(quatFrom(qdot), quat.Conj(quatFrom(q))))
	u[0], u[1], u[2] = w.Imag, w.Jmag, w.Kmag
}

func (o orientation) qdotdot(m Model, q, u, udot, qdotdot []float64) {
	if m.UseEulerAngles {
		var qd [3]float64
		eulerQDot(q, spatial.FromSlice(u), qd[:])
		rhs := spatial.FromSlice(udot).Sub(eulerRatesDot(q, qd[:]).MulVec(spatial.FromSlice(qd[:])))
		eulerQDot(q, rhs, qdotdot)
		return
	}
	var qd [4]float64
	o.qdot(m, q, u, qd[:])
	w, wdot := pureQuat(spatial.FromSlice(u)), pureQuat(spatial.FromSlice(udot))
	n := quat.Add(quat.Mul(wdot, quatFrom(q)), quat.Mul(w, quatFrom(qd[:])))
	quatTo(quat.Scale(0.5, n), qdotdot)
}

func (orientation) normalize(m Model, q []float64) bool {
	if m.UseEulerAngles {
		return false
	}
	n := quatFrom(q)
	abs := quat.Abs(n)
	if abs == 0 {
		q[0], q[1], q[2], q[3] = 1, 0, 0, 0
		return true
	}
	if abs == 1 {
		return false
	}
	quatTo(quat.Scale(1/abs, n), q)
	return true
}

func (orientation) quaternionErrors(m Model, q, qerr []float64) {
	if m.UseEulerAngles {
		return
	}
	qerr[0] = quat.Abs(quatFrom(q)) - 1
}

// Ball is a spherical joint: M's origin stays on F's origin and M may take any
// orientation. u = w_FM in F.
type Ball struct{ orientation }

func NewBall() *Ball { return &Ball{} }

func (*Ball) Type() string     { return "ball" }
func (b *Ball) NQ(m Model) int { return b.nq(m) }
func (*Ball) NU() int          { return 3 }

func (*Ball) NQuaternions(m Model) int {
	if m.UseEulerAngles {
		return 0
	}
	return 1
}

func (b *Ball) DefaultQ(m Model, q []float64) { b.defaultQ(m, q) }

func (b *Ball) AcrossJointTransform(m Model, q []float64) spatial.Transform {
	return spatial.Transform{R: b.rotation(m, q)}
}

func (*Ball) VelocityJacobian(_ Model, _ []float64, h []spatial.SpatialVec) {
	h[0] = spatial.SpatialVec{W: spatial.XAxis}
	h[1] = spatial.SpatialVec{W: spatial.YAxis}
	h[2] = spatial.SpatialVec{W: spatial.ZAxis}
}

func (*Ball) VelocityJacobianDot(_ Model, _, _ []float64, hdot []spatial.SpatialVec) {
	zeroSpatial(hdot)
}

func (b *Ball) QDot(m Model, q, u, qdot []float64)             { b.qdot(m, q, u, qdot) }
func (b *Ball) UFromQDot(m Model, q, qdot, u []float64)        { b.uFromQDot(m, q, qdot, u) }
func (b *Ball) QDotDot(m Model, q, u, udot, qdotdot []float64) { b.qdotdot(m, q, u, udot, qdotdot) }

func (b *Ball) FitRotation(m Model, r spatial.Rotation, q []float64) { b.fitRotation(m, r, q) }

func (*Ball) FitTranslation(Model, spatial.Vec3, []float64) {}

func (*Ball) FitAngularVelocity(_ Model, _ []float64, w spatial.Vec3, u []float64) {
	spatial.ToSlice(w, u)
}

func (*Ball) FitLinearVelocity(Model, []float64, spatial.Vec3, []float64) {}

func (*Ball) UsingAngles(m Model) (bool, int, int) {
	if m.UseEulerAngles {
		return true, 0, 3
	}
	return false, 0, 0
}

func (b *Ball) NormalizeQ(m Model, q []float64) bool { return b.normalize(m, q) }

func (b *Ball) QuaternionErrors(m Model, q, qerr []float64) { b.quaternionErrors(m, q, qerr) }

// Free gives M six unrestricted degrees of freedom. The q's are the
// orientation (as for Ball) followed by p_FM in F; u = (w_FM, v_FM) in F.
type Free struct{ orientation }

func NewFree() *Free { return &Free{} }

func (*Free) Type() string     { return "free" }
func (f *Free) NQ(m Model) int { return f.nq(m) + 3 }
func (*Free) NU() int          { return 6 }

func (*Free) NQuaternions(m Model) int {
	if m.UseEulerAngles {
		return 0
	}
	return 1
}

func (f *Free) DefaultQ(m Model, q []float64) { f.defaultQ(m, q) }

func (f *Free) AcrossJointTransform(m Model, q []float64) spatial.Transform {
	nr := f.nq(m)
	return spatial.Transform{R: f.rotation(m, q[:nr]), P: spatial.FromSlice(q[nr:])}
}

func (*Free) VelocityJacobian(_ Model, _ []float64, h []spatial.SpatialVec) {
	h[0] = spatial.SpatialVec{W: spatial.XAxis}
	h[1] = spatial.SpatialVec{W: spatial.YAxis}
	h[2] = spatial.SpatialVec{W: spatial.ZAxis}
	h[3] = spatial.SpatialVec{V: spatial.XAxis}
	h[4] = spatial.SpatialVec{V: spatial.YAxis}
	h[5] = spatial.SpatialVec{V: spatial.ZAxis}
}

func (*Free) VelocityJacobianDot(_ Model, _, _ []float64, hdot []spatial.SpatialVec) {
	zeroSpatial(hdot)
}

func (f *Free) QDot(m Model, q, u, qdot []float64) {
	nr := f.nq(m)
	f.qdot(m, q[:nr], u[:3], qdot[:nr])
	copy(qdot[nr:], u[3:])
}

func (f *Free) UFromQDot(m Model, q, qdot, u []float64) {
	nr := f.nq(m)
	f.uFromQDot(m, q[:nr], qdot[:nr], u[:3])
	copy(u[3:], qdot[nr:])
}

func (f *Free) QDotDot(m Model, q, u, udot, qdotdot []float64) {
	nr := f.nq(m)
	f.qdotdot(m, q[:nr], u[:3], udot[:3], qdotdot[:nr])
	copy(qdotdot[nr:], udot[3:])
}

func (f *Free) FitRotation(m Model, r spatial.Rotation, q []float64) {
	f.fitRotation(m, r, q[:f.nq(m)])
}

func (f *Free) FitTranslation(m Model, p spatial.Vec3, q []float64) {
	spatial.ToSlice(p, q[f.nq(m):])
}

func (*Free) FitAngularVelocity(_ Model, _ []float64, w spatial.Vec3, u []float64) {
	spatial.ToSlice(w, u[:3])
}

func (*Free) FitLinearVelocity(_ Model, _ []float64, v spatial.Vec3, u []float64) {
	spatial.ToSlice(v, u[3:])
}

func (*Free) UsingAngles(m Model) (bool, int, int) {
	if m.UseEulerAngles {
		return true, 0, 3
	}
	return false, 0, 0
}

func (f *Free) NormalizeQ(m Model, q []float64) bool { return f.normalize(m, q[:f.nq(m)]) }

func (f *Free) QuaternionErrors(m Model, q, qerr []float64) {
	f.quaternionErrors(m, q[:f.nq(m)], qerr)
}
