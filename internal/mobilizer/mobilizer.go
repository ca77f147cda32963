// Package mobilizer implements the joint kernels of the multibody engine.
//
// A mobilizer connects a body B to its parent P through two fixed frames: F on
// the parent and M on the child. Given its slice of generalized coordinates q
// it produces the across-joint transform X_FM, and given q and the
// generalized speeds u it produces the velocity Jacobian H_FM with
// V_FM = H_FM·u and its exact time derivative HDot_FM. V_FM is the angular
// velocity of M in F and the velocity of M's origin in F, both expressed in F.
//
// Every kernel also offers best-fit solvers that set its coordinates as close
// as its mobility allows to a requested Cartesian rotation, translation,
// angular velocity or linear velocity. These never fail.
package mobilizer

import (
	"math"

	"github.com/san-kum/mbsim/internal/spatial"
)

// Model carries the Model-stage choices that affect coordinate layout.
type Model struct {
	// UseEulerAngles selects body-fixed x-y-z angles instead of quaternions
	// for ball and free mobilizers.
	UseEulerAngles bool
}

// Mobilizer is the fixed contract every joint kernel implements. Slices passed
// in are exactly the mobilizer's own q, u and output slots.
type Mobilizer interface {
	Type() string
	NQ(m Model) int
	NU() int
	// NQuaternions is 1 when the q slice holds a unit quaternion.
	NQuaternions(m Model) int
	DefaultQ(m Model, q []float64)

	AcrossJointTransform(m Model, q []float64) spatial.Transform
	VelocityJacobian(m Model, q []float64, h []spatial.SpatialVec)
	VelocityJacobianDot(m Model, q, u []float64, hdot []spatial.SpatialVec)

	// QDot computes qdot = N(q)·u, UFromQDot its left inverse and QDotDot the
	// time derivative qdotdot = N·udot + NDot·u.
	QDot(m Model, q, u, qdot []float64)
	UFromQDot(m Model, q, qdot, u []float64)
	QDotDot(m Model, q, u, udot, qdotdot []float64)

	FitRotation(m Model, rFM spatial.Rotation, q []float64)
	FitTranslation(m Model, pFM spatial.Vec3, q []float64)
	FitAngularVelocity(m Model, q []float64, wFM spatial.Vec3, u []float64)
	FitLinearVelocity(m Model, q []float64, vFM spatial.Vec3, u []float64)

	// UsingAngles reports whether some q's are angles and which ones.
	UsingAngles(m Model) (ok bool, start, count int)

	// NormalizeQ renormalizes any quaternion in q and reports whether q
	// changed. QuaternionErrors writes |quaternion|-1 per quaternion.
	NormalizeQ(m Model, q []float64) bool
	QuaternionErrors(m Model, q []float64, qerr []float64)
}

// plainKinematics provides the q/u plumbing for mobilizers whose qdot equals u.
type plainKinematics struct{}

func (plainKinematics) NQuaternions(Model) int { return 0 }

func (plainKinematics) DefaultQ(_ Model, q []float64) {
	for i := range q {
		q[i] = 0
	}
}

func (plainKinematics) QDot(_ Model, _, u, qdot []float64)             { copy(qdot, u) }
func (plainKinematics) UFromQDot(_ Model, _, qdot, u []float64)        { copy(u, qdot) }
func (plainKinematics) QDotDot(_ Model, _, _, udot, qdotdot []float64) { copy(qdotdot, udot) }
func (plainKinematics) NormalizeQ(Model, []float64) bool               { return false }
func (plainKinematics) QuaternionErrors(Model, []float64, []float64)   {}

// angleAboutZ returns the rotation angle about z that best approximates r in
// the Frobenius sense.
func angleAboutZ(r spatial.Rotation) float64 {
	return math.Atan2(r[1][0]-r[0][1], r[0][0]+r[1][1])
}

func zeroSpatial(h []spatial.SpatialVec) {
	for i := range h {
		h[i] = spatial.SpatialVec{}
	}
}

// Velocity returns V_FM = H_FM·u for any mobilizer.
func Velocity(mob Mobilizer, m Model, q, u []float64) spatial.SpatialVec {
	h := make([]spatial.SpatialVec, mob.NU())
	mob.VelocityJacobian(m, q, h)
	var v spatial.SpatialVec
	for i, col := range h {
		v = v.Add(col.Scale(u[i]))
	}
	return v
}
