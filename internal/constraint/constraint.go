// Package constraint defines algebraic constraints between bodies and the
// read-only kinematic view they are evaluated against.
//
// A constraint contributes rows at up to three levels. Holonomic rows have a
// position error and, by differentiation, velocity and acceleration errors.
// Nonholonomic rows start at the velocity level and acceleration-only rows
// exist only at the acceleration level. Each constraint also maps a set of
// multipliers to the body and mobility forces it applies; for unit
// multipliers these forces, mapped to generalized coordinates, are exactly the
// rows of the constraint Jacobian.
package constraint

import (
	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/spatial"
)

var (
	ErrBadBody       = errors.New("constraint: body index out of range")
	ErrBadCoordinate = errors.New("constraint: mobility index out of range")
)

// Kinematics is the subset of realized matter quantities a constraint reads.
// Transforms, velocities and accelerations are of body frames in Ground.
type Kinematics interface {
	BodyTransform(b int) spatial.Transform
	BodyVelocity(b int) spatial.SpatialVec
	BodyAcceleration(b int) spatial.SpatialVec

	MobilizerQ(b int) []float64
	MobilizerU(b int) []float64
	MobilizerUDot(b int) []float64

	// UStart is the index of body b's first generalized speed.
	UStart(b int) int
}

// Counts is the number of equations a constraint contributes per kind.
type Counts struct {
	Holonomic    int
	Nonholonomic int
	Acceleration int
}

// Q is the number of position-level rows.
func (c Counts) Q() int { return c.Holonomic }

// U is the number of velocity-level rows.
func (c Counts) U() int { return c.Holonomic + c.Nonholonomic }

// UDot is the number of acceleration-level rows and of multipliers.
func (c Counts) UDot() int { return c.Holonomic + c.Nonholonomic + c.Acceleration }

// Constraint is implemented by every constraint kind. Output slices are
// exactly the constraint's own rows.
type Constraint interface {
	Name() string
	Counts() Counts
	// Bodies lists the bodies the constraint touches, for validation.
	Bodies() []int

	PositionErrors(k Kinematics, perr []float64)
	VelocityErrors(k Kinematics, verr []float64)
	AccelerationErrors(k Kinematics, aerr []float64)

	// ApplyForces adds the forces produced by multipliers lambda. Body forces
	// are about the body origin and expressed in Ground; mobility forces are
	// indexed like the global u vector.
	ApplyForces(k Kinematics, lambda []float64, body []spatial.SpatialVec, mobility []float64)
}

// Coordinated is implemented by constraints acting directly on one
// generalized coordinate, so construction can check the index.
type Coordinated interface {
	Coordinate() (body, which int)
}

// StationLocation returns the location in Ground of station s fixed on b.
func StationLocation(k Kinematics, b int, s spatial.Vec3) spatial.Vec3 {
	return k.BodyTransform(b).Apply(s)
}

// StationVelocity returns the velocity in Ground of station s fixed on b.
func StationVelocity(k Kinematics, b int, s spatial.Vec3) spatial.Vec3 {
	r := k.BodyTransform(b).R.MulVec(s)
	v := k.BodyVelocity(b)
	return v.V.Add(v.W.Cross(r))
}

// StationAcceleration returns the acceleration in Ground of station s fixed
// on b.
func StationAcceleration(k Kinematics, b int, s spatial.Vec3) spatial.Vec3 {
	r := k.BodyTransform(b).R.MulVec(s)
	w := k.BodyVelocity(b).W
	a := k.BodyAcceleration(b)
	return a.V.Add(a.W.Cross(r)).Add(w.Cross(w.Cross(r)))
}

// AddStationForce adds force f (in Ground) applied at station s of body b.
func AddStationForce(k Kinematics, body []spatial.SpatialVec, b int, s, f spatial.Vec3) {
	r := k.BodyTransform(b).R.MulVec(s)
	body[b] = body[b].Add(spatial.SpatialVec{W: r.Cross(f), V: f})
}
