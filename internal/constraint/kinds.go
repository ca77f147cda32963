package constraint

import (
	"fmt"

	"github.com/san-kum/mbsim/internal/spatial"
)

// Rod keeps two stations at a fixed distance. Its error is
// (r·r - d²)/2 with r the vector from station A to station B, which keeps the
// derivatives polynomial and well defined when the stations coincide.
type Rod struct {
	BodyA, BodyB       int
	StationA, StationB spatial.Vec3
	Length             float64
}

func NewRod(bodyA int, stationA spatial.Vec3, bodyB int, stationB spatial.Vec3, length float64) *Rod {
	return &Rod{BodyA: bodyA, BodyB: bodyB, StationA: stationA, StationB: stationB, Length: length}
}

func (c *Rod) Name() string   { return fmt.Sprintf("rod(%d,%d)", c.BodyA, c.BodyB) }
func (c *Rod) Counts() Counts { return Counts{Holonomic: 1} }
func (c *Rod) Bodies() []int  { return []int{c.BodyA, c.BodyB} }

func (c *Rod) separation(k Kinematics) spatial.Vec3 {
	return StationLocation(k, c.BodyB, c.StationB).Sub(StationLocation(k, c.BodyA, c.StationA))
}

func (c *Rod) relVelocity(k Kinematics) spatial.Vec3 {
	return StationVelocity(k, c.BodyB, c.StationB).Sub(StationVelocity(k, c.BodyA, c.StationA))
}

func (c *Rod) PositionErrors(k Kinematics, perr []float64) {
	r := c.separation(k)
	perr[0] = (r.Dot(r) - c.Length*c.Length) / 2
}

func (c *Rod) VelocityErrors(k Kinematics, verr []float64) {
	verr[0] = c.separation(k).Dot(c.relVelocity(k))
}

func (c *Rod) AccelerationErrors(k Kinematics, aerr []float64) {
	r, v := c.separation(k), c.relVelocity(k)
	a := StationAcceleration(k, c.BodyB, c.StationB).Sub(StationAcceleration(k, c.BodyA, c.StationA))
	aerr[0] = r.Dot(a) + v.Dot(v)
}

func (c *Rod) ApplyForces(k Kinematics, lambda []float64, body []spatial.SpatialVec, _ []float64) {
	f := c.separation(k).Mul(lambda[0])
	AddStationForce(k, body, c.BodyB, c.StationB, f)
	AddStationForce(k, body, c.BodyA, c.StationA, f.Mul(-1))
}

// CoincidentStations makes a station on one body coincide with a station on
// another, as a ball joint closing a loop would.
type CoincidentStations struct {
	BodyA, BodyB       int
	StationA, StationB spatial.Vec3
}

func NewCoincidentStations(bodyA int, stationA spatial.Vec3, bodyB int, stationB spatial.Vec3) *CoincidentStations {
	return &CoincidentStations{BodyA: bodyA, BodyB: bodyB, StationA: stationA, StationB: stationB}
}

func (c *CoincidentStations) Name() string {
	return fmt.Sprintf("coincident(%d,%d)", c.BodyA, c.BodyB)
}
func (c *CoincidentStations) Counts() Counts { return Counts{Holonomic: 3} }
func (c *CoincidentStations) Bodies() []int  { return []int{c.BodyA, c.BodyB} }

func (c *CoincidentStations) PositionErrors(k Kinematics, perr []float64) {
	d := StationLocation(k, c.BodyB, c.StationB).Sub(StationLocation(k, c.BodyA, c.StationA))
	spatial.ToSlice(d, perr)
}

func (c *CoincidentStations) VelocityErrors(k Kinematics, verr []float64) {
	d := StationVelocity(k, c.BodyB, c.StationB).Sub(StationVelocity(k, c.BodyA, c.StationA))
	spatial.ToSlice(d, verr)
}

func (c *CoincidentStations) AccelerationErrors(k Kinematics, aerr []float64) {
	d := StationAcceleration(k, c.BodyB, c.StationB).Sub(StationAcceleration(k, c.BodyA, c.StationA))
	spatial.ToSlice(d, aerr)
}

func (c *CoincidentStations) ApplyForces(k Kinematics, lambda []float64, body []spatial.SpatialVec, _ []float64) {
	f := spatial.FromSlice(lambda)
	AddStationForce(k, body, c.BodyB, c.StationB, f)
	AddStationForce(k, body, c.BodyA, c.StationA, f.Mul(-1))
}

// coordinate is the shared addressing of constraints on one mobility.
type coordinate struct {
	Body, Which int
}

func (c coordinate) Bodies() []int                 { return []int{c.Body} }
func (c coordinate) Coordinate() (body, which int) { return c.Body, c.Which }

func (c coordinate) applyMobility(k Kinematics, lambda []float64, mobility []float64) {
	mobility[k.UStart(c.Body)+c.Which] += lambda[0]
}

// LockedCoordinate holds one generalized coordinate at a value. The
// mobilizer's qdot must equal its u, which rules out ball and free joints.
type LockedCoordinate struct {
	coordinate
	Value float64
}

func NewLockedCoordinate(body, which int, value float64) *LockedCoordinate {
	return &LockedCoordinate{coordinate: coordinate{Body: body, Which: which}, Value: value}
}

func (c *LockedCoordinate) Name() string {
	return fmt.Sprintf("locked(%d:%d)", c.Body, c.Which)
}
func (c *LockedCoordinate) Counts() Counts { return Counts{Holonomic: 1} }

func (c *LockedCoordinate) PositionErrors(k Kinematics, perr []float64) {
	perr[0] = k.MobilizerQ(c.Body)[c.Which] - c.Value
}

func (c *LockedCoordinate) VelocityErrors(k Kinematics, verr []float64) {
	verr[0] = k.MobilizerU(c.Body)[c.Which]
}

func (c *LockedCoordinate) AccelerationErrors(k Kinematics, aerr []float64) {
	aerr[0] = k.MobilizerUDot(c.Body)[c.Which]
}

func (c *LockedCoordinate) ApplyForces(k Kinematics, lambda []float64, _ []spatial.SpatialVec, mobility []float64) {
	c.applyMobility(k, lambda, mobility)
}

// ConstantSpeed prescribes one generalized speed.
type ConstantSpeed struct {
	coordinate
	Speed float64
}

func NewConstantSpeed(body, which int, speed float64) *ConstantSpeed {
	return &ConstantSpeed{coordinate: coordinate{Body: body, Which: which}, Speed: speed}
}

func (c *ConstantSpeed) Name() string {
	return fmt.Sprintf("speed(%d:%d)", c.Body, c.Which)
}
func (c *ConstantSpeed) Counts() Counts { return Counts{Nonholonomic: 1} }

func (c *ConstantSpeed) PositionErrors(Kinematics, []float64) {}

func (c *ConstantSpeed) VelocityErrors(k Kinematics, verr []float64) {
	verr[0] = k.MobilizerU(c.Body)[c.Which] - c.Speed
}

func (c *ConstantSpeed) AccelerationErrors(k Kinematics, aerr []float64) {
	aerr[0] = k.MobilizerUDot(c.Body)[c.Which]
}

func (c *ConstantSpeed) ApplyForces(k Kinematics, lambda []float64, _ []spatial.SpatialVec, mobility []float64) {
	c.applyMobility(k, lambda, mobility)
}

// ConstantAcceleration prescribes one generalized acceleration.
type ConstantAcceleration struct {
	coordinate
	Acceleration float64
}

func NewConstantAcceleration(body, which int, accel float64) *ConstantAcceleration {
	return &ConstantAcceleration{coordinate: coordinate{Body: body, Which: which}, Acceleration: accel}
}

func (c *ConstantAcceleration) Name() string {
	return fmt.Sprintf("accel(%d:%d)", c.Body, c.Which)
}
func (c *ConstantAcceleration) Counts() Counts { return Counts{Acceleration: 1} }

func (c *ConstantAcceleration) PositionErrors(Kinematics, []float64) {}
func (c *ConstantAcceleration) VelocityErrors(Kinematics, []float64) {}

func (c *ConstantAcceleration) AccelerationErrors(k Kinematics, aerr []float64) {
	aerr[0] = k.MobilizerUDot(c.Body)[c.Which] - c.Acceleration
}

func (c *ConstantAcceleration) ApplyForces(k Kinematics, lambda []float64, _ []spatial.SpatialVec, mobility []float64) {
	c.applyMobility(k, lambda, mobility)
}
