// Package forces provides force elements that add into a matter.Forces
// accumulator at Dynamics stage.
//
// Elements that store energy also implement [matter.PotentialSource], and
// every element implements [Configurable] so that run configurations can
// adjust its parameters by name.
package forces

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/spatial"
)

var (
	ErrUnknownParam = errors.New("forces: unknown parameter")
	ErrBadMobility  = errors.New("forces: mobility index out of range")
)

// Configurable elements expose their scalar parameters by name.
type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

func unknown(element, name string) error {
	return errors.Wrapf(ErrUnknownParam, "%s has no parameter %q", element, name)
}

// UniformGravity pulls every body's mass center along G.
type UniformGravity struct {
	G spatial.Vec3
}

func NewUniformGravity(g spatial.Vec3) *UniformGravity { return &UniformGravity{G: g} }

func (g *UniformGravity) Name() string { return "gravity" }

func (g *UniformGravity) CalcForces(sys *matter.Subsystem, s *matter.State, f *matter.Forces) error {
	for b := 1; b < sys.NBodies(); b++ {
		mp, err := sys.BodyMassProperties(s, b)
		if err != nil {
			return err
		}
		if mp.Mass == 0 {
			continue
		}
		if err := sys.AddInStationForce(s, b, mp.COM, g.G.Mul(mp.Mass), f); err != nil {
			return err
		}
	}
	return nil
}

// PotentialEnergy is −Σ m·G·p_com, zero when every mass center is at the
// Ground origin.
func (g *UniformGravity) PotentialEnergy(sys *matter.Subsystem, s *matter.State) (float64, error) {
	pe := 0.0
	for b := 1; b < sys.NBodies(); b++ {
		mp, err := sys.BodyMassProperties(s, b)
		if err != nil {
			return 0, err
		}
		p, err := sys.CalcStationLocation(s, b, mp.COM)
		if err != nil {
			return 0, err
		}
		pe -= mp.Mass * g.G.Dot(p)
	}
	return pe, nil
}

func (g *UniformGravity) GetParams() map[string]float64 {
	return map[string]float64{"gx": g.G.X, "gy": g.G.Y, "gz": g.G.Z}
}

func (g *UniformGravity) SetParam(name string, value float64) error {
	switch name {
	case "gx":
		g.G.X = value
	case "gy":
		g.G.Y = value
	case "gz":
		g.G.Z = value
	default:
		return unknown(g.Name(), name)
	}
	return nil
}

// TwoPointLinearSpring pulls two stations together with tension
// K·(|r| − X0) along the line between them.
type TwoPointLinearSpring struct {
	BodyA, BodyB       int
	StationA, StationB spatial.Vec3
	K, X0              float64
}

func NewTwoPointLinearSpring(bodyA int, stationA spatial.Vec3, bodyB int, stationB spatial.Vec3, k, x0 float64) *TwoPointLinearSpring {
	return &TwoPointLinearSpring{BodyA: bodyA, StationA: stationA, BodyB: bodyB, StationB: stationB, K: k, X0: x0}
}

func (sp *TwoPointLinearSpring) Name() string {
	return fmt.Sprintf("spring(%d,%d)", sp.BodyA, sp.BodyB)
}

func (sp *TwoPointLinearSpring) separation(sys *matter.Subsystem, s *matter.State) (spatial.Vec3, error) {
	pa, err := sys.CalcStationLocation(s, sp.BodyA, sp.StationA)
	if err != nil {
		return spatial.Vec3{}, err
	}
	pb, err := sys.CalcStationLocation(s, sp.BodyB, sp.StationB)
	if err != nil {
		return spatial.Vec3{}, err
	}
	return pb.Sub(pa), nil
}

func (sp *TwoPointLinearSpring) CalcForces(sys *matter.Subsystem, s *matter.State, f *matter.Forces) error {
	r, err := sp.separation(sys, s)
	if err != nil {
		return err
	}
	length := r.Norm()
	// No direction is defined when the stations coincide.
	if length == 0 {
		return nil
	}
	fa := r.Mul(sp.K * (length - sp.X0) / length)
	if err := sys.AddInStationForce(s, sp.BodyA, sp.StationA, fa, f); err != nil {
		return err
	}
	return sys.AddInStationForce(s, sp.BodyB, sp.StationB, fa.Mul(-1), f)
}

func (sp *TwoPointLinearSpring) PotentialEnergy(sys *matter.Subsystem, s *matter.State) (float64, error) {
	r, err := sp.separation(sys, s)
	if err != nil {
		return 0, err
	}
	stretch := r.Norm() - sp.X0
	return 0.5 * sp.K * stretch * stretch, nil
}

func (sp *TwoPointLinearSpring) GetParams() map[string]float64 {
	return map[string]float64{"k": sp.K, "x0": sp.X0}
}

func (sp *TwoPointLinearSpring) SetParam(name string, value float64) error {
	switch name {
	case "k":
		sp.K = value
	case "x0":
		sp.X0 = value
	default:
		return unknown(sp.Name(), name)
	}
	return nil
}

func mobilityIndex(sys *matter.Subsystem, s *matter.State, body, which int) error {
	u, err := s.MobilizerU(body)
	if err != nil {
		return err
	}
	if which < 0 || which >= len(u) {
		return errors.Wrapf(ErrBadMobility, "body %d mobility %d of %d", body, which, len(u))
	}
	return nil
}

// MobilityLinearSpring applies −K·(q − Q0) to one mobility. It reads the
// coordinate with the same index, so it is meant for mobilizers whose qdot
// equals u.
type MobilityLinearSpring struct {
	Body, Which int
	K, Q0       float64
}

func NewMobilityLinearSpring(body, which int, k, q0 float64) *MobilityLinearSpring {
	return &MobilityLinearSpring{Body: body, Which: which, K: k, Q0: q0}
}

func (sp *MobilityLinearSpring) Name() string {
	return fmt.Sprintf("mobility_spring(%d:%d)", sp.Body, sp.Which)
}

func (sp *MobilityLinearSpring) coordinate(sys *matter.Subsystem, s *matter.State) (float64, error) {
	if err := mobilityIndex(sys, s, sp.Body, sp.Which); err != nil {
		return 0, err
	}
	q, err := s.MobilizerQ(sp.Body)
	if err != nil {
		return 0, err
	}
	return q[sp.Which], nil
}

func (sp *MobilityLinearSpring) CalcForces(sys *matter.Subsystem, s *matter.State, f *matter.Forces) error {
	q, err := sp.coordinate(sys, s)
	if err != nil {
		return err
	}
	return sys.AddInMobilityForce(s, sp.Body, sp.Which, -sp.K*(q-sp.Q0), f)
}

func (sp *MobilityLinearSpring) PotentialEnergy(sys *matter.Subsystem, s *matter.State) (float64, error) {
	q, err := sp.coordinate(sys, s)
	if err != nil {
		return 0, err
	}
	return 0.5 * sp.K * (q - sp.Q0) * (q - sp.Q0), nil
}

func (sp *MobilityLinearSpring) GetParams() map[string]float64 {
	return map[string]float64{"k": sp.K, "q0": sp.Q0}
}

func (sp *MobilityLinearSpring) SetParam(name string, value float64) error {
	switch name {
	case "k":
		sp.K = value
	case "q0":
		sp.Q0 = value
	default:
		return unknown(sp.Name(), name)
	}
	return nil
}

// MobilityLinearDamper applies −C·u to one mobility.
type MobilityLinearDamper struct {
	Body, Which int
	C           float64
}

func NewMobilityLinearDamper(body, which int, c float64) *MobilityLinearDamper {
	return &MobilityLinearDamper{Body: body, Which: which, C: c}
}

func (d *MobilityLinearDamper) Name() string {
	return fmt.Sprintf("mobility_damper(%d:%d)", d.Body, d.Which)
}

func (d *MobilityLinearDamper) CalcForces(sys *matter.Subsystem, s *matter.State, f *matter.Forces) error {
	if err := mobilityIndex(sys, s, d.Body, d.Which); err != nil {
		return err
	}
	u, err := s.MobilizerU(d.Body)
	if err != nil {
		return err
	}
	return sys.AddInMobilityForce(s, d.Body, d.Which, -d.C*u[d.Which], f)
}

func (d *MobilityLinearDamper) GetParams() map[string]float64 {
	return map[string]float64{"c": d.C}
}

func (d *MobilityLinearDamper) SetParam(name string, value float64) error {
	if name != "c" {
		return unknown(d.Name(), name)
	}
	d.C = value
	return nil
}

// MobilityConstantForce applies a fixed generalized force.
type MobilityConstantForce struct {
	Body, Which int
	F           float64
}

func NewMobilityConstantForce(body, which int, force float64) *MobilityConstantForce {
	return &MobilityConstantForce{Body: body, Which: which, F: force}
}

func (c *MobilityConstantForce) Name() string {
	return fmt.Sprintf("mobility_force(%d:%d)", c.Body, c.Which)
}

func (c *MobilityConstantForce) CalcForces(sys *matter.Subsystem, s *matter.State, f *matter.Forces) error {
	return sys.AddInMobilityForce(s, c.Body, c.Which, c.F, f)
}

func (c *MobilityConstantForce) GetParams() map[string]float64 {
	return map[string]float64{"f": c.F}
}

func (c *MobilityConstantForce) SetParam(name string, value float64) error {
	if name != "f" {
		return unknown(c.Name(), name)
	}
	c.F = value
	return nil
}

// BodyConstantTorque applies a fixed torque, in Ground, to one body.
type BodyConstantTorque struct {
	Body   int
	Torque spatial.Vec3
}

func NewBodyConstantTorque(body int, torque spatial.Vec3) *BodyConstantTorque {
	return &BodyConstantTorque{Body: body, Torque: torque}
}

func (c *BodyConstantTorque) Name() string { return fmt.Sprintf("torque(%d)", c.Body) }

func (c *BodyConstantTorque) CalcForces(sys *matter.Subsystem, s *matter.State, f *matter.Forces) error {
	return sys.AddInBodyTorque(s, c.Body, c.Torque, f)
}

func (c *BodyConstantTorque) GetParams() map[string]float64 {
	return map[string]float64{"tx": c.Torque.X, "ty": c.Torque.Y, "tz": c.Torque.Z}
}

func (c *BodyConstantTorque) SetParam(name string, value float64) error {
	switch name {
	case "tx":
		c.Torque.X = value
	case "ty":
		c.Torque.Y = value
	case "tz":
		c.Torque.Z = value
	default:
		return unknown(c.Name(), name)
	}
	return nil
}
