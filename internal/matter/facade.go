package matter

import (
	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/stage"
	"github.com/san-kum/mbsim/internal/topology"
)

// BodyTransform returns X_GB. Requires Position.
func (s *State) BodyTransform(b int) (spatial.Transform, error) {
	if err := s.guard("BodyTransform", stage.Position, b); err != nil {
		return spatial.Transform{}, err
	}
	return s.pc.xgb[b], nil
}

// MobilizerTransform returns X_FM, the cross-joint transform. Requires Position.
func (s *State) MobilizerTransform(b int) (spatial.Transform, error) {
	if err := s.guard("MobilizerTransform", stage.Position, b); err != nil {
		return spatial.Transform{}, err
	}
	if b == topology.Ground {
		return spatial.IdentityTransform(), nil
	}
	return s.pc.xfm[b], nil
}

// BodyVelocity returns V_GB about B's origin, in Ground. Requires Velocity.
func (s *State) BodyVelocity(b int) (spatial.SpatialVec, error) {
	if err := s.guard("BodyVelocity", stage.Velocity, b); err != nil {
		return spatial.SpatialVec{}, err
	}
	return s.vc.vgb[b], nil
}

// MobilizerVelocity returns V_FM, in F. Requires Velocity.
func (s *State) MobilizerVelocity(b int) (spatial.SpatialVec, error) {
	if err := s.guard("MobilizerVelocity", stage.Velocity, b); err != nil {
		return spatial.SpatialVec{}, err
	}
	return s.vc.vfm[b], nil
}

// QDot returns a copy of qdot. Requires Velocity.
func (s *State) QDot() ([]float64, error) {
	if err := s.require("QDot", stage.Velocity); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.vc.qdot...), nil
}

// BodyAcceleration returns A_GB about B's origin, in Ground. Requires
// Acceleration.
func (s *State) BodyAcceleration(b int) (spatial.SpatialVec, error) {
	if err := s.guard("BodyAcceleration", stage.Acceleration, b); err != nil {
		return spatial.SpatialVec{}, err
	}
	return s.ac.agb[b], nil
}

// UDot returns a copy of the constrained accelerations. Requires Acceleration.
func (s *State) UDot() ([]float64, error) {
	if err := s.require("UDot", stage.Acceleration); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.ac.udot...), nil
}

// QDotDot returns a copy of qdotdot. Requires Acceleration.
func (s *State) QDotDot() ([]float64, error) {
	if err := s.require("QDotDot", stage.Acceleration); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.ac.qdotdot...), nil
}

// MobilityForces returns the forces applied directly to mobilities at the
// last Dynamics realization, applied and source forces together. Body forces
// are not mapped in; see Subsystem.CalcGeneralizedForces.
func (s *State) MobilityForces() ([]float64, error) {
	if err := s.require("MobilityForces", stage.Dynamics); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.dc.forces.Mobility...), nil
}

// BodyForces returns the total body forces gathered at the last Dynamics
// realization.
func (s *State) BodyForces() ([]spatial.SpatialVec, error) {
	if err := s.require("BodyForces", stage.Dynamics); err != nil {
		return nil, err
	}
	return append([]spatial.SpatialVec(nil), s.dc.forces.Body...), nil
}

func (s *State) guard(op string, st stage.Stage, b int) error {
	if err := s.require(op, st); err != nil {
		return err
	}
	return s.checkBody(b)
}

func (sys *Subsystem) NBodies() int      { return sys.topo.NBodies() }
func (sys *Subsystem) NMobilities() int  { return sys.topo.NMobilities() }
func (sys *Subsystem) NConstraints() int { return sys.topo.NConstraints() }

// NParticles is always zero; particles are not modelled.
func (sys *Subsystem) NParticles() int { return 0 }

func (sys *Subsystem) Parent(b int) (int, error) {
	if b < 0 || b >= sys.topo.NBodies() {
		return 0, errors.Wrapf(ErrBadBody, "Parent(%d)", b)
	}
	return sys.topo.Parent(b), nil
}

// Children returns a copy of b's children in insertion order.
func (sys *Subsystem) Children(b int) ([]int, error) {
	if b < 0 || b >= sys.topo.NBodies() {
		return nil, errors.Wrapf(ErrBadBody, "Children(%d)", b)
	}
	return append([]int(nil), sys.topo.Children(b)...), nil
}

// BodyMassProperties returns the mass properties in effect for b. Requires
// Instance.
func (sys *Subsystem) BodyMassProperties(s *State, b int) (spatial.MassProperties, error) {
	if err := s.guard("BodyMassProperties", stage.Instance, b); err != nil {
		return spatial.MassProperties{}, err
	}
	return s.mass[b], nil
}

func (sys *Subsystem) BodyMass(s *State, b int) (float64, error) {
	mp, err := sys.BodyMassProperties(s, b)
	return mp.Mass, err
}

// BodyCenterOfMassStation returns b's mass center, in B.
func (sys *Subsystem) BodyCenterOfMassStation(s *State, b int) (spatial.Vec3, error) {
	mp, err := sys.BodyMassProperties(s, b)
	return mp.COM, err
}

// MobilizerFrame returns X_BM. Requires Instance.
func (sys *Subsystem) MobilizerFrame(s *State, b int) (spatial.Transform, error) {
	if err := s.guard("MobilizerFrame", stage.Instance, b); err != nil {
		return spatial.Transform{}, err
	}
	return s.xbm[b], nil
}

// MobilizerFrameOnParent returns X_PF. Requires Instance.
func (sys *Subsystem) MobilizerFrameOnParent(s *State, b int) (spatial.Transform, error) {
	if err := s.guard("MobilizerFrameOnParent", stage.Instance, b); err != nil {
		return spatial.Transform{}, err
	}
	return s.xpf[b], nil
}

// CalcSystemMass returns the total mass. Requires Instance.
func (sys *Subsystem) CalcSystemMass(s *State) (float64, error) {
	if err := s.require("CalcSystemMass", stage.Instance); err != nil {
		return 0, err
	}
	return s.ic.totalMass, nil
}

// SetMobilizerPosition sets b's coordinates to best reproduce X_FM, fitting
// the rotation first and the translation second. Requires Model.
func (sys *Subsystem) SetMobilizerPosition(s *State, b int, xfm spatial.Transform) error {
	if err := s.guard("SetMobilizerPosition", stage.Model, b); err != nil {
		return err
	}
	if b == topology.Ground {
		return nil
	}
	mob := sys.topo.Body(b).Mobilizer
	q, err := s.MobilizerQ(b)
	if err != nil {
		return err
	}
	mob.FitRotation(s.model, xfm.R, q)
	mob.FitTranslation(s.model, xfm.P, q)
	return s.SetMobilizerQ(b, q)
}

// SetMobilizerVelocity sets b's speeds to best reproduce V_FM at the current
// q, fitting the angular part first. Requires Model.
func (sys *Subsystem) SetMobilizerVelocity(s *State, b int, vfm spatial.SpatialVec) error {
	if err := s.guard("SetMobilizerVelocity", stage.Model, b); err != nil {
		return err
	}
	if b == topology.Ground {
		return nil
	}
	mob := sys.topo.Body(b).Mobilizer
	start, n := s.QSlot(b)
	q := s.q[start : start+n]
	u, err := s.MobilizerU(b)
	if err != nil {
		return err
	}
	mob.FitAngularVelocity(s.model, q, vfm.W, u)
	mob.FitLinearVelocity(s.model, q, vfm.V, u)
	return s.SetMobilizerU(b, u)
}

// CalcStationLocation maps a station on b to Ground. Requires Position.
func (sys *Subsystem) CalcStationLocation(s *State, b int, station spatial.Vec3) (spatial.Vec3, error) {
	if err := s.guard("CalcStationLocation", stage.Position, b); err != nil {
		return spatial.Vec3{}, err
	}
	return s.pc.xgb[b].Apply(station), nil
}

// CalcStationLocationInBody returns a station fixed on b measured from a's
// origin and expressed in A. With b = Ground it maps a Ground point into A.
// Requires Position.
func (sys *Subsystem) CalcStationLocationInBody(s *State, b int, station spatial.Vec3, a int) (spatial.Vec3, error) {
	if err := s.guard("CalcStationLocationInBody", stage.Position, b); err != nil {
		return spatial.Vec3{}, err
	}
	if err := s.checkBody(a); err != nil {
		return spatial.Vec3{}, err
	}
	return s.pc.xgb[a].Inverse().Apply(s.pc.xgb[b].Apply(station)), nil
}

// CalcVectorOrientation re-expresses a vector given in B in Ground.
func (sys *Subsystem) CalcVectorOrientation(s *State, b int, v spatial.Vec3) (spatial.Vec3, error) {
	if err := s.guard("CalcVectorOrientation", stage.Position, b); err != nil {
		return spatial.Vec3{}, err
	}
	return s.pc.xgb[b].R.MulVec(v), nil
}

// CalcVectorOrientationInBody re-expresses a vector given in B in A.
func (sys *Subsystem) CalcVectorOrientationInBody(s *State, b int, v spatial.Vec3, a int) (spatial.Vec3, error) {
	if err := s.guard("CalcVectorOrientationInBody", stage.Position, b); err != nil {
		return spatial.Vec3{}, err
	}
	if err := s.checkBody(a); err != nil {
		return spatial.Vec3{}, err
	}
	return s.pc.xgb[a].R.T().MulVec(s.pc.xgb[b].R.MulVec(v)), nil
}

// CalcStationVelocity returns the Ground velocity of a station fixed on b,
// in Ground. Requires Velocity.
func (sys *Subsystem) CalcStationVelocity(s *State, b int, station spatial.Vec3) (spatial.Vec3, error) {
	if err := s.guard("CalcStationVelocity", stage.Velocity, b); err != nil {
		return spatial.Vec3{}, err
	}
	r := s.pc.xgb[b].R.MulVec(station)
	return s.vc.vgb[b].ShiftVelocity(r).V, nil
}

// CalcStationVelocityInBody returns the velocity of a station fixed on b as
// seen by an observer fixed on body a, expressed in A.
func (sys *Subsystem) CalcStationVelocityInBody(s *State, b int, station spatial.Vec3, a int) (spatial.Vec3, error) {
	if err := s.guard("CalcStationVelocityInBody", stage.Velocity, b); err != nil {
		return spatial.Vec3{}, err
	}
	if err := s.checkBody(a); err != nil {
		return spatial.Vec3{}, err
	}
	p := s.pc.xgb[b].Apply(station)
	vb := s.vc.vgb[b].ShiftVelocity(p.Sub(s.pc.xgb[b].P)).V
	va := s.vc.vgb[a].ShiftVelocity(p.Sub(s.pc.xgb[a].P)).V
	return s.pc.xgb[a].R.T().MulVec(vb.Sub(va)), nil
}

// CalcStationAcceleration returns the Ground acceleration of a station fixed
// on b, in Ground. Requires Acceleration.
func (sys *Subsystem) CalcStationAcceleration(s *State, b int, station spatial.Vec3) (spatial.Vec3, error) {
	if err := s.guard("CalcStationAcceleration", stage.Acceleration, b); err != nil {
		return spatial.Vec3{}, err
	}
	r := s.pc.xgb[b].R.MulVec(station)
	w, acc := s.vc.vgb[b].W, s.ac.agb[b]
	return acc.V.Add(acc.W.Cross(r)).Add(w.Cross(w.Cross(r))), nil
}
