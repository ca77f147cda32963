package matter

import (
	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/stage"
)

// Forces is a force accumulator. Body forces are about each body's origin
// and in Ground; mobility forces follow the u layout. Accumulation is purely
// additive, so contributors may run in any order.
type Forces struct {
	Body     []spatial.SpatialVec
	Particle []spatial.Vec3
	Mobility []float64
}

func (f *Forces) resize(nb, nu int) {
	if len(f.Body) != nb {
		f.Body = make([]spatial.SpatialVec, nb)
	}
	if len(f.Mobility) != nu {
		f.Mobility = make([]float64, nu)
	}
	f.Particle = f.Particle[:0]
}

func (f *Forces) zero() {
	for i := range f.Body {
		f.Body[i] = spatial.SpatialVec{}
	}
	for i := range f.Particle {
		f.Particle[i] = spatial.Vec3{}
	}
	for i := range f.Mobility {
		f.Mobility[i] = 0
	}
}

func (f *Forces) add(o *Forces) {
	for i := range f.Body {
		f.Body[i] = f.Body[i].Add(o.Body[i])
	}
	for i := range f.Mobility {
		f.Mobility[i] += o.Mobility[i]
	}
}

func (f Forces) clone() Forces {
	return Forces{
		Body:     append([]spatial.SpatialVec(nil), f.Body...),
		Particle: append([]spatial.Vec3(nil), f.Particle...),
		Mobility: append([]float64(nil), f.Mobility...),
	}
}

// ForceSource contributes forces at Dynamics stage. Sources may read any
// quantity realized through Velocity and must only add into f.
type ForceSource interface {
	Name() string
	CalcForces(sys *Subsystem, s *State, f *Forces) error
}

// PotentialSource is implemented by force sources that store energy.
type PotentialSource interface {
	PotentialEnergy(sys *Subsystem, s *State) (float64, error)
}

// ResetForces sizes f for this subsystem and zeroes it.
func (sys *Subsystem) ResetForces(f *Forces) {
	f.resize(sys.topo.NBodies(), sys.topo.NMobilities())
	f.zero()
}

func (sys *Subsystem) checkForces(op string, f *Forces) error {
	if f == nil {
		return errors.Wrapf(ErrBadLength, "%s: nil forces", op)
	}
	if len(f.Body) != sys.topo.NBodies() || len(f.Mobility) != sys.topo.NMobilities() {
		return errors.Wrapf(ErrBadLength, "%s: forces sized %d/%d, want %d/%d (use ResetForces)",
			op, len(f.Body), len(f.Mobility), sys.topo.NBodies(), sys.topo.NMobilities())
	}
	return nil
}

// AddInStationForce adds force (in Ground) applied at station (in B) of body
// b. It needs positions.
func (sys *Subsystem) AddInStationForce(s *State, b int, station, force spatial.Vec3, f *Forces) error {
	if err := s.require("AddInStationForce", stage.Position); err != nil {
		return err
	}
	if err := sys.checkForces("AddInStationForce", f); err != nil {
		return err
	}
	if err := s.checkBody(b); err != nil {
		return err
	}
	r := s.pc.xgb[b].R.MulVec(station)
	f.Body[b] = f.Body[b].Add(spatial.SpatialVec{W: r.Cross(force), V: force})
	return nil
}

// AddInBodyTorque adds a torque (in Ground) to body b.
func (sys *Subsystem) AddInBodyTorque(s *State, b int, torque spatial.Vec3, f *Forces) error {
	if err := s.checkBody(b); err != nil {
		return err
	}
	if err := sys.checkForces("AddInBodyTorque", f); err != nil {
		return err
	}
	f.Body[b].W = f.Body[b].W.Add(torque)
	return nil
}

// AddInMobilityForce adds a generalized force to mobility which of body b.
func (sys *Subsystem) AddInMobilityForce(s *State, b, which int, force float64, f *Forces) error {
	if err := s.checkBody(b); err != nil {
		return err
	}
	if err := sys.checkForces("AddInMobilityForce", f); err != nil {
		return err
	}
	start, n := sys.topo.USlot(b)
	if which < 0 || which >= n {
		return errors.Wrapf(ErrBadLength, "AddInMobilityForce(body %d): mobility %d of %d", b, which, n)
	}
	f.Mobility[start+which] += force
	return nil
}
