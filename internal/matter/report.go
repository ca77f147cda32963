package matter

import (
	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/stage"
)

// realizeReport computes the system energies, momentum and mass center.
func (sys *Subsystem) realizeReport(s *State) error {
	var rc reportCache
	var weighted spatial.Vec3
	for b := 1; b < sys.topo.NBodies(); b++ {
		x := s.pc.xgb[b]
		v := s.vc.vgb[b]
		h := s.mass[b].SpatialInertia(x.R).MulVec(v)
		rc.kinetic += 0.5 * v.Dot(h)
		rc.momentum = rc.momentum.Add(h.ShiftForce(x.P))
		weighted = weighted.Add(x.Apply(s.mass[b].COM).Mul(s.mass[b].Mass))
	}
	if s.ic.totalMass > 0 {
		rc.massCenter = weighted.Mul(1 / s.ic.totalMass)
	}
	for _, src := range sys.sources {
		ps, ok := src.(PotentialSource)
		if !ok {
			continue
		}
		pe, err := ps.PotentialEnergy(sys, s)
		if err != nil {
			return errors.Wrapf(err, "potential energy of %s", src.Name())
		}
		rc.potential += pe
	}
	s.rc = rc
	return nil
}

// KineticEnergy returns Σ ½·Vᵀ·M·V over all bodies. Requires Report.
func (sys *Subsystem) KineticEnergy(s *State) (float64, error) {
	if err := s.require("KineticEnergy", stage.Report); err != nil {
		return 0, err
	}
	return s.rc.kinetic, nil
}

// PotentialEnergy sums the energy stored by the registered force sources.
func (sys *Subsystem) PotentialEnergy(s *State) (float64, error) {
	if err := s.require("PotentialEnergy", stage.Report); err != nil {
		return 0, err
	}
	return s.rc.potential, nil
}

func (sys *Subsystem) TotalEnergy(s *State) (float64, error) {
	if err := s.require("TotalEnergy", stage.Report); err != nil {
		return 0, err
	}
	return s.rc.kinetic + s.rc.potential, nil
}

// SystemMomentum returns the angular and linear momentum about the Ground
// origin, in Ground. Requires Report.
func (sys *Subsystem) SystemMomentum(s *State) (spatial.SpatialVec, error) {
	if err := s.require("SystemMomentum", stage.Report); err != nil {
		return spatial.SpatialVec{}, err
	}
	return s.rc.momentum, nil
}

// MassCenter returns the system mass center in Ground, or the origin for a
// massless system. Requires Report.
func (sys *Subsystem) MassCenter(s *State) (spatial.Vec3, error) {
	if err := s.require("MassCenter", stage.Report); err != nil {
		return spatial.Vec3{}, err
	}
	return s.rc.massCenter, nil
}
