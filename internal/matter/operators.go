package matter

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/stage"
)

func (sys *Subsystem) checkMobilityVec(op string, s *State, v []float64) error {
	if s.topo != sys.topo {
		return ErrWrongTopology
	}
	if len(v) != sys.topo.NMobilities() {
		return errors.Wrapf(ErrBadLength, "%s: got %d, want %d", op, len(v), sys.topo.NMobilities())
	}
	return nil
}

// MultiplyByM returns M·v in O(n). Requires Position.
func (sys *Subsystem) MultiplyByM(s *State, v []float64) ([]float64, error) {
	if err := sys.checkMobilityVec("MultiplyByM", s, v); err != nil {
		return nil, err
	}
	if err := s.require("MultiplyByM", stage.Position); err != nil {
		return nil, err
	}
	out := make([]float64, len(v))
	sys.multiplyByM(s, v, out)
	return out, nil
}

// MultiplyByMInv returns M⁻¹·f in O(n) without forming M. Requires Position.
func (sys *Subsystem) MultiplyByMInv(s *State, f []float64) ([]float64, error) {
	if err := sys.checkMobilityVec("MultiplyByMInv", s, f); err != nil {
		return nil, err
	}
	if err := s.require("MultiplyByMInv", stage.Position); err != nil {
		return nil, err
	}
	out := make([]float64, len(f))
	sys.multiplyByMInv(s, f, out)
	return out, nil
}

// CalcM forms the mass matrix column by column. Requires Position.
func (sys *Subsystem) CalcM(s *State) (*mat.Dense, error) {
	return sys.formSquare("CalcM", s, sys.multiplyByM)
}

// CalcMInv forms M⁻¹ column by column. Requires Position.
func (sys *Subsystem) CalcMInv(s *State) (*mat.Dense, error) {
	return sys.formSquare("CalcMInv", s, sys.multiplyByMInv)
}

func (sys *Subsystem) formSquare(op string, s *State, apply func(*State, []float64, []float64)) (*mat.Dense, error) {
	if s.topo != sys.topo {
		return nil, ErrWrongTopology
	}
	if err := s.require(op, stage.Position); err != nil {
		return nil, err
	}
	n := sys.topo.NMobilities()
	if n == 0 {
		return &mat.Dense{}, nil
	}
	m := mat.NewDense(n, n, nil)
	e, col := make([]float64, n), make([]float64, n)
	for j := 0; j < n; j++ {
		fill(e, 0)
		e[j] = 1
		apply(s, e, col)
		m.SetCol(j, col)
	}
	return m, nil
}

// CalcInverseDynamics returns the mobility forces that, added to the given
// applied forces, produce the accelerations udot:
//
//	f = M·udot + c(q,u) − Jᵀ·F_body − f_mobility
//
// applied may be nil. Constraint forces are not included. Requires Velocity.
func (sys *Subsystem) CalcInverseDynamics(s *State, udot []float64, applied *Forces) ([]float64, error) {
	if err := sys.checkMobilityVec("CalcInverseDynamics", s, udot); err != nil {
		return nil, err
	}
	if err := s.require("CalcInverseDynamics", stage.Velocity); err != nil {
		return nil, err
	}
	nb := sys.topo.NBodies()
	agb := make([]spatial.SpatialVec, nb)
	sys.accelerationsFromUDot(s, udot, s.vc.coriolis, agb)
	f := make([]spatial.SpatialVec, nb)
	for b := 1; b < nb; b++ {
		f[b] = s.mass[b].SpatialInertia(s.pc.xgb[b].R).MulVec(agb[b]).Add(s.vc.gyroscopic[b])
		if applied != nil {
			f[b] = f[b].Sub(applied.Body[b])
		}
	}
	out := make([]float64, len(udot))
	sys.jacobianTranspose(s, f, nil, out, make([]spatial.SpatialVec, nb))
	if applied != nil {
		for i := range out {
			out[i] -= applied.Mobility[i]
		}
	}
	return out, nil
}

// CalcGeneralizedForces returns Jᵀ·F_body + f_mobility for the forces
// gathered at the last Dynamics realization: the total applied load as seen
// by each mobility. Requires Dynamics.
func (sys *Subsystem) CalcGeneralizedForces(s *State) ([]float64, error) {
	if s.topo != sys.topo {
		return nil, ErrWrongTopology
	}
	if err := s.require("CalcGeneralizedForces", stage.Dynamics); err != nil {
		return nil, err
	}
	out := make([]float64, sys.topo.NMobilities())
	scratch := make([]spatial.SpatialVec, sys.topo.NBodies())
	sys.jacobianTranspose(s, s.dc.forces.Body, s.dc.forces.Mobility, out, scratch)
	return out, nil
}

// CalcStationJacobian returns the 3×nu matrix mapping u to the Ground
// velocity of a station fixed on body b. Requires Position.
func (sys *Subsystem) CalcStationJacobian(s *State, b int, station spatial.Vec3) (*mat.Dense, error) {
	if err := s.require("CalcStationJacobian", stage.Position); err != nil {
		return nil, err
	}
	if err := s.checkBody(b); err != nil {
		return nil, err
	}
	nb, nu := sys.topo.NBodies(), sys.topo.NMobilities()
	if nu == 0 {
		return &mat.Dense{}, nil
	}
	jac := mat.NewDense(3, nu, nil)
	body := make([]spatial.SpatialVec, nb)
	scratch := make([]spatial.SpatialVec, nb)
	r := s.pc.xgb[b].R.MulVec(station)
	for k := 0; k < 3; k++ {
		for i := range body {
			body[i] = spatial.SpatialVec{}
		}
		f := spatial.SetComponent(spatial.Vec3{}, k, 1)
		body[b] = spatial.SpatialVec{W: r.Cross(f), V: f}
		sys.jacobianTranspose(s, body, nil, jac.RawRowView(k), scratch)
	}
	return jac, nil
}

// ConstraintJacobian returns a copy of the constraint Jacobian, one row per
// multiplier in the UDot error layout. Requires Position.
func (sys *Subsystem) ConstraintJacobian(s *State) (*mat.Dense, error) {
	if err := s.require("ConstraintJacobian", stage.Position); err != nil {
		return nil, err
	}
	if s.pc.jac == nil {
		return &mat.Dense{}, nil
	}
	return mat.DenseCopyOf(s.pc.jac), nil
}
