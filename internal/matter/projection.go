package matter

import (
	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/stage"
	"github.com/san-kum/mbsim/internal/topology"
)

// MaxProjectionIters caps the Newton iterations of ProjectQ.
const MaxProjectionIters = 20

// maxStepHalvings bounds the line search inside one Newton iteration.
const maxStepHalvings = 8

// ProjectionResult reports what a projection did. Failing to converge is an
// ordinary outcome, so callers can shrink their step and retry.
type ProjectionResult struct {
	Changed     bool
	Converged   bool
	Iterations  int
	InitialNorm float64
	FinalNorm   float64
}

// QErr returns the position constraint errors. Requires Position.
func (s *State) QErr() ([]float64, error) {
	if err := s.require("QErr", stage.Position); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.pc.perr...), nil
}

// UErr returns the velocity constraint errors. Requires Velocity.
func (s *State) UErr() ([]float64, error) {
	if err := s.require("UErr", stage.Velocity); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.vc.verr...), nil
}

// UDotErr returns the acceleration constraint errors left after the
// multipliers were applied. Requires Acceleration.
func (s *State) UDotErr() ([]float64, error) {
	if err := s.require("UDotErr", stage.Acceleration); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.ac.aerr...), nil
}

// Multipliers returns the constraint multipliers λ; the constraint forces
// are −Pᵀ·λ. Requires Acceleration.
func (s *State) Multipliers() ([]float64, error) {
	if err := s.require("Multipliers", stage.Acceleration); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.ac.lambda...), nil
}

// CalcQConstraintNorm is the weighted RMS of the position errors.
func (sys *Subsystem) CalcQConstraintNorm(s *State) (float64, error) {
	if err := s.require("CalcQConstraintNorm", stage.Position); err != nil {
		return 0, err
	}
	return weightedRMS(s.pc.perr, s.ic.qErrWeight), nil
}

// CalcUConstraintNorm is the weighted RMS of the velocity errors.
func (sys *Subsystem) CalcUConstraintNorm(s *State) (float64, error) {
	if err := s.require("CalcUConstraintNorm", stage.Velocity); err != nil {
		return 0, err
	}
	return weightedRMS(s.vc.verr, s.ic.uErrWeight), nil
}

// CalcUDotConstraintNorm is the weighted RMS of the acceleration errors.
func (sys *Subsystem) CalcUDotConstraintNorm(s *State) (float64, error) {
	if err := s.require("CalcUDotConstraintNorm", stage.Acceleration); err != nil {
		return 0, err
	}
	return weightedRMS(s.ac.aerr, s.ic.aErrWeight), nil
}

// ProjectQ moves q onto the position constraint manifold. Quaternions are
// normalized first. Then damped Newton steps Δq = N·Δu, with Δu the weighted
// minimum norm solution of P_q·Δu = perr, run until the weighted RMS error is
// at most targetTol, or at most tol once progress stalls. A step that raises
// the norm is halved. Non-convergence is reported in the result.
//
// qErr, if non-nil, is an error estimate on q (such as an integrator's local
// error). Its component normal to the manifold is removed in place, since the
// projection has just eliminated that part of the error.
//
// Requires Position and leaves the state realized through Position.
func (sys *Subsystem) ProjectQ(s *State, qErr []float64, tol, targetTol float64) (ProjectionResult, error) {
	var res ProjectionResult
	if s.topo != sys.topo {
		return res, ErrWrongTopology
	}
	if err := s.require("ProjectQ", stage.Position); err != nil {
		return res, err
	}
	if qErr != nil && len(qErr) != len(s.q) {
		return res, errors.Wrapf(ErrBadLength, "ProjectQ error estimate: got %d, want %d", len(qErr), len(s.q))
	}
	if targetTol <= 0 || targetTol > tol {
		targetTol = tol
	}

	if sys.normalizeQuaternions(s) {
		res.Changed = true
		if err := sys.Realize(s, stage.Position); err != nil {
			return res, err
		}
	}

	norm := weightedRMS(s.pc.perr, s.ic.qErrWeight)
	res.InitialNorm = norm
	rows := s.ic.qRows
	for res.Iterations < MaxProjectionIters && norm > targetTol {
		res.Iterations++
		du := minNormSolve(selectRows(s.pc.jac, rows), s.ic.qErrWeight, s.uweights, s.pc.perr)
		dq := sys.mapUToQ(s, du)
		q0 := s.Q()

		improved := false
		step := 1.0
		for h := 0; h <= maxStepHalvings; h++ {
			s.UpdQ(func(q []float64) {
				for i := range q {
					q[i] = q0[i] - step*dq[i]
				}
			})
			sys.normalizeQuaternions(s)
			if err := sys.Realize(s, stage.Position); err != nil {
				return res, err
			}
			trial := weightedRMS(s.pc.perr, s.ic.qErrWeight)
			if trial < norm {
				improved = true
				res.Changed = true
				break
			}
			step /= 2
		}
		if !improved {
			if err := s.SetQ(q0); err != nil {
				return res, err
			}
			if err := sys.Realize(s, stage.Position); err != nil {
				return res, err
			}
			break
		}
		next := weightedRMS(s.pc.perr, s.ic.qErrWeight)
		slow := next > norm/2
		norm = next
		if norm <= tol && slow {
			break
		}
	}
	res.FinalNorm = norm
	res.Converged = norm <= tol

	if qErr != nil && len(rows) > 0 {
		sys.removeNormalQError(s, rows, qErr)
	}
	return res, nil
}

// ProjectU removes the velocity constraint errors with a weighted minimum
// norm change to u. The problem is linear, so one solve normally suffices; a
// few repeats absorb round-off. uErr is treated like ProjectQ's qErr.
//
// Requires Velocity and leaves the state realized through Velocity.
func (sys *Subsystem) ProjectU(s *State, uErr []float64, tol, targetTol float64) (ProjectionResult, error) {
	var res ProjectionResult
	if s.topo != sys.topo {
		return res, ErrWrongTopology
	}
	if err := s.require("ProjectU", stage.Velocity); err != nil {
		return res, err
	}
	if uErr != nil && len(uErr) != len(s.u) {
		return res, errors.Wrapf(ErrBadLength, "ProjectU error estimate: got %d, want %d", len(uErr), len(s.u))
	}
	if targetTol <= 0 || targetTol > tol {
		targetTol = tol
	}

	norm := weightedRMS(s.vc.verr, s.ic.uErrWeight)
	res.InitialNorm = norm
	rows := s.ic.uRows
	const maxSolves = 3
	for res.Iterations < maxSolves && norm > targetTol {
		res.Iterations++
		du := minNormSolve(selectRows(s.pc.jac, rows), s.ic.uErrWeight, s.uweights, s.vc.verr)
		u0 := s.U()
		s.UpdU(func(u []float64) {
			for i := range u {
				u[i] -= du[i]
			}
		})
		if err := sys.Realize(s, stage.Velocity); err != nil {
			return res, err
		}
		next := weightedRMS(s.vc.verr, s.ic.uErrWeight)
		if next >= norm {
			if err := s.SetU(u0); err != nil {
				return res, err
			}
			if err := sys.Realize(s, stage.Velocity); err != nil {
				return res, err
			}
			break
		}
		res.Changed = true
		norm = next
	}
	res.FinalNorm = norm
	res.Converged = norm <= tol

	if uErr != nil && len(rows) > 0 {
		p := selectRows(s.pc.jac, rows)
		pe := mulRows(p, uErr)
		du := minNormSolve(p, s.ic.uErrWeight, s.uweights, pe)
		for i := range uErr {
			uErr[i] -= du[i]
		}
	}
	return res, nil
}

// removeNormalQError maps a q error to u with N⁺, removes the part that P_q
// sees and maps the rest back with N.
func (sys *Subsystem) removeNormalQError(s *State, rows []int, qErr []float64) {
	eu := sys.mapQToU(s, qErr)
	p := selectRows(s.pc.jac, rows)
	du := minNormSolve(p, s.ic.qErrWeight, s.uweights, mulRows(p, eu))
	for i := range eu {
		eu[i] -= du[i]
	}
	copy(qErr, sys.mapUToQ(s, eu))
}

func mulRows(p interface {
	Dims() (int, int)
	At(i, j int) float64
}, x []float64) []float64 {
	m, n := p.Dims()
	out := make([]float64, m)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			out[i] += p.At(i, j) * x[j]
		}
	}
	return out
}

// mapUToQ applies N(q) per mobilizer.
func (sys *Subsystem) mapUToQ(s *State, u []float64) []float64 {
	q := make([]float64, len(s.q))
	for b := 1; b < sys.topo.NBodies(); b++ {
		body := sys.topo.Body(b)
		qs, nq := s.layout.Slot(b)
		body.Mobilizer.QDot(s.model, s.q[qs:qs+nq], u[body.UStart:body.UStart+body.NU], q[qs:qs+nq])
	}
	return q
}

// mapQToU applies N⁺(q) per mobilizer.
func (sys *Subsystem) mapQToU(s *State, q []float64) []float64 {
	u := make([]float64, len(s.u))
	for b := 1; b < sys.topo.NBodies(); b++ {
		body := sys.topo.Body(b)
		qs, nq := s.layout.Slot(b)
		body.Mobilizer.UFromQDot(s.model, s.q[qs:qs+nq], q[qs:qs+nq], u[body.UStart:body.UStart+body.NU])
	}
	return u
}

// normalizeQuaternions renormalizes every quaternion in q and reports
// whether any changed. It demotes only when something changed.
func (sys *Subsystem) normalizeQuaternions(s *State) bool {
	if s.layout.NQuaternions == 0 {
		return false
	}
	changed := false
	scratch := append([]float64(nil), s.q...)
	for b := 1; b < sys.topo.NBodies(); b++ {
		if b == topology.Ground {
			continue
		}
		qs, nq := s.layout.Slot(b)
		if sys.topo.Body(b).Mobilizer.NormalizeQ(s.model, scratch[qs:qs+nq]) {
			changed = true
		}
	}
	if changed {
		s.UpdQ(func(q []float64) { copy(q, scratch) })
	}
	return changed
}
