// Package integrators advances a matter.State in time. Every integrator is a
// client of the realize pipeline: it evaluates qdot and udot at trial points
// on a scratch clone, writes the new q and u back through the state's
// demoting setters and then projects onto the constraint manifold.
//
// Integrators keep no per-trajectory state, so one value may be shared by
// concurrent simulations.
package integrators

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/stage"
)

var ErrUnknownIntegrator = errors.New("integrators: unknown integrator")

// StepResult describes one step. Accepted is false when an adaptive step was
// rejected and the state left unchanged.
type StepResult struct {
	Accepted bool
	Position matter.ProjectionResult
	Velocity matter.ProjectionResult
}

// Converged reports whether both projections reached their tolerance.
func (r StepResult) Converged() bool {
	return r.Position.Converged && r.Velocity.Converged
}

type Integrator interface {
	Name() string
	Step(sys *matter.Subsystem, s *matter.State, dt float64) (StepResult, error)
}

// AdaptiveIntegrator also estimates its local error and suggests the next
// step size.
type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(sys *matter.Subsystem, s *matter.State, dt, tol float64) (StepResult, float64, error)
}

// Projection holds the constraint tolerances applied after every step.
type Projection struct {
	Tol       float64
	TargetTol float64
	Disabled  bool
}

func DefaultProjection() Projection {
	return Projection{Tol: 1e-8, TargetTol: 1e-10}
}

type projecting struct {
	proj Projection
}

// SetProjection replaces the projection settings.
func (p *projecting) SetProjection(proj Projection) { p.proj = proj }

func (p *projecting) Projection() Projection { return p.proj }

// flow evaluates ydot = (qdot, udot) at trial points. y packs q followed by
// u under the state's current coordinate model.
type flow struct {
	sys     *matter.Subsystem
	scratch *matter.State
	nq, n   int
}

func newFlow(sys *matter.Subsystem, s *matter.State) *flow {
	return &flow{sys: sys, scratch: s.Clone(), nq: s.NQ(), n: s.NQ() + s.NU()}
}

func pack(s *matter.State) []float64 {
	return append(s.Q(), s.U()...)
}

func (f *flow) load(t float64, q, u []float64, st stage.Stage) error {
	f.scratch.SetTime(t)
	if err := f.scratch.SetQ(q); err != nil {
		return err
	}
	if err := f.scratch.SetU(u); err != nil {
		return err
	}
	return f.sys.Realize(f.scratch, st)
}

func (f *flow) eval(t float64, y, dy []float64) error {
	if err := f.load(t, y[:f.nq], y[f.nq:], stage.Acceleration); err != nil {
		return err
	}
	qdot, err := f.scratch.QDot()
	if err != nil {
		return err
	}
	udot, err := f.scratch.UDot()
	if err != nil {
		return err
	}
	copy(dy[:f.nq], qdot)
	copy(dy[f.nq:], udot)
	return nil
}

// commit writes y into s at time t and projects. yErr, when non-nil, is an
// error estimate that the projections trim in place.
func (p *projecting) commit(sys *matter.Subsystem, s *matter.State, t float64, y, yErr []float64) (StepResult, error) {
	res := StepResult{Accepted: true}
	nq := s.NQ()
	s.SetTime(t)
	if err := s.SetQ(y[:nq]); err != nil {
		return res, err
	}
	if err := s.SetU(y[nq:]); err != nil {
		return res, err
	}
	if err := sys.Realize(s, stage.Position); err != nil {
		return res, err
	}
	if p.proj.Disabled {
		res.Position.Converged, res.Velocity.Converged = true, true
		return res, sys.Realize(s, stage.Velocity)
	}
	var qErr, uErr []float64
	if yErr != nil {
		qErr, uErr = yErr[:nq], yErr[nq:]
	}
	var err error
	if res.Position, err = sys.ProjectQ(s, qErr, p.proj.Tol, p.proj.TargetTol); err != nil {
		return res, err
	}
	if err := sys.Realize(s, stage.Velocity); err != nil {
		return res, err
	}
	if res.Velocity, err = sys.ProjectU(s, uErr, p.proj.Tol, p.proj.TargetTol); err != nil {
		return res, err
	}
	return res, nil
}

var registry = map[string]func() Integrator{
	"euler":    func() Integrator { return NewEuler() },
	"rk4":      func() Integrator { return NewRK4() },
	"rk45":     func() Integrator { return NewRK45() },
	"verlet":   func() Integrator { return NewVerlet() },
	"leapfrog": func() Integrator { return NewLeapfrog() },
}

// New returns a fresh integrator by name with default projection settings.
func New(name string) (Integrator, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownIntegrator, "%q", name)
	}
	return fn(), nil
}

// Names lists the registered integrators in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
