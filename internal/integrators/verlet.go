package integrators

import (
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/stage"
)

// Verlet is velocity Verlet on generalized coordinates. The second
// acceleration is evaluated at the new q with a first order predicted u,
// which keeps it exact for velocity independent forces.
type Verlet struct{ projecting }

func NewVerlet() *Verlet {
	return &Verlet{projecting{proj: DefaultProjection()}}
}

func (v *Verlet) Name() string { return "verlet" }

func (v *Verlet) Step(sys *matter.Subsystem, s *matter.State, dt float64) (StepResult, error) {
	f := newFlow(sys, s)
	t, nq := s.Time(), f.nq
	q, u := s.Q(), s.U()

	if err := f.load(t, q, u, stage.Acceleration); err != nil {
		return StepResult{}, err
	}
	qdot, err := f.scratch.QDot()
	if err != nil {
		return StepResult{}, err
	}
	qdotdot, err := f.scratch.QDotDot()
	if err != nil {
		return StepResult{}, err
	}
	udot, err := f.scratch.UDot()
	if err != nil {
		return StepResult{}, err
	}

	y := buffers.get(f.n)
	defer buffers.put(y)
	dt2 := dt * dt
	for i := 0; i < nq; i++ {
		y[i] = q[i] + qdot[i]*dt + 0.5*qdotdot[i]*dt2
	}
	for i := range u {
		y[nq+i] = u[i] + udot[i]*dt
	}

	if err := f.load(t+dt, y[:nq], y[nq:], stage.Acceleration); err != nil {
		return StepResult{}, err
	}
	udotNew, err := f.scratch.UDot()
	if err != nil {
		return StepResult{}, err
	}
	halfDt := 0.5 * dt
	for i := range u {
		y[nq+i] = u[i] + (udot[i]+udotNew[i])*halfDt
	}
	return v.commit(sys, s, t+dt, y, nil)
}

// Leapfrog is the kick-drift-kick scheme.
type Leapfrog struct{ projecting }

func NewLeapfrog() *Leapfrog {
	return &Leapfrog{projecting{proj: DefaultProjection()}}
}

func (l *Leapfrog) Name() string { return "leapfrog" }

func (l *Leapfrog) Step(sys *matter.Subsystem, s *matter.State, dt float64) (StepResult, error) {
	f := newFlow(sys, s)
	t, nq := s.Time(), f.nq
	q, u := s.Q(), s.U()
	halfDt := dt * 0.5

	if err := f.load(t, q, u, stage.Acceleration); err != nil {
		return StepResult{}, err
	}
	udot, err := f.scratch.UDot()
	if err != nil {
		return StepResult{}, err
	}

	y := buffers.get(f.n)
	defer buffers.put(y)
	uHalf := y[nq:]
	for i := range u {
		uHalf[i] = u[i] + udot[i]*halfDt
	}

	// qdot depends on q through N(q), so the drift uses the half step speeds
	// mapped at the starting pose.
	if err := f.load(t, q, uHalf, stage.Velocity); err != nil {
		return StepResult{}, err
	}
	qdot, err := f.scratch.QDot()
	if err != nil {
		return StepResult{}, err
	}
	for i := 0; i < nq; i++ {
		y[i] = q[i] + qdot[i]*dt
	}

	if err := f.load(t+dt, y[:nq], uHalf, stage.Acceleration); err != nil {
		return StepResult{}, err
	}
	udotNew, err := f.scratch.UDot()
	if err != nil {
		return StepResult{}, err
	}
	for i := range uHalf {
		uHalf[i] += udotNew[i] * halfDt
	}
	return l.commit(sys, s, t+dt, y, nil)
}
