package integrators

import "github.com/san-kum/mbsim/internal/matter"

// Euler is the explicit first order method.
type Euler struct{ projecting }

func NewEuler() *Euler {
	return &Euler{projecting{proj: DefaultProjection()}}
}

func (e *Euler) Name() string { return "euler" }

func (e *Euler) Step(sys *matter.Subsystem, s *matter.State, dt float64) (StepResult, error) {
	f := newFlow(sys, s)
	y := pack(s)
	dy := buffers.get(f.n)
	defer buffers.put(dy)
	if err := f.eval(s.Time(), y, dy); err != nil {
		return StepResult{}, err
	}
	for i := range y {
		y[i] += dt * dy[i]
	}
	return e.commit(sys, s, s.Time()+dt, y, nil)
}
