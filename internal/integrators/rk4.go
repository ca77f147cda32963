package integrators

import "github.com/san-kum/mbsim/internal/matter"

// RK4 is the classical fourth order Runge-Kutta method.
type RK4 struct{ projecting }

func NewRK4() *RK4 {
	return &RK4{projecting{proj: DefaultProjection()}}
}

func (r *RK4) Name() string { return "rk4" }

func (r *RK4) Step(sys *matter.Subsystem, s *matter.State, dt float64) (StepResult, error) {
	f := newFlow(sys, s)
	n, t := f.n, s.Time()
	x := pack(s)
	k1, k2, k3, k4 := buffers.get(n), buffers.get(n), buffers.get(n), buffers.get(n)
	scratch := buffers.get(n)
	defer buffers.put(k1, k2, k3, k4, scratch)

	if err := f.eval(t, x, k1); err != nil {
		return StepResult{}, err
	}
	for i := 0; i < n; i++ {
		scratch[i] = x[i] + dt*0.5*k1[i]
	}
	if err := f.eval(t+dt*0.5, scratch, k2); err != nil {
		return StepResult{}, err
	}
	for i := 0; i < n; i++ {
		scratch[i] = x[i] + dt*0.5*k2[i]
	}
	if err := f.eval(t+dt*0.5, scratch, k3); err != nil {
		return StepResult{}, err
	}
	for i := 0; i < n; i++ {
		scratch[i] = x[i] + dt*k3[i]
	}
	if err := f.eval(t+dt, scratch, k4); err != nil {
		return StepResult{}, err
	}

	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		x[i] += dt6 * (k1[i] + 2*k2[i] + 2*k3[i] + k4[i])
	}
	return r.commit(sys, s, t+dt, x, nil)
}
