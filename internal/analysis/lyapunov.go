package analysis

import (
	"math"

	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/integrators"
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/stage"
)

// LyapunovExponent estimates the largest Lyapunov exponent of sys from s0 by
// following a copy whose first coordinate is offset by perturbation. The
// separation in (q, u) is renormalized back to perturbation every step and
// the logarithmic growth averaged. A positive value indicates chaos.
//
// s0 is not modified.
func LyapunovExponent(sys *matter.Subsystem, integ integrators.Integrator, s0 *matter.State,
	dt, duration, perturbation float64) (float64, error) {
	if dt <= 0 || duration <= 0 || perturbation <= 0 {
		return 0, errors.Errorf("analysis: dt=%g duration=%g perturbation=%g", dt, duration, perturbation)
	}
	if s0.NQ() == 0 {
		return 0, nil
	}

	x := s0.Clone()
	xp := s0.Clone()
	q := xp.Q()
	q[0] += perturbation
	if err := xp.SetQ(q); err != nil {
		return 0, err
	}
	for _, s := range []*matter.State{x, xp} {
		if err := sys.Realize(s, stage.Velocity); err != nil {
			return 0, err
		}
	}
	d0, err := separation(x, xp)
	if err != nil {
		return 0, err
	}
	if d0 == 0 {
		return 0, nil
	}

	sumLog := 0.0
	steps := int(math.Ceil(duration / dt))
	for i := 0; i < steps; i++ {
		if _, err := integ.Step(sys, x, dt); err != nil {
			return 0, errors.Wrapf(err, "reference step %d", i)
		}
		if _, err := integ.Step(sys, xp, dt); err != nil {
			return 0, errors.Wrapf(err, "perturbed step %d", i)
		}
		if !x.IsFinite() || !xp.IsFinite() {
			return 0, errors.Errorf("analysis: trajectory diverged at t=%g", x.Time())
		}
		d, err := separation(x, xp)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			continue
		}
		sumLog += math.Log(d / d0)
		if err := renormalize(sys, x, xp, d0/d); err != nil {
			return 0, err
		}
	}
	return sumLog / (float64(steps) * dt), nil
}

func separation(a, b *matter.State) (float64, error) {
	if a.NQ() != b.NQ() || a.NU() != b.NU() {
		return 0, errors.New("analysis: states of different shape")
	}
	sum := 0.0
	for _, pair := range [][2][]float64{{a.Q(), b.Q()}, {a.U(), b.U()}} {
		for i := range pair[0] {
			d := pair[1][i] - pair[0][i]
			sum += d * d
		}
	}
	return math.Sqrt(sum), nil
}

// renormalize pulls xp back toward x so their separation is scaled by k.
func renormalize(sys *matter.Subsystem, x, xp *matter.State, k float64) error {
	q, qp := x.Q(), xp.Q()
	for i := range qp {
		qp[i] = q[i] + (qp[i]-q[i])*k
	}
	u, up := x.U(), xp.U()
	for i := range up {
		up[i] = u[i] + (up[i]-u[i])*k
	}
	if err := xp.SetQ(qp); err != nil {
		return err
	}
	if err := xp.SetU(up); err != nil {
		return err
	}
	return sys.Realize(xp, stage.Velocity)
}
