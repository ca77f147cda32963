// Package sim drives an integrator over a matter.State: it assembles the
// initial configuration, steps to the requested duration, records the
// trajectory and feeds metrics and observers.
//
// A Simulator is not safe for concurrent use. Ensemble runs independent
// trajectories in parallel over one shared Subsystem.
package sim

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/mbsim/internal/integrators"
	"github.com/san-kum/mbsim/internal/logging"
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/stage"
)

type Simulator struct {
	sys        *matter.Subsystem
	integrator integrators.Integrator
	metrics    []Metric
	observers  []Observer
	logger     *zap.SugaredLogger
}

func New(sys *matter.Subsystem, integrator integrators.Integrator) *Simulator {
	return &Simulator{
		sys:        sys,
		integrator: integrator,
		metrics:    make([]Metric, 0),
		observers:  make([]Observer, 0),
		logger:     logging.NewNop(),
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) SetLogger(logger *zap.SugaredLogger) { s.logger = logger }

func (s *Simulator) Subsystem() *matter.Subsystem       { return s.sys }
func (s *Simulator) Integrator() integrators.Integrator { return s.integrator }

// Run integrates a clone of s0; s0 itself is not modified.
func (s *Simulator) Run(ctx context.Context, s0 *matter.State, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}

	steps := int(math.Ceil(cfg.Duration/cfg.Dt - 1e-9))
	result := &Result{
		Times:   make([]float64, 0, steps+1),
		Q:       make([][]float64, 0, steps+1),
		U:       make([][]float64, 0, steps+1),
		Metrics: make(map[string]float64),
		Errors:  make([]error, 0),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	x, err := s.prepare(s0, cfg)
	if err != nil {
		return nil, err
	}
	initial := initialStep()
	for _, m := range s.metrics {
		m.Observe(s.sys, x, initial)
	}
	record(result, x)

	initialEnergy := s.computeEnergy(x)
	s.logger.Infow("run started", "integrator", s.integrator.Name(),
		"dt", cfg.Dt, "duration", cfg.Duration, "nq", x.NQ(), "nu", x.NU())

	end := x.Time() + cfg.Duration
	dt := cfg.Dt
	if cfg.Adaptive {
		dt = math.Min(dt, cfg.MaxDt)
	}

	for i := 0; x.Time() < end-1e-12*math.Max(1, math.Abs(end)); i++ {
		select {
		case <-ctx.Done():
			result.Final = x
			return result, ctx.Err()
		default:
		}

		h := math.Min(dt, end-x.Time())
		var res integrators.StepResult
		var next *matter.State
		var dtNext float64
		if cfg.Adaptive {
			next, res, dtNext, err = s.adaptiveStep(x, h, cfg)
		} else {
			next = x
			res, err = s.integrator.Step(s.sys, x, h)
			dtNext = dt
		}
		if err != nil {
			result.Final = x
			return result, &SimulationError{Step: i, Time: x.Time(), Wrapped: err}
		}
		if !res.Accepted {
			result.RejectedSteps++
			if dtNext < cfg.MinDt {
				result.Final = x
				return result, &SimulationError{Step: i, Time: x.Time(),
					Wrapped: errors.Wrapf(ErrStepTooSmall, "dt %g", dtNext)}
			}
			dt = dtNext
			continue
		}
		x = next
		if cfg.Adaptive {
			dt = math.Max(cfg.MinDt, math.Min(dtNext, cfg.MaxDt))
		}

		if !res.Converged() {
			result.ProjectionFailures++
			s.logger.Debugw("projection did not converge", "step", i, "t", x.Time(),
				"qNorm", res.Position.FinalNorm, "uNorm", res.Velocity.FinalNorm)
		}

		if cfg.ValidateState && !x.IsFinite() {
			err := &SimulationError{Step: i, Time: x.Time(), Wrapped: ErrInvalidState}
			result.Errors = append(result.Errors, err)
			s.logger.Warnw("state diverged", "step", i, "t", x.Time())
			break
		}

		result.StepsTaken++
		for _, m := range s.metrics {
			m.Observe(s.sys, x, res)
		}
		for _, obs := range s.observers {
			obs.OnStep(x, res)
		}
		record(result, x)
	}

	finalEnergy := s.computeEnergy(x)
	if initialEnergy != 0 {
		result.EnergyDrift = math.Abs(finalEnergy-initialEnergy) / math.Abs(initialEnergy)
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	result.Final = x

	s.logger.Infow("run finished", "steps", result.StepsTaken, "rejected", result.RejectedSteps,
		"projectionFailures", result.ProjectionFailures, "energyDrift", result.EnergyDrift)
	return result, nil
}

func (s *Simulator) validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Adaptive {
		if cfg.Tolerance <= 0 {
			return errors.Wrap(ErrInvalidConfig, "tolerance must be positive for adaptive stepping")
		}
		if cfg.MinDt <= 0 || cfg.MaxDt < cfg.MinDt {
			return errors.Wrapf(ErrInvalidConfig, "bad step bounds [%g, %g]", cfg.MinDt, cfg.MaxDt)
		}
	}
	return nil
}

// prepare clones s0, realizes it to Velocity and, when asked, assembles it.
func (s *Simulator) prepare(s0 *matter.State, cfg Config) (*matter.State, error) {
	x := s0.Clone()
	if err := s.sys.Realize(x, stage.Position); err != nil {
		return nil, err
	}
	if cfg.Assemble {
		proj := integrators.DefaultProjection()
		if p, ok := s.integrator.(interface{ Projection() integrators.Projection }); ok {
			proj = p.Projection()
		}
		res, err := s.sys.ProjectQ(x, nil, proj.Tol, proj.TargetTol)
		if err != nil {
			return nil, err
		}
		if !res.Converged {
			s.logger.Warnw("initial assembly did not converge", "norm", res.FinalNorm)
		}
		if err := s.sys.Realize(x, stage.Velocity); err != nil {
			return nil, err
		}
		if _, err := s.sys.ProjectU(x, nil, proj.Tol, proj.TargetTol); err != nil {
			return nil, err
		}
	}
	return x, s.sys.Realize(x, stage.Velocity)
}

func (s *Simulator) computeEnergy(x *matter.State) float64 {
	if err := s.sys.Realize(x, stage.Report); err != nil {
		s.logger.Debugw("energy unavailable", "error", err)
		return 0
	}
	e, err := s.sys.TotalEnergy(x)
	if err != nil {
		return 0
	}
	return e
}

// adaptiveStep returns the state to continue from, which is x itself for
// integrators with their own error control.
func (s *Simulator) adaptiveStep(x *matter.State, dt float64, cfg Config) (*matter.State, integrators.StepResult, float64, error) {
	if adaptive, ok := s.integrator.(integrators.AdaptiveIntegrator); ok {
		res, dtNew, err := adaptive.StepAdaptive(s.sys, x, dt, cfg.Tolerance)
		if !res.Accepted && err == nil {
			s.logger.Debugw("step rejected", "t", x.Time(), "dt", dt, "next", dtNew)
		}
		return x, res, dtNew, err
	}

	full := x.Clone()
	if _, err := s.integrator.Step(s.sys, full, dt); err != nil {
		return x, integrators.StepResult{}, dt, err
	}
	half := x.Clone()
	if _, err := s.integrator.Step(s.sys, half, dt/2); err != nil {
		return x, integrators.StepResult{}, dt, err
	}
	res, err := s.integrator.Step(s.sys, half, dt/2)
	if err != nil {
		return x, integrators.StepResult{}, dt, err
	}

	diff := distance(full, half)
	if diff > cfg.Tolerance && dt/2 >= cfg.MinDt {
		s.logger.Debugw("step rejected", "t", x.Time(), "dt", dt, "error", diff)
		return x, integrators.StepResult{}, dt / 2, nil
	}
	if diff < cfg.Tolerance/10 {
		dt = math.Min(dt*2, cfg.MaxDt)
	}
	return half, res, dt, nil
}

func distance(a, b *matter.State) float64 {
	sum := 0.0
	qa, qb := a.Q(), b.Q()
	for i := range qa {
		d := qa[i] - qb[i]
		sum += d * d
	}
	ua, ub := a.U(), b.U()
	for i := range ua {
		d := ua[i] - ub[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func record(r *Result, x *matter.State) {
	r.Times = append(r.Times, x.Time())
	r.Q = append(r.Q, x.Q())
	r.U = append(r.U, x.U())
}

func initialStep() integrators.StepResult {
	return integrators.StepResult{
		Accepted: true,
		Position: matter.ProjectionResult{Converged: true},
		Velocity: matter.ProjectionResult{Converged: true},
	}
}

// RunWithCallback steps a clone of s0 with fixed dt until the duration is
// reached or the callback returns false.
func (s *Simulator) RunWithCallback(ctx context.Context, s0 *matter.State, cfg Config, callback func(*matter.State, integrators.StepResult) bool) error {
	if err := s.validateConfig(cfg); err != nil {
		return err
	}

	x, err := s.prepare(s0, cfg)
	if err != nil {
		return err
	}
	res := initialStep()
	end := x.Time() + cfg.Duration

	for step := 0; x.Time() < end; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !callback(x, res) {
			return nil
		}

		if res, err = s.integrator.Step(s.sys, x, cfg.Dt); err != nil {
			return &SimulationError{Step: step, Time: x.Time(), Wrapped: err}
		}

		if cfg.ValidateState && !x.IsFinite() {
			return &SimulationError{Step: step, Time: x.Time(), Wrapped: ErrInvalidState}
		}
	}

	return nil
}
