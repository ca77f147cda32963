package sim

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/san-kum/mbsim/internal/constraint"
	"github.com/san-kum/mbsim/internal/forces"
	"github.com/san-kum/mbsim/internal/integrators"
	"github.com/san-kum/mbsim/internal/logging"
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/mobilizer"
	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/topology"
)

func pendulum(t *testing.T) (*matter.Subsystem, *matter.State) {
	t.Helper()
	bld := topology.NewBuilder()
	bld.AddBody(topology.BodySpec{
		Name: "bob", Parent: topology.Ground, Mobilizer: mobilizer.NewPin(),
		Mass: spatial.PointMass(1, spatial.V(1, 0, 0)),
	})
	topo, err := bld.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sys := matter.NewSubsystem(topo)
	sys.AddForceSource(forces.NewUniformGravity(spatial.V(0, -9.81, 0)))
	s := sys.NewState()
	if err := s.SetQ([]float64{-math.Pi / 4}); err != nil {
		t.Fatal(err)
	}
	return sys, s
}

func unreachableLoop(t *testing.T) (*matter.Subsystem, *matter.State) {
	t.Helper()
	bld := topology.NewBuilder()
	link := spatial.NewMassProperties(1, spatial.V(0.5, 0, 0), spatial.Diag(0.01, 0.08, 0.08))
	a := bld.AddBody(topology.BodySpec{Name: "upper", Parent: topology.Ground, Mobilizer: mobilizer.NewPin(), Mass: link})
	b := bld.AddBody(topology.BodySpec{
		Name: "lower", Parent: a, Mobilizer: mobilizer.NewPin(), Mass: link,
		XPF: spatial.Translation(spatial.V(1, 0, 0)),
	})
	bld.AddConstraint(constraint.NewRod(topology.Ground, spatial.Vec3{}, b, spatial.V(1, 0, 0), 5))
	topo, err := bld.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sys := matter.NewSubsystem(topo)
	return sys, sys.NewState()
}

// nanForce poisons the dynamics after a given time.
type nanForce struct{ after float64 }

func (nanForce) Name() string { return "nan" }

func (n nanForce) CalcForces(sys *matter.Subsystem, s *matter.State, f *matter.Forces) error {
	if s.Time() < n.after {
		return nil
	}
	return sys.AddInMobilityForce(s, 1, 0, math.NaN(), f)
}

type countingMetric struct {
	count    int
	failures int
}

func (c *countingMetric) Name() string { return "count" }
func (c *countingMetric) Observe(_ *matter.Subsystem, _ *matter.State, step integrators.StepResult) {
	c.count++
	if !step.Converged() {
		c.failures++
	}
}
func (c *countingMetric) Value() float64 { return float64(c.count) }
func (c *countingMetric) Reset()         { c.count, c.failures = 0, 0 }

type countingObserver struct{ steps int }

func (o *countingObserver) OnStep(*matter.State, integrators.StepResult) { o.steps++ }

func TestSimulatorRun(t *testing.T) {
	sys, s0 := pendulum(t)
	sim := New(sys, integrators.NewRK4())

	cfg := DefaultConfig()
	cfg.Dt, cfg.Duration = 0.01, 1.0
	result, err := sim.Run(context.Background(), s0, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.Times) != 101 || len(result.Q) != 101 || len(result.U) != 101 {
		t.Fatalf("expected 101 samples, got %d/%d/%d", len(result.Times), len(result.Q), len(result.U))
	}
	if result.StepsTaken != 100 {
		t.Errorf("steps taken = %d", result.StepsTaken)
	}
	if got := result.Final.Time(); math.Abs(got-1) > 1e-9 {
		t.Errorf("final time = %v", got)
	}
	if result.EnergyDrift > 1e-6 {
		t.Errorf("energy drift = %g", result.EnergyDrift)
	}
	if s0.Time() != 0 || s0.Q()[0] != -math.Pi/4 {
		t.Error("initial state was modified")
	}
	if result.Q[0][0] != -math.Pi/4 || result.Q[100][0] == result.Q[0][0] {
		t.Errorf("trajectory did not move: %v -> %v", result.Q[0], result.Q[100])
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	sys, s0 := pendulum(t)
	sim := New(sys, integrators.NewEuler())

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero dt", Config{Dt: 0, Duration: 1.0}},
		{"negative dt", Config{Dt: -0.1, Duration: 1.0}},
		{"zero duration", Config{Dt: 0.1, Duration: 0}},
		{"negative duration", Config{Dt: 0.1, Duration: -1.0}},
		{"adaptive without tolerance", Config{Dt: 0.1, Duration: 1, Adaptive: true, MinDt: 1e-6, MaxDt: 1}},
		{"adaptive with inverted bounds", Config{Dt: 0.1, Duration: 1, Adaptive: true, Tolerance: 1e-6, MinDt: 1, MaxDt: 1e-3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Run(context.Background(), s0, tt.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSimulatorMetricsAndObservers(t *testing.T) {
	sys, s0 := pendulum(t)
	sim := New(sys, integrators.NewRK4())

	metric := &countingMetric{}
	obs := &countingObserver{}
	sim.AddMetric(metric)
	sim.AddObserver(obs)

	result, err := sim.Run(context.Background(), s0, Config{Dt: 0.1, Duration: 1.0})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := result.Metrics["count"]; got != 11 {
		t.Errorf("expected 11 observations, got %v", got)
	}
	if obs.steps != 10 {
		t.Errorf("observer saw %d steps", obs.steps)
	}
}

func TestSimulatorAdaptive(t *testing.T) {
	tests := []struct {
		name  string
		integ integrators.Integrator
	}{
		{"embedded error estimate", integrators.NewRK45()},
		{"step doubling", integrators.NewRK4()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys, s0 := pendulum(t)
			sim := New(sys, tt.integ)
			cfg := DefaultConfig()
			cfg.Adaptive = true
			cfg.Dt, cfg.Duration = 0.5, 2.0
			cfg.Tolerance = 1e-8

			result, err := sim.Run(context.Background(), s0, cfg)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if got := result.Final.Time(); math.Abs(got-2) > 1e-9 {
				t.Errorf("final time = %v", got)
			}
			if result.RejectedSteps == 0 {
				t.Error("expected the first step to be rejected at this tolerance")
			}
			for i := 1; i < len(result.Times); i++ {
				if h := result.Times[i] - result.Times[i-1]; h <= 0 || h > cfg.MaxDt+1e-12 {
					t.Fatalf("step %d has size %v", i, h)
				}
			}
			if result.EnergyDrift > 1e-5 {
				t.Errorf("energy drift = %g", result.EnergyDrift)
			}
		})
	}
}

func TestSimulatorDetectsDivergence(t *testing.T) {
	sys, s0 := pendulum(t)
	sys.AddForceSource(nanForce{after: 0.05})
	sim := New(sys, integrators.NewEuler())

	result, err := sim.Run(context.Background(), s0, DefaultConfig())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one error, got %v", result.Errors)
	}
	var simErr *SimulationError
	if !errors.As(result.Errors[0], &simErr) || !errors.Is(simErr, ErrInvalidState) {
		t.Fatalf("unexpected error %v", result.Errors[0])
	}
	if simErr.Time < 0.05 || result.Final.Time() > 1 {
		t.Errorf("divergence reported at t=%v, run ended at %v", simErr.Time, result.Final.Time())
	}
}

func TestSimulatorCountsProjectionFailures(t *testing.T) {
	sys, s0 := unreachableLoop(t)
	sim := New(sys, integrators.NewRK4())
	logger, logs := logging.NewObservedTestLogger(t)
	sim.SetLogger(logger)
	metric := &countingMetric{}
	sim.AddMetric(metric)

	result, err := sim.Run(context.Background(), s0, Config{Dt: 0.01, Duration: 0.05, Assemble: true})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.ProjectionFailures != result.StepsTaken || result.StepsTaken != 5 {
		t.Errorf("failures %d over %d steps", result.ProjectionFailures, result.StepsTaken)
	}
	if metric.failures != 5 {
		t.Errorf("metric saw %d failures", metric.failures)
	}
	if n := logs.FilterMessage("projection did not converge").Len(); n != 5 {
		t.Errorf("logged %d failures", n)
	}
	if logs.FilterMessage("initial assembly did not converge").Len() != 1 {
		t.Error("assembly failure not logged")
	}
}

func TestSimulatorCancel(t *testing.T) {
	sys, s0 := pendulum(t)
	sim := New(sys, integrators.NewRK4())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := sim.Run(ctx, s0, DefaultConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.StepsTaken != 0 || result.Final == nil {
		t.Errorf("unexpected partial result %+v", result)
	}
}

func TestRunWithCallback(t *testing.T) {
	sys, s0 := pendulum(t)
	sim := New(sys, integrators.NewVerlet())

	calls := 0
	err := sim.RunWithCallback(context.Background(), s0, Config{Dt: 0.01, Duration: 1}, func(s *matter.State, _ integrators.StepResult) bool {
		calls++
		return s.Time() < 0.5-1e-9
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 51 {
		t.Errorf("callback called %d times", calls)
	}
}

func TestEnsemble(t *testing.T) {
	sys, s0 := pendulum(t)
	sim := New(sys, integrators.NewRK4())
	ens := NewEnsemble(sim, 6, 42)
	ens.Workers = 3
	ens.Perturb = func(run int, rng *rand.Rand, s *matter.State) error {
		q := s.Q()
		q[0] += 0.1 * rng.Float64()
		return s.SetQ(q)
	}
	var built int32
	ens.Metrics = func() []Metric {
		atomic.AddInt32(&built, 1)
		return []Metric{&countingMetric{}}
	}

	results, err := ens.Run(context.Background(), s0, Config{Dt: 0.01, Duration: 0.2})
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}
	if len(results) != 6 || built != 6 {
		t.Fatalf("got %d results, built %d metric sets", len(results), built)
	}
	seen := map[float64]bool{}
	for i, r := range results {
		if r.StepsTaken != 20 || r.Metrics["count"] != 21 {
			t.Errorf("run %d: %d steps, metric %v", i, r.StepsTaken, r.Metrics["count"])
		}
		seen[r.Q[0][0]] = true
	}
	if len(seen) != 6 {
		t.Errorf("perturbations not distinct: %v", seen)
	}
	if s0.Q()[0] != -math.Pi/4 {
		t.Error("shared initial state was modified")
	}
}

func TestEnsembleCombinesErrors(t *testing.T) {
	sys, s0 := pendulum(t)
	ens := NewEnsemble(New(sys, integrators.NewEuler()), 4, 0)
	boom := errors.New("boom")
	ens.Perturb = func(run int, _ *rand.Rand, _ *matter.State) error {
		if run%2 == 1 {
			return boom
		}
		return nil
	}

	results, err := ens.Run(context.Background(), s0, Config{Dt: 0.1, Duration: 0.3})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if results[0] == nil || results[1] != nil || results[2] == nil || results[3] != nil {
		t.Errorf("unexpected results %v", results)
	}
}

func TestParallelFor(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 16} {
		hits := make([]int32, 10)
		ParallelFor(len(hits), workers, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Errorf("workers=%d: index %d visited %d times", workers, i, h)
			}
		}
	}
}
