package integrators

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/san-kum/mbsim/internal/constraint"
	"github.com/san-kum/mbsim/internal/forces"
	"github.com/san-kum/mbsim/internal/logging"
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/mobilizer"
	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/stage"
	"github.com/san-kum/mbsim/internal/topology"
)

const g = 9.81

// pendulum is a unit point mass on a massless unit arm, pinned about z with
// gravity along -y. q is measured from the x axis.
func pendulum(t testing.TB) *matter.Subsystem {
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
	sys.AddForceSource(forces.NewUniformGravity(spatial.V(0, -g, 0)))
	return sys
}

// loop is a double pendulum whose tip is held at a fixed distance from the
// pivot by a rod.
func loop(t testing.TB) (*matter.Subsystem, *matter.State) {
	t.Helper()
	bld := topology.NewBuilder()
	link := spatial.NewMassProperties(1, spatial.V(0.5, 0, 0), spatial.Diag(0.01, 0.08, 0.08))
	a := bld.AddBody(topology.BodySpec{Name: "upper", Parent: topology.Ground, Mobilizer: mobilizer.NewPin(), Mass: link})
	b := bld.AddBody(topology.BodySpec{
		Name: "lower", Parent: a, Mobilizer: mobilizer.NewPin(), Mass: link,
		XPF: spatial.Translation(spatial.V(1, 0, 0)),
	})
	bld.AddConstraint(constraint.NewRod(topology.Ground, spatial.Vec3{}, b, spatial.V(1, 0, 0), 1.5))
	topo, err := bld.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sys := matter.NewSubsystem(topo)
	sys.AddForceSource(forces.NewUniformGravity(spatial.V(0, -g, 0)))

	s := sys.NewState()
	if err := s.SetQ([]float64{-1.2, 1.4}); err != nil {
		t.Fatal(err)
	}
	if err := sys.Realize(s, stage.Position); err != nil {
		t.Fatal(err)
	}
	res, err := sys.ProjectQ(s, nil, 1e-10, 1e-12)
	if err != nil || !res.Converged {
		t.Fatalf("assembly failed: %+v %v", res, err)
	}
	return sys, s
}

func TestSmallOscillation(t *testing.T) {
	tests := []struct {
		name string
		dt   float64
		tol  float64
	}{
		{"euler", 1e-4, 2e-4},
		{"rk4", 1e-2, 1e-5},
		{"rk45", 1e-2, 1e-5},
		{"verlet", 1e-3, 1e-5},
		{"leapfrog", 1e-3, 1e-5},
	}

	const theta0 = 0.01
	omega := math.Sqrt(g)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			integ, err := New(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			sys := pendulum(t)
			s := sys.NewState()
			if err := s.SetQ([]float64{-math.Pi/2 + theta0}); err != nil {
				t.Fatal(err)
			}
			steps := int(math.Round(1 / tt.dt))
			for i := 0; i < steps; i++ {
				res, err := integ.Step(sys, s, tt.dt)
				if err != nil {
					t.Fatalf("step %d: %v", i, err)
				}
				if !res.Accepted {
					t.Fatalf("step %d rejected", i)
				}
			}
			want := theta0 * math.Cos(omega*s.Time())
			got := s.Q()[0] + math.Pi/2
			if math.Abs(got-want) > tt.tol {
				t.Errorf("theta(%.3f) = %v, want %v", s.Time(), got, want)
			}
		})
	}
}

func TestConstrainedLoopStaysOnManifold(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			integ, _ := New(name)
			sys, s := loop(t)
			const tol = 1e-8
			for i := 0; i < 200; i++ {
				res, err := integ.Step(sys, s, 2e-3)
				if err != nil {
					t.Fatalf("step %d: %v", i, err)
				}
				if !res.Converged() {
					t.Fatalf("step %d: projection did not converge: %+v", i, res)
				}
				qn, err := sys.CalcQConstraintNorm(s)
				if err != nil {
					t.Fatal(err)
				}
				un, err := sys.CalcUConstraintNorm(s)
				if err != nil {
					t.Fatal(err)
				}
				if qn > tol || un > tol {
					t.Fatalf("step %d: constraint norms %g %g", i, qn, un)
				}
			}
			if s.Stage() < stage.Velocity {
				t.Errorf("state left at %v", s.Stage())
			}
		})
	}
}

func TestRK45RejectsLargeStep(t *testing.T) {
	sys := pendulum(t)
	s := sys.NewState()
	if err := s.SetU([]float64{3}); err != nil {
		t.Fatal(err)
	}
	q0, u0 := s.Q(), s.U()

	logger, logs := logging.NewObservedTestLogger(t)
	rk := NewRK45()
	rk.SetLogger(logger)
	res, dtNew, err := rk.StepAdaptive(sys, s, 1.0, 1e-10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted {
		t.Fatal("expected the step to be rejected")
	}
	if n := logs.FilterMessage("step rejected").Len(); n != 1 {
		t.Errorf("logged %d rejections, want 1", n)
	}
	if dtNew >= 1.0 {
		t.Errorf("suggested dt %v did not shrink", dtNew)
	}
	if s.Time() != 0 || s.Q()[0] != q0[0] || s.U()[0] != u0[0] {
		t.Errorf("rejected step changed the state: t=%v q=%v u=%v", s.Time(), s.Q(), s.U())
	}
}

func TestRK45GrowsSmallStep(t *testing.T) {
	sys := pendulum(t)
	s := sys.NewState()
	res, dtNew, err := NewRK45().StepAdaptive(sys, s, 1e-5, 1e-6)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted {
		t.Fatal("small step rejected")
	}
	if dtNew <= 1e-5 {
		t.Errorf("suggested dt %v did not grow", dtNew)
	}
	if math.Abs(s.Time()-1e-5) > 1e-18 {
		t.Errorf("time = %v", s.Time())
	}
}

func TestProjectionDisabled(t *testing.T) {
	sys, s := loop(t)
	integ := NewRK4()
	integ.SetProjection(Projection{Disabled: true})
	res, err := integ.Step(sys, s, 1e-3)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged() || res.Position.Iterations != 0 {
		t.Errorf("unexpected result with projection off: %+v", res)
	}
	if integ.Projection().Disabled != true {
		t.Error("projection settings not kept")
	}
}

func TestStepRejectsForeignState(t *testing.T) {
	s := pendulum(t).NewState()
	other := pendulum(t)
	_, err := NewEuler().Step(other, s, 1e-3)
	if !errors.Is(err, matter.ErrWrongTopology) {
		t.Errorf("expected ErrWrongTopology, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	names := Names()
	if !sort.StringsAreSorted(names) {
		t.Errorf("names not sorted: %v", names)
	}
	for _, name := range names {
		integ, err := New(name)
		if err != nil {
			t.Fatal(err)
		}
		if integ.Name() != name {
			t.Errorf("New(%q).Name() = %q", name, integ.Name())
		}
	}
	if _, err := New("midpoint"); !errors.Is(err, ErrUnknownIntegrator) {
		t.Errorf("expected ErrUnknownIntegrator, got %v", err)
	}
	if _, ok := interface{}(NewRK45()).(AdaptiveIntegrator); !ok {
		t.Error("rk45 is not adaptive")
	}
}
