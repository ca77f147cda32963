package export

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/san-kum/mbsim/internal/analysis"
	"github.com/san-kum/mbsim/internal/integrators"
	"github.com/san-kum/mbsim/internal/models"
	"github.com/san-kum/mbsim/internal/sim"
	"github.com/san-kum/mbsim/internal/spatial"
)

func xy(v spatial.Vec3) (float64, float64) { return v.X, v.Y }

func TestTracerFollowsPendulumBob(t *testing.T) {
	m, err := models.New("pendulum", map[string]float64{"length": 1.5})
	if err != nil {
		t.Fatal(err)
	}
	integ, _ := integrators.New("rk4")
	bob := m.System.NBodies() - 1
	com, err := m.System.BodyCenterOfMassStation(m.NewState(), bob)
	if err != nil {
		t.Fatal(err)
	}
	tr := NewTracer(m.System, bob, com, xy)

	s := sim.New(m.System, integ)
	s.AddObserver(tr)
	cfg := sim.DefaultConfig()
	cfg.Duration = 1
	res, err := s.Run(context.Background(), m.NewState(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Err != nil {
		t.Fatal(tr.Err)
	}
	if len(tr.Points) != res.StepsTaken {
		t.Errorf("traced %d points over %d steps", len(tr.Points), res.StepsTaken)
	}
	for _, p := range tr.Points {
		if r := math.Hypot(p.X, p.Y); math.Abs(r-1.5) > 1e-6 {
			t.Fatalf("bob left its circle: r = %v", r)
		}
	}

	pose, err := Pose(m.System, res.Final, xy)
	if err != nil {
		t.Fatal(err)
	}
	if len(pose) != m.System.NBodies()-1 {
		t.Errorf("pose has %d segments", len(pose))
	}

	svg, err := TrajectoryToSVG(tr.Points, pose, 400, 300, "#00ff00")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"<svg", "<path", "<line", "</svg>"} {
		if !strings.Contains(svg, want) {
			t.Errorf("svg missing %s", want)
		}
	}
}

func TestTrajectoryToSVGNeedsPoints(t *testing.T) {
	if _, err := TrajectoryToSVG([]analysis.Point{{X: 1}}, nil, 10, 10, "red"); err == nil {
		t.Error("expected error for a single point")
	}
	svg, err := TrajectoryToSVG([]analysis.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}, nil, 100, 100, "red")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(svg, "<line") {
		t.Error("no pose was given")
	}
}
