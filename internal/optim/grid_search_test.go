package optim

import (
	"context"
	"errors"
	"testing"

	"github.com/san-kum/mbsim/internal/config"
	"github.com/san-kum/mbsim/internal/experiment"
)

func pendulumExperiment(params map[string]float64) (*experiment.Experiment, error) {
	cfg := config.DefaultConfig()
	cfg.Model = "pendulum"
	cfg.Integrator = "euler"
	cfg.Duration = 2
	cfg.Dt = params["dt"]
	cfg.Params = map[string]float64{"theta0": params["theta0"]}
	exp := experiment.New(cfg, nil)
	return exp, exp.Setup()
}

func TestPoints(t *testing.T) {
	g, err := NewGridSearch([]string{"a", "b"}, [][]float64{{1, 2}, {10, 20, 30}})
	if err != nil {
		t.Fatal(err)
	}
	pts := g.Points()
	if len(pts) != 6 {
		t.Fatalf("expected 6 points, got %d", len(pts))
	}
	if pts[0]["a"] != 1 || pts[0]["b"] != 10 || pts[1]["b"] != 20 || pts[5]["a"] != 2 {
		t.Errorf("unexpected order: %v", pts)
	}
}

func TestNewGridSearchValidates(t *testing.T) {
	if _, err := NewGridSearch([]string{"a"}, nil); err == nil {
		t.Error("expected length mismatch error")
	}
	if _, err := NewGridSearch([]string{"a"}, [][]float64{{}}); err == nil {
		t.Error("expected empty range error")
	}
}

func TestSearchPrefersSmallStep(t *testing.T) {
	g, err := NewGridSearch([]string{"dt", "theta0"}, [][]float64{{0.02, 0.01, 0.002}, {0.3}})
	if err != nil {
		t.Fatal(err)
	}
	best, cells, err := g.Search(context.Background(), pendulumExperiment, "energy_drift")
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 3 {
		t.Fatalf("expected 3 cells, got %d", len(cells))
	}
	if best.Params["dt"] != 0.002 {
		t.Errorf("euler energy drift should shrink with dt, best = %v (%v)", best.Params, best.Value)
	}
	for _, c := range cells {
		if c.Err != nil || c.Value < best.Value {
			t.Errorf("cell %v: value %v err %v", c.Params, c.Value, c.Err)
		}
	}
}

func TestSearchCollectsFailures(t *testing.T) {
	g, err := NewGridSearch([]string{"dt", "theta0"}, [][]float64{{-1, 0.01}, {0.3}})
	if err != nil {
		t.Fatal(err)
	}
	best, cells, err := g.Search(context.Background(), pendulumExperiment, "energy_drift")
	if err != nil {
		t.Fatalf("one good cell should be enough: %v", err)
	}
	if best.Params["dt"] != 0.01 {
		t.Errorf("best = %v", best.Params)
	}
	if cells[0].Err == nil {
		t.Error("negative dt should fail")
	}

	_, _, err = g.Search(context.Background(), pendulumExperiment, "no_such_metric")
	if !errors.Is(err, ErrNoResult) {
		t.Errorf("expected ErrNoResult, got %v", err)
	}
}
