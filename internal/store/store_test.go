package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/mbsim/internal/sim"
)

func sampleResult() *sim.Result {
	return &sim.Result{
		Times:              []float64{0, 0.01},
		Q:                  [][]float64{{1, 0.5}, {0.9, 0.52}},
		U:                  [][]float64{{0, 1}, {-0.1, 1.1}},
		Metrics:            map[string]float64{"energy": 1.5},
		StepsTaken:         1,
		ProjectionFailures: 2,
		EnergyDrift:        1e-4,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(RunMetadata{Model: "pin_slider", Seed: 42, Dt: 0.01, Duration: 1, Integrator: "rk4"}, sampleResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" {
		t.Error("expected non-empty run id")
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Model != "pin_slider" || meta.Seed != 42 {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.Metrics["energy"] != 1.5 {
		t.Errorf("expected energy 1.5, got %f", meta.Metrics["energy"])
	}
	if meta.ProjectionFailures != 2 || meta.Steps != 1 {
		t.Errorf("counters not carried: %+v", meta)
	}

	tr, err := st.LoadTrajectory(runID)
	if err != nil {
		t.Fatalf("load trajectory failed: %v", err)
	}
	if len(tr.Times) != 2 || len(tr.Q) != 2 || len(tr.U) != 2 {
		t.Fatalf("trajectory shape: %d %d %d", len(tr.Times), len(tr.Q), len(tr.U))
	}
	if tr.Q[1][1] != 0.52 || tr.U[1][0] != -0.1 {
		t.Errorf("values not round-tripped: q=%v u=%v", tr.Q[1], tr.U[1])
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	for _, m := range []string{"pendulum", "four_bar"} {
		if _, err := st.Save(RunMetadata{Model: m}, sampleResult()); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Model != "four_bar" {
		t.Errorf("expected newest first, got %s", runs[0].Model)
	}
}

func TestStoreFileStructure(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	runID, err := st.Save(RunMetadata{Model: "chain"}, sampleResult())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	for _, name := range []string{"metadata.json", "states.csv"} {
		if _, err := os.Stat(filepath.Join(dir, runID, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestMissingRun(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Load("nope"); !errors.Is(err, ErrNoRun) {
		t.Errorf("expected ErrNoRun, got %v", err)
	}
	if _, err := st.LoadTrajectory("nope"); !errors.Is(err, ErrNoRun) {
		t.Errorf("expected ErrNoRun, got %v", err)
	}
}

func TestExportJSON(t *testing.T) {
	st := New(t.TempDir())
	runID, err := st.Save(RunMetadata{Model: "pendulum", Integrator: "verlet"}, sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := st.ExportJSON(&buf, runID); err != nil {
		t.Fatal(err)
	}
	var got ExportData
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != runID || got.Integrator != "verlet" || len(got.Q) != 2 {
		t.Errorf("export = %+v", got)
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, &sim.Result{}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected empty output, got %q", buf.String())
	}
}

func TestSaveDivergedRun(t *testing.T) {
	st := New(t.TempDir())
	res := sampleResult()
	res.EnergyDrift = math.Inf(1)
	res.Metrics["energy"] = math.NaN()
	runID, err := st.Save(RunMetadata{Model: "pendulum"}, res)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	meta, err := st.Load(runID)
	if err != nil {
		t.Fatal(err)
	}
	if meta.EnergyDrift != math.MaxFloat64 || meta.Metrics["energy"] != math.MaxFloat64 {
		t.Errorf("non-finite values not clamped: %+v", meta)
	}
}
