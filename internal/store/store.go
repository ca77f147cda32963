// Package store keeps finished runs on disk: a metadata.json describing the
// run and its figures of merit, and a states.csv with the sampled
// coordinates and speeds.
package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/sim"
)

var ErrNoRun = errors.New("store: run not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID             string             `json:"id"`
	Model          string             `json:"model"`
	Timestamp      time.Time          `json:"timestamp"`
	Seed           int64              `json:"seed"`
	Dt             float64            `json:"dt"`
	Duration       float64            `json:"duration"`
	Integrator     string             `json:"integrator"`
	Adaptive       bool               `json:"adaptive,omitempty"`
	UseEulerAngles bool               `json:"use_euler_angles,omitempty"`
	Params         map[string]float64 `json:"params,omitempty"`

	Steps              int                `json:"steps"`
	RejectedSteps      int                `json:"rejected_steps"`
	ProjectionFailures int                `json:"projection_failures"`
	EnergyDrift        float64            `json:"energy_drift"`
	Metrics            map[string]float64 `json:"metrics"`
}

// Trajectory is the sampled history read back from states.csv.
type Trajectory struct {
	Times []float64
	Q     [][]float64
	U     [][]float64
}

// Save writes a run under a fresh id and returns that id. The figures of
// merit in meta are taken from result.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	meta.ID = fmt.Sprintf("%s_%d", meta.Model, time.Now().UnixNano())
	meta.Timestamp = time.Now()
	meta.Steps = result.StepsTaken
	meta.RejectedSteps = result.RejectedSteps
	meta.ProjectionFailures = result.ProjectionFailures
	meta.EnergyDrift = finite(result.EnergyDrift)
	meta.Metrics = make(map[string]float64, len(result.Metrics))
	for k, v := range result.Metrics {
		meta.Metrics[k] = finite(v)
	}

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", errors.Wrap(err, "create run dir")
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()
	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", errors.Wrap(err, "write metadata")
	}

	csvFile, err := os.Create(filepath.Join(runDir, "states.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()
	if err := WriteCSV(csvFile, result); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// finite clamps values JSON cannot carry. A diverged run reports its drift
// as the largest float.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.MaxFloat64
	}
	return v
}

// WriteCSV writes one row per sample: time, then q0..qn, then u0..um.
func WriteCSV(out io.Writer, result *sim.Result) error {
	w := csv.NewWriter(out)
	if len(result.Times) == 0 {
		w.Flush()
		return w.Error()
	}

	header := []string{"time"}
	for i := range result.Q[0] {
		header = append(header, fmt.Sprintf("q%d", i))
	}
	for i := range result.U[0] {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	row := make([]string, 0, len(header))
	for i, t := range result.Times {
		row = append(row[:0], strconv.FormatFloat(t, 'g', 10, 64))
		for _, v := range result.Q[i] {
			row = append(row, strconv.FormatFloat(v, 'g', 10, 64))
		}
		for _, v := range result.U[i] {
			row = append(row, strconv.FormatFloat(v, 'g', 10, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNoRun, runID)
		}
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "decode %s metadata", runID)
	}
	return &meta, nil
}

// LoadTrajectory reads states.csv back, splitting columns by their q/u
// header prefix.
func (s *Store) LoadTrajectory(runID string) (*Trajectory, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "states.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNoRun, runID)
		}
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "read %s states", runID)
	}
	tr := &Trajectory{}
	if len(records) < 2 {
		return tr, nil
	}

	header := records[0]
	for n, record := range records[1:] {
		if len(record) != len(header) {
			return nil, errors.Errorf("%s states row %d: %d fields, want %d", runID, n+1, len(record), len(header))
		}
		var q, u []float64
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "%s states row %d", runID, n+1)
			}
			switch {
			case j == 0:
				tr.Times = append(tr.Times, v)
			case strings.HasPrefix(header[j], "q"):
				q = append(q, v)
			case strings.HasPrefix(header[j], "u"):
				u = append(u, v)
			}
		}
		tr.Q = append(tr.Q, q)
		tr.U = append(tr.U, u)
	}
	return tr, nil
}

// ExportData is the self-contained JSON form of a run.
type ExportData struct {
	RunMetadata
	Times []float64   `json:"times"`
	Q     [][]float64 `json:"q"`
	U     [][]float64 `json:"u"`
}

// ExportJSON writes a stored run as a single JSON document.
func (s *Store) ExportJSON(out io.Writer, runID string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	tr, err := s.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(ExportData{RunMetadata: *meta, Times: tr.Times, Q: tr.Q, U: tr.U})
}
