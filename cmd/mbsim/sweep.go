package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/san-kum/mbsim/internal/config"
	"github.com/san-kum/mbsim/internal/experiment"
	"github.com/san-kum/mbsim/internal/export"
	"github.com/san-kum/mbsim/internal/optim"
	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/tui"
)

var (
	grid      []string
	metric    string
	traceBody int
	traceOut  string
)

// parseGrid reads name=v1,v2,... entries.
func parseGrid(entries []string) ([]string, [][]float64, error) {
	names := make([]string, 0, len(entries))
	ranges := make([][]float64, 0, len(entries))
	for _, e := range entries {
		name, list, ok := strings.Cut(e, "=")
		if !ok || name == "" {
			return nil, nil, errors.Errorf("grid entry %q: want name=v1,v2", e)
		}
		var values []float64
		for _, f := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "grid %s", name)
			}
			values = append(values, v)
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}
	return names, ranges, nil
}

// applyPoint sets run settings by their config names and treats every
// other name as a model parameter.
func applyPoint(cfg *config.Config, point map[string]float64) {
	for k, v := range point {
		switch k {
		case "dt":
			cfg.Dt = v
		case "tol":
			cfg.Tolerance = v
		case "constraint_tol":
			cfg.Projection.ConstraintTol = v
		case "target_tol":
			cfg.Projection.TargetTol = v
		default:
			if cfg.Params == nil {
				cfg.Params = map[string]float64{}
			}
			cfg.Params[k] = v
		}
	}
}

func sweepModel(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}
	names, ranges, err := parseGrid(grid)
	if err != nil {
		return err
	}
	gs, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	build := func(point map[string]float64) (*experiment.Experiment, error) {
		cfg := base.Clone()
		applyPoint(cfg, point)
		exp := experiment.New(cfg, nil)
		return exp, exp.Setup()
	}
	best, cells, err := gs.Search(cmd.Context(), build, metric)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(metric))
	for _, c := range cells {
		vals := make([]string, len(names))
		for i, n := range names {
			vals[i] = strconv.FormatFloat(c.Params[n], 'g', -1, 64)
		}
		result := fmt.Sprintf("%.4e", c.Value)
		if c.Err != nil {
			result = "error: " + c.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\n", strings.Join(vals, "\t"), result)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(best.Params))
	for k := range best.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("\nbest %s = %.4e at", metric, best.Value)
	for _, k := range keys {
		fmt.Printf(" %s=%g", k, best.Params[k])
	}
	fmt.Println()
	return nil
}

func traceModel(cmd *cobra.Command, args []string) error {
	cfg, exp, err := setup(cmd, args[0])
	if err != nil {
		return err
	}
	m := exp.Model()
	body := traceBody
	if body < 0 {
		body = m.System.NBodies() - 1
	}
	com, err := m.System.BodyCenterOfMassStation(m.NewState(), body)
	if err != nil {
		return err
	}
	plane := tui.PlaneFor(cfg.Model)
	project := export.Projection(func(v spatial.Vec3) (float64, float64) { return plane.Project(v) })
	tracer := export.NewTracer(m.System, body, com, project)
	exp.Simulator().AddObserver(tracer)

	result, err := exp.Run(cmd.Context())
	if err != nil {
		return err
	}
	if tracer.Err != nil {
		return tracer.Err
	}
	pose, err := export.Pose(m.System, result.Final, project)
	if err != nil {
		return err
	}
	svg, err := export.TrajectoryToSVG(tracer.Points, pose, 800, 600, "#00ff88")
	if err != nil {
		return err
	}
	if err := os.WriteFile(traceOut, []byte(svg), 0644); err != nil {
		return err
	}
	fmt.Printf("traced %d points of body %d to %s\n", len(tracer.Points), body, traceOut)
	return nil
}
