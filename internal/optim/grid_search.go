// Package optim sweeps run settings and model parameters over a grid and
// picks the combination minimizing one metric.
package optim

import (
	"context"
	"math"
	"runtime"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/mbsim/internal/experiment"
	"github.com/san-kum/mbsim/internal/sim"
)

var ErrNoResult = errors.New("optim: no grid cell produced the metric")

type GridSearch struct {
	paramNames []string
	ranges     [][]float64

	// Workers caps concurrency; zero means GOMAXPROCS.
	Workers int
}

// Cell is one evaluated grid point.
type Cell struct {
	Params map[string]float64
	Value  float64
	Err    error
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, errors.Errorf("optim: %d parameters, %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, errors.Errorf("optim: empty range for %s", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Points enumerates the grid with the last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	points := []map[string]float64{{}}
	for i, name := range g.paramNames {
		next := make([]map[string]float64, 0, len(points)*len(g.ranges[i]))
		for _, p := range points {
			for _, v := range g.ranges[i] {
				q := make(map[string]float64, len(p)+1)
				for k, x := range p {
					q[k] = x
				}
				q[name] = v
				next = append(next, q)
			}
		}
		points = next
	}
	return points
}

// Search runs one experiment per grid point and returns the cell with the
// smallest finite value of metricName, plus every cell in grid order.
// Failed cells carry their error; the search only fails when no cell
// produced a usable value.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (Cell, []Cell, error) {
	points := g.Points()
	cells := make([]Cell, len(points))

	workers := g.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	sim.ParallelFor(len(points), workers, func(start, end int) {
		for i := start; i < end; i++ {
			cells[i] = evaluate(ctx, points[i], buildExperiment, metricName)
		}
	})

	best := Cell{Value: math.Inf(1)}
	var errs error
	for _, c := range cells {
		if c.Err != nil {
			errs = multierr.Append(errs, c.Err)
			continue
		}
		if c.Value < best.Value {
			best = c
		}
	}
	if best.Params == nil {
		if errs == nil {
			errs = ErrNoResult
		}
		return best, cells, errs
	}
	return best, cells, nil
}

func evaluate(ctx context.Context, params map[string]float64,
	build func(map[string]float64) (*experiment.Experiment, error), metricName string) Cell {
	cell := Cell{Params: params, Value: math.NaN()}
	exp, err := build(params)
	if err != nil {
		cell.Err = errors.Wrapf(err, "build %v", params)
		return cell
	}
	result, err := exp.Run(ctx)
	if err != nil {
		cell.Err = errors.Wrapf(err, "run %v", params)
		return cell
	}
	val, ok := result.Metrics[metricName]
	switch {
	case !ok:
		cell.Err = errors.Wrapf(ErrNoResult, "metric %q missing", metricName)
	case math.IsNaN(val) || math.IsInf(val, 0):
		cell.Err = errors.Errorf("optim: %s is %v at %v", metricName, val, params)
	default:
		cell.Value = val
	}
	return cell
}
