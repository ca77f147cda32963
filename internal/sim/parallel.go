package sim

import (
	"context"
	"math/rand"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/mbsim/internal/matter"
)

// Perturb adjusts the initial state of one ensemble member.
type Perturb func(run int, rng *rand.Rand, s *matter.State) error

// Ensemble runs independent trajectories of one Subsystem in parallel. Each
// run gets its own clone of the initial state and fresh metrics, and the
// Subsystem and integrator are shared read-only.
type Ensemble struct {
	base      *Simulator
	numRuns   int
	seedStart int64

	// Perturb, when set, is applied to each run's initial state.
	Perturb Perturb
	// Metrics builds the metrics for one run; metrics hold per-run state
	// and cannot be shared between goroutines.
	Metrics func() []Metric
	// Workers caps concurrency; zero means GOMAXPROCS.
	Workers int
}

func NewEnsemble(s *Simulator, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{base: s, numRuns: numRuns, seedStart: seedStart}
}

// Run returns one result per member. Failed members leave a nil result and
// their errors are combined.
func (e *Ensemble) Run(ctx context.Context, s0 *matter.State, cfg Config) ([]*Result, error) {
	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ParallelFor(e.numRuns, workers, func(start, end int) {
		for idx := start; idx < end; idx++ {
			results[idx], errs[idx] = e.runOne(ctx, idx, s0, cfg)
		}
	})

	var combined error
	for idx, err := range errs {
		if err != nil {
			combined = multierr.Append(combined, errors.Wrapf(err, "run %d", idx))
		}
	}
	return results, combined
}

func (e *Ensemble) runOne(ctx context.Context, idx int, s0 *matter.State, cfg Config) (*Result, error) {
	cfgCopy := cfg
	cfgCopy.Seed = e.seedStart + int64(idx)

	x := s0.Clone()
	if e.Perturb != nil {
		rng := rand.New(rand.NewSource(cfgCopy.Seed))
		if err := e.Perturb(idx, rng, x); err != nil {
			return nil, err
		}
	}

	sim := New(e.base.sys, e.base.integrator)
	sim.SetLogger(e.base.logger.With("run", idx))
	if e.Metrics != nil {
		for _, m := range e.Metrics() {
			sim.AddMetric(m)
		}
	}
	return sim.Run(ctx, x, cfgCopy)
}

// ParallelFor splits [0, n) into at most workers contiguous chunks and runs
// fn on each in its own goroutine.
func ParallelFor(n, workers int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		fn(0, n)
		return
	}

	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}
