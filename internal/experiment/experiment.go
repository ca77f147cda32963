// Package experiment turns a run configuration into a ready simulator: it
// builds the model, applies the coordinate choice and initial values, and
// wires the integrator, metrics and logger together.
package experiment

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/mbsim/internal/config"
	"github.com/san-kum/mbsim/internal/logging"
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/models"
	"github.com/san-kum/mbsim/internal/sim"
)

var ErrNotSetup = errors.New("experiment: not set up")

type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	logger    *zap.SugaredLogger
	model     *models.Model
	simulator *sim.Simulator
}

func New(cfg *config.Config, logger *zap.SugaredLogger) *Experiment {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Experiment{cfg: cfg, registry: NewRegistry(), logger: logger}
}

// Setup validates the configuration and builds the model and simulator.
func (e *Experiment) Setup() error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	model, err := e.registry.GetModel(e.cfg.Model, e.cfg.Params)
	if err != nil {
		return err
	}
	if e.cfg.UseEulerAngles {
		if err := model.SetUseEulerAngles(true); err != nil {
			return err
		}
	}
	if err := model.SetInitial(nilIfEmpty(e.cfg.InitState.Q), nilIfEmpty(e.cfg.InitState.U)); err != nil {
		return err
	}
	integ, err := e.registry.GetIntegrator(e.cfg.Integrator, e.cfg.ProjectionSettings())
	if err != nil {
		return err
	}

	if l, ok := integ.(interface{ SetLogger(*zap.SugaredLogger) }); ok {
		l.SetLogger(e.logger.With("integrator", integ.Name()))
	}

	e.model = model
	e.simulator = sim.New(model.System, integ)
	e.simulator.SetLogger(e.logger.With("model", model.Name))
	for _, m := range e.registry.DefaultMetrics() {
		e.simulator.AddMetric(m)
	}
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, ErrNotSetup
	}
	return e.simulator.Run(ctx, e.model.NewState(), e.cfg.SimConfig())
}

// RunEnsemble runs cfg.Ensemble.Runs trajectories whose initial coordinates
// are jittered by a normal perturbation of the configured spread.
func (e *Experiment) RunEnsemble(ctx context.Context) ([]*sim.Result, error) {
	if e.simulator == nil {
		return nil, ErrNotSetup
	}
	ens := sim.NewEnsemble(e.simulator, e.cfg.Ensemble.Runs, e.cfg.Seed)
	ens.Workers = e.cfg.Ensemble.Workers
	ens.Metrics = e.registry.DefaultMetrics
	spread := e.cfg.Ensemble.Spread
	ens.Perturb = func(_ int, rng *rand.Rand, s *matter.State) error {
		q := s.Q()
		for i := range q {
			q[i] += spread * rng.NormFloat64()
		}
		return s.SetQ(q)
	}
	return ens.Run(ctx, e.model.NewState(), e.cfg.SimConfig())
}

// Simulator returns the underlying simulator for adding observers.
func (e *Experiment) Simulator() *sim.Simulator {
	return e.simulator
}

func (e *Experiment) Model() *models.Model {
	return e.model
}

func nilIfEmpty(x []float64) []float64 {
	if len(x) == 0 {
		return nil
	}
	return x
}
