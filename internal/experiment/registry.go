package experiment

import (
	"github.com/san-kum/mbsim/internal/integrators"
	"github.com/san-kum/mbsim/internal/metrics"
	"github.com/san-kum/mbsim/internal/models"
	"github.com/san-kum/mbsim/internal/sim"
)

// Registry resolves the names used in configs and on the command line.
type Registry struct {
	metrics map[string]func() sim.Metric
}

func NewRegistry() *Registry {
	r := &Registry{
		metrics: make(map[string]func() sim.Metric),
	}

	r.metrics["energy"] = func() sim.Metric { return metrics.NewEnergy() }
	r.metrics["energy_drift"] = func() sim.Metric { return metrics.NewEnergyDrift() }
	r.metrics["constraint_drift"] = func() sim.Metric { return metrics.NewConstraintDrift() }
	r.metrics["projection_failures"] = func() sim.Metric { return metrics.NewProjectionFailures() }

	return r
}

func (r *Registry) GetModel(name string, params map[string]float64) (*models.Model, error) {
	return models.New(name, params)
}

// projectable integrators accept constraint tolerances.
type projectable interface {
	SetProjection(integrators.Projection)
}

func (r *Registry) GetIntegrator(name string, proj integrators.Projection) (integrators.Integrator, error) {
	integ, err := integrators.New(name)
	if err != nil {
		return nil, err
	}
	if p, ok := integ.(projectable); ok {
		p.SetProjection(proj)
	}
	return integ, nil
}

func (r *Registry) ListModels() []string      { return models.Names() }
func (r *Registry) ListIntegrators() []string { return integrators.Names() }

// DefaultMetrics returns a fresh set of metrics for one run.
func (r *Registry) DefaultMetrics() []sim.Metric {
	return []sim.Metric{
		r.metrics["energy_drift"](),
		r.metrics["constraint_drift"](),
		r.metrics["projection_failures"](),
	}
}

// Metric builds one metric by name.
func (r *Registry) Metric(name string) (sim.Metric, bool) {
	fn, ok := r.metrics[name]
	if !ok {
		return nil, false
	}
	return fn(), true
}
