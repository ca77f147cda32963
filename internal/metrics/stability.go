package metrics

import (
	"math"

	"github.com/san-kum/mbsim/internal/integrators"
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/sim"
	"github.com/san-kum/mbsim/internal/stage"
)

// ConstraintDrift reports the largest weighted position constraint error
// seen after projection.
type ConstraintDrift struct {
	name    string
	maxNorm float64
}

func NewConstraintDrift() *ConstraintDrift {
	return &ConstraintDrift{name: "constraint_drift"}
}

func (c *ConstraintDrift) Name() string {
	return c.name
}

func (c *ConstraintDrift) Observe(sys *matter.Subsystem, s *matter.State, _ integrators.StepResult) {
	if err := sys.Realize(s, stage.Position); err != nil {
		return
	}
	norm, err := sys.CalcQConstraintNorm(s)
	if err != nil {
		return
	}
	c.maxNorm = math.Max(c.maxNorm, norm)
}

func (c *ConstraintDrift) Value() float64 {
	return c.maxNorm
}

func (c *ConstraintDrift) Reset() {
	c.maxNorm = 0
}

// ProjectionFailures counts steps whose position or velocity projection did
// not reach its tolerance.
type ProjectionFailures struct {
	name     string
	failures int
	samples  int
}

func NewProjectionFailures() *ProjectionFailures {
	return &ProjectionFailures{name: "projection_failures"}
}

func (p *ProjectionFailures) Name() string {
	return p.name
}

func (p *ProjectionFailures) Observe(_ *matter.Subsystem, _ *matter.State, step integrators.StepResult) {
	p.samples++
	if !step.Converged() {
		p.failures++
	}
}

func (p *ProjectionFailures) Value() float64 {
	return float64(p.failures)
}

// Rate is the fraction of observed steps that failed.
func (p *ProjectionFailures) Rate() float64 {
	if p.samples == 0 {
		return 0
	}
	return float64(p.failures) / float64(p.samples)
}

func (p *ProjectionFailures) Reset() {
	p.failures = 0
	p.samples = 0
}

// Defaults returns a fresh set of the standard metrics.
func Defaults() []sim.Metric {
	return []sim.Metric{NewEnergyDrift(), NewConstraintDrift(), NewProjectionFailures()}
}
