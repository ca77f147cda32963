package sim

import (
	"github.com/san-kum/mbsim/internal/integrators"
	"github.com/san-kum/mbsim/internal/matter"
)

// Metric accumulates a figure of merit over a run. Observe sees the initial
// state and then the state after every accepted step.
type Metric interface {
	Name() string
	Observe(sys *matter.Subsystem, s *matter.State, step integrators.StepResult)
	Value() float64
	Reset()
}

// Observer is notified after every accepted step.
type Observer interface {
	OnStep(s *matter.State, step integrators.StepResult)
}

type Config struct {
	Dt       float64
	Duration float64

	// Adaptive stepping uses the integrator's own error estimate when it has
	// one and step doubling otherwise.
	Adaptive  bool
	Tolerance float64
	MinDt     float64
	MaxDt     float64

	ValidateState bool
	// Assemble normalizes quaternions and projects the initial state onto
	// the constraints before the first step.
	Assemble bool
	Seed     int64
}

func DefaultConfig() Config {
	return Config{
		Dt:            0.01,
		Duration:      10,
		Tolerance:     1e-6,
		MinDt:         1e-8,
		MaxDt:         0.1,
		ValidateState: true,
		Assemble:      true,
	}
}

type Result struct {
	Times []float64
	Q     [][]float64
	U     [][]float64
	Final *matter.State

	Metrics            map[string]float64
	StepsTaken         int
	RejectedSteps      int
	ProjectionFailures int
	EnergyDrift        float64
	Errors             []error
}
