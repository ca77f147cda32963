package sim

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidState indicates NaN or Inf in q or u.
	ErrInvalidState = errors.New("sim: invalid state (NaN or Inf detected)")

	// ErrInvalidConfig indicates a run configuration that cannot be stepped.
	ErrInvalidConfig = errors.New("sim: invalid config")

	// ErrStepTooSmall indicates adaptive timestep became too small.
	ErrStepTooSmall = errors.New("sim: adaptive timestep below minimum")
)

// SimulationError wraps an error with the step and time at which it occurred.
type SimulationError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d, t=%.6g: %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
