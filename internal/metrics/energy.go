package metrics

import (
	"math"

	"github.com/san-kum/mbsim/internal/integrators"
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/stage"
)

// Energy reports the mean total energy over the observed states.
type Energy struct {
	name        string
	samples     int
	totalEnergy float64
}

func NewEnergy() *Energy {
	return &Energy{name: "energy"}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(sys *matter.Subsystem, s *matter.State, _ integrators.StepResult) {
	energy, ok := totalEnergy(sys, s)
	if !ok {
		return
	}
	e.totalEnergy += energy
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.totalEnergy / float64(e.samples)
}

func (e *Energy) Reset() {
	e.totalEnergy = 0
	e.samples = 0
}

// EnergyDrift reports the largest relative change of kinetic plus potential
// energy from the first observed state. When the initial energy is zero the
// drift is absolute.
type EnergyDrift struct {
	name          string
	initialEnergy float64
	currentEnergy float64
	maxDrift      float64
	samples       int
}

func NewEnergyDrift() *EnergyDrift {
	return &EnergyDrift{name: "energy_drift"}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(sys *matter.Subsystem, s *matter.State, _ integrators.StepResult) {
	energy, ok := totalEnergy(sys, s)
	if !ok {
		return
	}

	if e.samples == 0 {
		e.initialEnergy = energy
	}

	e.currentEnergy = energy
	e.samples++

	drift := math.Abs(energy - e.initialEnergy)
	if e.initialEnergy != 0 {
		drift /= math.Abs(e.initialEnergy)
	}
	e.maxDrift = math.Max(e.maxDrift, drift)
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Reset() {
	e.initialEnergy = 0
	e.currentEnergy = 0
	e.maxDrift = 0
	e.samples = 0
}

func totalEnergy(sys *matter.Subsystem, s *matter.State) (float64, bool) {
	if err := sys.Realize(s, stage.Report); err != nil {
		return 0, false
	}
	energy, err := sys.TotalEnergy(s)
	return energy, err == nil
}
