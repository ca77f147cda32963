// Package stage defines the realization stages of a multibody state and the
// Ladder that tracks which of them are current.
//
// Stages are totally ordered. A stage may be realized only once its
// predecessor is current, re-realizing a current stage is a constant-time
// no-op, and invalidating a stage demotes the ladder below it.
package stage

import "fmt"

type Stage int

const (
	// Empty means nothing has been realized, not even the topology.
	Empty Stage = iota - 1
	Topology
	Model
	Instance
	Time
	Position
	Velocity
	Dynamics
	Acceleration
	Report
)

// Count is the number of realizable stages (Topology through Report).
const Count = int(Report) + 1

var names = [...]string{"Topology", "Model", "Instance", "Time", "Position", "Velocity", "Dynamics", "Acceleration", "Report"}

func (s Stage) String() string {
	if s == Empty {
		return "Empty"
	}
	if !s.Valid() {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return names[s]
}

// Valid reports whether s is a realizable stage.
func (s Stage) Valid() bool { return s >= Topology && s <= Report }

// Prev returns the stage below s; Prev(Topology) is Empty.
func (s Stage) Prev() Stage {
	if s <= Empty {
		return Empty
	}
	return s - 1
}

// Next returns the stage above s, saturating at Report.
func (s Stage) Next() Stage {
	if s >= Report {
		return Report
	}
	return s + 1
}

// All returns every realizable stage in order.
func All() []Stage {
	out := make([]Stage, 0, Count)
	for s := Topology; s <= Report; s++ {
		out = append(out, s)
	}
	return out
}
