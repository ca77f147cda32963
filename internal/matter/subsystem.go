package matter

import (
	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/stage"
	"github.com/san-kum/mbsim/internal/topology"
)

// Subsystem is the matter of one topology plus the force sources acting on
// it. Add sources before sharing the subsystem between goroutines.
type Subsystem struct {
	topo    *topology.Topology
	sources []ForceSource
}

func NewSubsystem(topo *topology.Topology) *Subsystem {
	return &Subsystem{topo: topo}
}

func (sys *Subsystem) Topology() *topology.Topology { return sys.topo }

// AddForceSource registers src; it is asked for forces at every Dynamics
// realization.
func (sys *Subsystem) AddForceSource(src ForceSource) {
	sys.sources = append(sys.sources, src)
}

func (sys *Subsystem) ForceSources() []ForceSource { return sys.sources }

// NewState returns a state with default coordinates, zero speeds, unit
// weights and the topology's default instance values, realized to Topology.
func (sys *Subsystem) NewState() *State { return newState(sys.topo) }

// Realize brings s up to target, computing only the stages that are not
// already current.
func (sys *Subsystem) Realize(s *State, target stage.Stage) error {
	if s.topo != sys.topo {
		return ErrWrongTopology
	}
	if !target.Valid() {
		return errors.Wrapf(stage.ErrInvalidStage, "realize %d", int(target))
	}
	for st := stage.Topology; st <= target; st++ {
		st := st
		if err := s.ladder.Realize(st, func() error { return sys.compute(s, st) }); err != nil {
			return errors.Wrapf(err, "realize %s", st)
		}
	}
	return nil
}

func (sys *Subsystem) compute(s *State, st stage.Stage) error {
	switch st {
	case stage.Model:
		if len(s.q) != s.layout.NQ {
			return errors.Wrapf(ErrBadLength, "q has %d entries, layout wants %d", len(s.q), s.layout.NQ)
		}
	case stage.Instance:
		return sys.realizeInstance(s)
	case stage.Position:
		return sys.realizePosition(s)
	case stage.Velocity:
		return sys.realizeVelocity(s)
	case stage.Dynamics:
		return sys.realizeDynamics(s)
	case stage.Acceleration:
		return sys.realizeAcceleration(s)
	case stage.Report:
		return sys.realizeReport(s)
	}
	return nil
}

func (sys *Subsystem) realizeInstance(s *State) error {
	topo := sys.topo
	ic := instanceCache{
		xmb:        make([]spatial.Transform, topo.NBodies()),
		qErrWeight: make([]float64, topo.NQErr()),
		uErrWeight: make([]float64, topo.NUErr()),
		aErrWeight: make([]float64, topo.NUDotErr()),
	}
	for b := 0; b < topo.NBodies(); b++ {
		if err := s.mass[b].Validate(); err != nil {
			return errors.Wrapf(err, "body %d (%s)", b, topo.Body(b).Name)
		}
		ic.xmb[b] = s.xbm[b].Inverse()
		ic.totalMass += s.mass[b].Mass
	}
	for c := 0; c < topo.NConstraints(); c++ {
		sl := topo.ConstraintSlots(c)
		w := s.cweights[c]
		fill(ic.qErrWeight[sl.QStart:sl.QStart+sl.Counts.Q()], w)
		fill(ic.uErrWeight[sl.UStart:sl.UStart+sl.Counts.U()], w)
		fill(ic.aErrWeight[sl.UDotStart:sl.UDotStart+sl.Counts.UDot()], w)
		for r := 0; r < sl.Counts.U(); r++ {
			if r < sl.Counts.Q() {
				ic.qRows = append(ic.qRows, sl.UDotStart+r)
			}
			ic.uRows = append(ic.uRows, sl.UDotStart+r)
		}
	}
	s.ic = ic
	return nil
}
