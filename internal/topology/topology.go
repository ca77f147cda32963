// Package topology assembles the body tree and freezes it into an immutable
// Topology that any number of states may share.
//
// Bodies live in an arena indexed by a dense integer id with Ground at 0. A
// body's parent must already have been added, so the graph is a tree by
// construction and every malformed input is reported by Build.
package topology

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/constraint"
	"github.com/san-kum/mbsim/internal/mobilizer"
	"github.com/san-kum/mbsim/internal/spatial"
)

// Ground is the index of the fixed root body.
const Ground = 0

var (
	ErrFrozen         = errors.New("topology: builder already built")
	ErrBadParent      = errors.New("topology: parent index out of range or not yet added")
	ErrDuplicateName  = errors.New("topology: duplicate body name")
	ErrNilMobilizer   = errors.New("topology: body has no mobilizer")
	ErrBadConstraint  = errors.New("topology: invalid constraint")
	ErrEmptyName      = errors.New("topology: body name is empty")
	ErrUnknownBody    = errors.New("topology: unknown body")
	ErrNotPlainCoords = errors.New("topology: coordinate constraint on a mobilizer whose qdot is not u")
)

// BodyError attaches the offending body to a construction error.
type BodyError struct {
	Body    int
	Name    string
	Wrapped error
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("body %d (%q): %v", e.Body, e.Name, e.Wrapped)
}

func (e *BodyError) Unwrap() error { return e.Wrapped }

// ConstraintError attaches the offending constraint to a construction error.
type ConstraintError struct {
	Index   int
	Name    string
	Wrapped error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint %d (%s): %v", e.Index, e.Name, e.Wrapped)
}

func (e *ConstraintError) Unwrap() error { return e.Wrapped }

// Body is a frozen body record. Mass and frames are defaults that a State may
// override at Instance stage.
type Body struct {
	Name      string
	Parent    int
	Children  []int
	Level     int
	Mobilizer mobilizer.Mobilizer
	Mass      spatial.MassProperties
	// XPF places the inboard frame F on the parent; XBM places the outboard
	// frame M on this body.
	XPF, XBM spatial.Transform

	UStart, NU int
}

// ConstraintSlots locates one constraint's rows in the global error vectors.
type ConstraintSlots struct {
	Counts constraint.Counts
	// Starting rows in the Q, U and UDot error vectors. Multipliers follow the
	// UDot layout.
	QStart, UStart, UDotStart int
}

// Topology is immutable after Build and safe for concurrent reads.
type Topology struct {
	bodies      []Body
	order       []int
	byName      map[string]int
	constraints []constraint.Constraint
	slots       []ConstraintSlots
	nu          int
	nqerr       int
	nuerr       int
	nudoterr    int
}

func (t *Topology) NBodies() int      { return len(t.bodies) }
func (t *Topology) NMobilities() int  { return t.nu }
func (t *Topology) NConstraints() int { return len(t.constraints) }

// NQErr, NUErr and NUDotErr are the lengths of the constraint error vectors
// at each level. NUDotErr is also the number of multipliers.
func (t *Topology) NQErr() int    { return t.nqerr }
func (t *Topology) NUErr() int    { return t.nuerr }
func (t *Topology) NUDotErr() int { return t.nudoterr }

// Body returns the frozen record of b. Its slices must not be modified.
func (t *Topology) Body(b int) *Body { return &t.bodies[b] }

func (t *Topology) Parent(b int) int     { return t.bodies[b].Parent }
func (t *Topology) Children(b int) []int { return t.bodies[b].Children }
func (t *Topology) Level(b int) int      { return t.bodies[b].Level }

// Order lists every body after its parent, Ground first.
func (t *Topology) Order() []int { return t.order }

// USlot returns the first index and count of b's generalized speeds.
func (t *Topology) USlot(b int) (start, n int) {
	return t.bodies[b].UStart, t.bodies[b].NU
}

// BodyIndex looks a body up by name.
func (t *Topology) BodyIndex(name string) (int, error) {
	b, ok := t.byName[name]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownBody, "%q", name)
	}
	return b, nil
}

func (t *Topology) Constraint(c int) constraint.Constraint { return t.constraints[c] }
func (t *Topology) ConstraintSlots(c int) ConstraintSlots  { return t.slots[c] }

// QLayout is the coordinate layout for one Model choice.
type QLayout struct {
	Start, Count []int
	NQ           int
	// NQuaternions is the number of quaternions in q.
	NQuaternions int
}

// Slot returns the first index and count of b's generalized coordinates.
func (l QLayout) Slot(b int) (start, n int) { return l.Start[b], l.Count[b] }

// QLayout assigns q slots in the same body order as u slots. Unlike u slots
// they depend on the Model stage choice of quaternions or Euler angles.
func (t *Topology) QLayout(m mobilizer.Model) QLayout {
	l := QLayout{Start: make([]int, len(t.bodies)), Count: make([]int, len(t.bodies))}
	for _, b := range t.order {
		if b == Ground {
			continue
		}
		mob := t.bodies[b].Mobilizer
		l.Start[b] = l.NQ
		l.Count[b] = mob.NQ(m)
		l.NQ += l.Count[b]
		l.NQuaternions += mob.NQuaternions(m)
	}
	return l
}

// freeze computes levels, the traversal order and all slot assignments.
func freeze(bodies []Body, constraints []constraint.Constraint) *Topology {
	t := &Topology{
		bodies:      bodies,
		byName:      make(map[string]int, len(bodies)),
		constraints: constraints,
		slots:       make([]ConstraintSlots, len(constraints)),
	}
	for b := range t.bodies {
		t.byName[t.bodies[b].Name] = b
		if b == Ground {
			continue
		}
		p := t.bodies[b].Parent
		t.bodies[b].Level = t.bodies[p].Level + 1
		t.bodies[p].Children = append(t.bodies[p].Children, b)
	}

	t.order = make([]int, len(t.bodies))
	for i := range t.order {
		t.order[i] = i
	}
	sort.SliceStable(t.order, func(i, j int) bool {
		return t.bodies[t.order[i]].Level < t.bodies[t.order[j]].Level
	})

	for _, b := range t.order {
		if b == Ground {
			continue
		}
		t.bodies[b].UStart = t.nu
		t.bodies[b].NU = t.bodies[b].Mobilizer.NU()
		t.nu += t.bodies[b].NU
	}

	for i, c := range constraints {
		n := c.Counts()
		t.slots[i] = ConstraintSlots{Counts: n, QStart: t.nqerr, UStart: t.nuerr, UDotStart: t.nudoterr}
		t.nqerr += n.Q()
		t.nuerr += n.U()
		t.nudoterr += n.UDot()
	}
	return t
}
