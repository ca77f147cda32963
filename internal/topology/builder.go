package topology

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/mbsim/internal/constraint"
	"github.com/san-kum/mbsim/internal/mobilizer"
	"github.com/san-kum/mbsim/internal/spatial"
)

// BodySpec describes a body to add. Zero frames mean identity.
type BodySpec struct {
	Name      string
	Parent    int
	Mobilizer mobilizer.Mobilizer
	Mass      spatial.MassProperties
	XPF, XBM  spatial.Transform
}

// Builder is the construction-time interface. It is not safe for concurrent
// use and refuses changes once Build has been called.
type Builder struct {
	bodies      []Body
	constraints []constraint.Constraint
	built       bool
	err         error
}

// NewBuilder returns a builder holding only Ground.
func NewBuilder() *Builder {
	return &Builder{bodies: []Body{{Name: "ground", Parent: -1}}}
}

// AddBody appends a body and returns its index. Problems with the body are
// reported by Build.
func (bld *Builder) AddBody(bs BodySpec) int {
	if bld.built {
		bld.err = multierr.Append(bld.err, ErrFrozen)
		return -1
	}
	bld.bodies = append(bld.bodies, Body{
		Name:      bs.Name,
		Parent:    bs.Parent,
		Mobilizer: bs.Mobilizer,
		Mass:      bs.Mass,
		XPF:       orIdentity(bs.XPF),
		XBM:       orIdentity(bs.XBM),
	})
	return len(bld.bodies) - 1
}

// AddConstraint appends a constraint and returns its index.
func (bld *Builder) AddConstraint(c constraint.Constraint) int {
	if bld.built {
		bld.err = multierr.Append(bld.err, ErrFrozen)
		return -1
	}
	bld.constraints = append(bld.constraints, c)
	return len(bld.constraints) - 1
}

// Build validates everything added so far and freezes it. All problems are
// reported together.
func (bld *Builder) Build() (*Topology, error) {
	if bld.built {
		return nil, ErrFrozen
	}
	err := bld.err
	for b := 1; b < len(bld.bodies); b++ {
		err = multierr.Append(err, bld.validateBody(b))
	}
	for i, c := range bld.constraints {
		err = multierr.Append(err, bld.validateConstraint(i, c))
	}
	if err != nil {
		return nil, err
	}
	bld.built = true
	return freeze(bld.bodies, bld.constraints), nil
}

func (bld *Builder) validateBody(b int) error {
	body := &bld.bodies[b]
	wrap := func(e error) error { return &BodyError{Body: b, Name: body.Name, Wrapped: e} }

	var err error
	if body.Name == "" {
		err = multierr.Append(err, wrap(ErrEmptyName))
	}
	for other := 0; other < b; other++ {
		if body.Name != "" && bld.bodies[other].Name == body.Name {
			err = multierr.Append(err, wrap(errors.Wrapf(ErrDuplicateName, "also body %d", other)))
			break
		}
	}
	if body.Parent < 0 || body.Parent >= b {
		err = multierr.Append(err, wrap(errors.Wrapf(ErrBadParent, "%d", body.Parent)))
	}
	if body.Mobilizer == nil {
		err = multierr.Append(err, wrap(ErrNilMobilizer))
	}
	if e := body.Mass.Validate(); e != nil {
		err = multierr.Append(err, wrap(e))
	}
	return err
}

func (bld *Builder) validateConstraint(i int, c constraint.Constraint) error {
	if c == nil {
		return &ConstraintError{Index: i, Wrapped: ErrBadConstraint}
	}
	wrap := func(e error) error { return &ConstraintError{Index: i, Name: c.Name(), Wrapped: e} }

	var err error
	for _, b := range c.Bodies() {
		if b < 0 || b >= len(bld.bodies) {
			err = multierr.Append(err, wrap(errors.Wrapf(constraint.ErrBadBody, "%d", b)))
		}
	}
	if err != nil {
		return err
	}
	if cc, ok := c.(constraint.Coordinated); ok {
		b, which := cc.Coordinate()
		mob := bld.bodies[b].Mobilizer
		switch {
		case b == Ground || mob == nil:
			err = wrap(errors.Wrapf(constraint.ErrBadCoordinate, "body %d has no mobilities", b))
		case which < 0 || which >= mob.NU():
			err = wrap(errors.Wrapf(constraint.ErrBadCoordinate, "%d of %d", which, mob.NU()))
		case mob.NQ(mobilizer.Model{}) != mob.NU() || mob.NQ(mobilizer.Model{UseEulerAngles: true}) != mob.NU():
			err = wrap(ErrNotPlainCoords)
		}
	}
	return err
}

func orIdentity(x spatial.Transform) spatial.Transform {
	if x == (spatial.Transform{}) {
		return spatial.IdentityTransform()
	}
	return x
}
