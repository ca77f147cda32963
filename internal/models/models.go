// Package models builds the stock mechanisms the CLI can simulate. Each
// model is a topology, the force elements acting on it and a default
// initial state, all parameterized by a flat map of named values.
package models

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/forces"
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/stage"
	"github.com/san-kum/mbsim/internal/topology"
)

var (
	ErrUnknownModel = errors.New("models: unknown model")
	ErrUnknownParam = errors.New("models: unknown parameter")
	ErrBadParam     = errors.New("models: parameter out of range")
)

// Model is a built mechanism ready to simulate.
type Model struct {
	Name   string
	System *matter.Subsystem
	Forces []matter.ForceSource
	Params map[string]float64

	initial *matter.State
}

// NewState returns a fresh copy of the model's initial state, realized at
// least through Instance.
func (m *Model) NewState() *matter.State { return m.initial.Clone() }

// SetInitial replaces the initial coordinates and speeds. A nil slice keeps
// the current values.
func (m *Model) SetInitial(q, u []float64) error {
	if q != nil {
		if err := m.initial.SetQ(q); err != nil {
			return errors.Wrapf(err, "%s initial q", m.Name)
		}
	}
	if u != nil {
		if err := m.initial.SetU(u); err != nil {
			return errors.Wrapf(err, "%s initial u", m.Name)
		}
	}
	return nil
}

// SetUseEulerAngles switches the initial state's ball and free joints
// between quaternions and Euler angles, preserving the pose.
func (m *Model) SetUseEulerAngles(euler bool) error {
	m.initial.SetUseEulerAngles(euler)
	return m.System.Realize(m.initial, stage.Instance)
}

type params map[string]float64

type entry struct {
	description string
	defaults    params
	build       func(p params) (*Model, error)
}

var registry = map[string]entry{
	"pendulum": {
		"simple pendulum: point mass on a massless arm",
		params{"mass": 1, "length": 1, "damping": 0, "gravity": 9.81, "theta0": 0.5, "omega0": 0},
		buildPendulum,
	},
	"double_pendulum": {
		"two pinned point masses",
		params{"m1": 1, "m2": 1, "l1": 1, "l2": 1, "gravity": 9.81, "theta1": 1, "theta2": 0.5, "omega1": 0, "omega2": 0},
		buildDoublePendulum,
	},
	"chain": {
		"n pinned slender links hanging from Ground",
		params{"n": 5, "mass": 0.2, "length": 0.5, "gravity": 9.81, "theta0": 0.3},
		buildChain,
	},
	"pin_slider": {
		"pin joint carrying a slider with a point mass",
		params{"mass_a": 1, "inertia_a": 0.1, "mass_b": 2, "gravity": 9.81, "k": 0, "rest": 0.5, "q0": 1.5707963267948966, "q1": 0.5},
		buildPinSlider,
	},
	"bend_stretch": {
		"point mass on a radial spring in polar coordinates",
		params{"mass": 1, "k": 20, "rest": 1, "gravity": 0, "angle0": 0, "length0": 1.2, "rate0": 1},
		buildBendStretch,
	},
	"four_bar": {
		"planar crank-rocker closed by a rod constraint",
		params{"crank": 1, "coupler": 3, "rocker": 2.5, "ground": 3, "mass": 1, "gravity": 9.81, "theta0": 1.5707963267948966, "omega0": 1},
		buildFourBar,
	},
	"spinning_top": {
		"symmetric top on a ball joint",
		params{"mass": 1, "height": 0.3, "ixx": 0.02, "izz": 0.04, "gravity": 9.81, "tilt": 0.3, "spin": 30},
		buildSpinningTop,
	},
	"tumbling_box": {
		"free box spun near its intermediate axis, no gravity",
		params{"mass": 1, "a": 0.1, "b": 0.2, "c": 0.3, "spin": 5, "wobble": 0.01},
		buildTumblingBox,
	},
}

// New builds a model, overriding its default parameters by name.
func New(name string, overrides map[string]float64) (*Model, error) {
	e, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownModel, "%q", name)
	}
	p := make(params, len(e.defaults))
	for k, v := range e.defaults {
		p[k] = v
	}
	for k, v := range overrides {
		if _, ok := p[k]; !ok {
			return nil, errors.Wrapf(ErrUnknownParam, "%s has no parameter %q", name, k)
		}
		p[k] = v
	}
	m, err := e.build(p)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s", name)
	}
	m.Name = name
	m.Params = p
	return m, nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Describe(name string) (string, error) {
	e, ok := registry[name]
	if !ok {
		return "", errors.Wrapf(ErrUnknownModel, "%q", name)
	}
	return e.description, nil
}

// Defaults returns a copy of a model's default parameters.
func Defaults(name string) (map[string]float64, error) {
	e, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownModel, "%q", name)
	}
	out := make(map[string]float64, len(e.defaults))
	for k, v := range e.defaults {
		out[k] = v
	}
	return out, nil
}

// assemble freezes the topology, registers the force elements and builds
// the initial state through Instance, so mass properties and frames can be
// read from any state the model hands out.
func assemble(bld *topology.Builder, sources ...matter.ForceSource) (*Model, error) {
	topo, err := bld.Build()
	if err != nil {
		return nil, err
	}
	sys := matter.NewSubsystem(topo)
	for _, src := range sources {
		sys.AddForceSource(src)
	}
	s := sys.NewState()
	if err := sys.Realize(s, stage.Instance); err != nil {
		return nil, err
	}
	return &Model{System: sys, Forces: sources, initial: s}, nil
}

func (m *Model) setBody(b int, q, u []float64) error {
	if err := m.initial.SetMobilizerQ(b, q); err != nil {
		return err
	}
	return m.initial.SetMobilizerU(b, u)
}

func gravityY(g float64) matter.ForceSource {
	return forces.NewUniformGravity(spatial.V(0, -g, 0))
}

func positive(p params, names ...string) error {
	for _, name := range names {
		if p[name] <= 0 {
			return errors.Wrapf(ErrBadParam, "%s must be positive, got %g", name, p[name])
		}
	}
	return nil
}

// slender is a thin rod of the given mass and length along x from the body
// origin.
func slender(mass, length float64) spatial.MassProperties {
	i := mass * length * length / 12
	return spatial.NewMassProperties(mass, spatial.V(length/2, 0, 0), spatial.Diag(1e-3*i, i, i))
}
