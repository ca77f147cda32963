package models

import (
	"github.com/san-kum/mbsim/internal/forces"
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/mobilizer"
	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/topology"
)

// buildPinSlider is Ground -pin- A -slider- B. The slider runs along A's x
// axis.
func buildPinSlider(p params) (*Model, error) {
	if err := positive(p, "mass_a", "inertia_a", "mass_b"); err != nil {
		return nil, err
	}
	ia := p["inertia_a"]
	bld := topology.NewBuilder()
	a := bld.AddBody(topology.BodySpec{
		Name: "A", Parent: topology.Ground, Mobilizer: mobilizer.NewPin(),
		Mass: spatial.NewMassProperties(p["mass_a"], spatial.Vec3{}, spatial.Diag(ia, ia, ia)),
	})
	b := bld.AddBody(topology.BodySpec{
		Name: "B", Parent: a, Mobilizer: mobilizer.NewSlider(),
		Mass: spatial.PointMass(p["mass_b"], spatial.Vec3{}),
	})
	sources := []matter.ForceSource{gravityY(p["gravity"])}
	if p["k"] != 0 {
		sources = append(sources, forces.NewMobilityLinearSpring(b, 0, p["k"], p["rest"]))
	}
	m, err := assemble(bld, sources...)
	if err != nil {
		return nil, err
	}
	if err := m.setBody(a, []float64{p["q0"]}, []float64{0}); err != nil {
		return nil, err
	}
	return m, m.setBody(b, []float64{p["q1"]}, []float64{0})
}

// buildBendStretch puts a point mass at the tip of a bend-stretch joint and
// a spring on its length.
func buildBendStretch(p params) (*Model, error) {
	if err := positive(p, "mass", "length0"); err != nil {
		return nil, err
	}
	bld := topology.NewBuilder()
	bob := bld.AddBody(topology.BodySpec{
		Name: "bob", Parent: topology.Ground, Mobilizer: mobilizer.NewBendStretch(),
		Mass: spatial.PointMass(p["mass"], spatial.Vec3{}),
	})
	sources := []matter.ForceSource{forces.NewMobilityLinearSpring(bob, 1, p["k"], p["rest"])}
	if p["gravity"] != 0 {
		sources = append(sources, gravityY(p["gravity"]))
	}
	m, err := assemble(bld, sources...)
	if err != nil {
		return nil, err
	}
	return m, m.setBody(bob, []float64{p["angle0"], p["length0"]}, []float64{p["rate0"], 0})
}
