package models

import (
	"fmt"
	"math"

	"github.com/san-kum/mbsim/internal/forces"
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/mobilizer"
	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/topology"
)

// hanging points the pin frame's x axis straight down, so a zero angle is
// the rest position.
var hanging = spatial.NewTransform(spatial.RotationAboutZ(-math.Pi/2), spatial.Vec3{})

func buildPendulum(p params) (*Model, error) {
	if err := positive(p, "mass", "length"); err != nil {
		return nil, err
	}
	bld := topology.NewBuilder()
	bob := bld.AddBody(topology.BodySpec{
		Name: "bob", Parent: topology.Ground, Mobilizer: mobilizer.NewPin(),
		Mass: spatial.PointMass(p["mass"], spatial.V(p["length"], 0, 0)),
		XPF:  hanging,
	})
	sources := []matter.ForceSource{gravityY(p["gravity"])}
	if p["damping"] != 0 {
		sources = append(sources, forces.NewMobilityLinearDamper(bob, 0, p["damping"]))
	}
	m, err := assemble(bld, sources...)
	if err != nil {
		return nil, err
	}
	return m, m.setBody(bob, []float64{p["theta0"]}, []float64{p["omega0"]})
}

func buildDoublePendulum(p params) (*Model, error) {
	if err := positive(p, "m1", "m2", "l1", "l2"); err != nil {
		return nil, err
	}
	bld := topology.NewBuilder()
	upper := bld.AddBody(topology.BodySpec{
		Name: "upper", Parent: topology.Ground, Mobilizer: mobilizer.NewPin(),
		Mass: spatial.PointMass(p["m1"], spatial.V(p["l1"], 0, 0)),
		XPF:  hanging,
	})
	lower := bld.AddBody(topology.BodySpec{
		Name: "lower", Parent: upper, Mobilizer: mobilizer.NewPin(),
		Mass: spatial.PointMass(p["m2"], spatial.V(p["l2"], 0, 0)),
		XPF:  spatial.Translation(spatial.V(p["l1"], 0, 0)),
	})
	m, err := assemble(bld, gravityY(p["gravity"]))
	if err != nil {
		return nil, err
	}
	// The lower pin measures its angle relative to the upper link.
	if err := m.setBody(upper, []float64{p["theta1"]}, []float64{p["omega1"]}); err != nil {
		return nil, err
	}
	return m, m.setBody(lower, []float64{p["theta2"] - p["theta1"]}, []float64{p["omega2"] - p["omega1"]})
}

func buildChain(p params) (*Model, error) {
	if err := positive(p, "n", "mass", "length"); err != nil {
		return nil, err
	}
	n := int(p["n"])
	l := p["length"]
	bld := topology.NewBuilder()
	parent, xpf := topology.Ground, hanging
	links := make([]int, n)
	for i := range links {
		links[i] = bld.AddBody(topology.BodySpec{
			Name:      fmt.Sprintf("link%d", i),
			Parent:    parent,
			Mobilizer: mobilizer.NewPin(),
			Mass:      slender(p["mass"], l),
			XPF:       xpf,
		})
		parent, xpf = links[i], spatial.Translation(spatial.V(l, 0, 0))
	}
	m, err := assemble(bld, gravityY(p["gravity"]))
	if err != nil {
		return nil, err
	}
	return m, m.setBody(links[0], []float64{p["theta0"]}, []float64{0})
}
