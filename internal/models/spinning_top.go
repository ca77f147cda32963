package models

import (
	"github.com/san-kum/mbsim/internal/forces"
	"github.com/san-kum/mbsim/internal/mobilizer"
	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/topology"
)

// buildSpinningTop balances a symmetric top on a ball joint at the Ground
// origin. Its axis is body z, tilted about Ground x, with gravity along -z.
func buildSpinningTop(p params) (*Model, error) {
	if err := positive(p, "mass", "height", "ixx", "izz"); err != nil {
		return nil, err
	}
	bld := topology.NewBuilder()
	top := bld.AddBody(topology.BodySpec{
		Name: "top", Parent: topology.Ground, Mobilizer: mobilizer.NewBall(),
		Mass: spatial.NewMassProperties(p["mass"], spatial.V(0, 0, p["height"]),
			spatial.Diag(p["ixx"], p["ixx"], p["izz"])),
	})
	m, err := assemble(bld, forces.NewUniformGravity(spatial.V(0, 0, -p["gravity"])))
	if err != nil {
		return nil, err
	}

	r := spatial.RotationAboutX(p["tilt"])
	if err := m.System.SetMobilizerPosition(m.initial, top, spatial.Transform{R: r}); err != nil {
		return nil, err
	}
	spin := spatial.SpatialVec{W: r.MulVec(spatial.ZAxis).Mul(p["spin"])}
	return m, m.System.SetMobilizerVelocity(m.initial, top, spin)
}

// buildTumblingBox spins a free box about its intermediate principal axis
// with a small perturbation on the others.
func buildTumblingBox(p params) (*Model, error) {
	if err := positive(p, "mass", "a", "b", "c"); err != nil {
		return nil, err
	}
	mass, a, b, c := p["mass"], p["a"], p["b"], p["c"]
	inertia := spatial.Diag(mass*(b*b+c*c)/12, mass*(a*a+c*c)/12, mass*(a*a+b*b)/12)

	bld := topology.NewBuilder()
	box := bld.AddBody(topology.BodySpec{
		Name: "box", Parent: topology.Ground, Mobilizer: mobilizer.NewFree(),
		Mass: spatial.NewMassProperties(mass, spatial.Vec3{}, inertia),
	})
	m, err := assemble(bld)
	if err != nil {
		return nil, err
	}
	w := p["wobble"]
	return m, m.System.SetMobilizerVelocity(m.initial, box, spatial.SpatialVec{W: spatial.V(w, p["spin"], w)})
}
