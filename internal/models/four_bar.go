package models

import (
	"math"

	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/constraint"
	"github.com/san-kum/mbsim/internal/mobilizer"
	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/topology"
)

// buildFourBar pins a crank at the Ground origin and a coupler at the crank
// tip. The rocker is not a body: a rod of the rocker's length ties the
// coupler tip to the second ground pivot on the x axis.
func buildFourBar(p params) (*Model, error) {
	if err := positive(p, "crank", "coupler", "rocker", "ground", "mass"); err != nil {
		return nil, err
	}
	a, b, c, d := p["crank"], p["coupler"], p["rocker"], p["ground"]

	bld := topology.NewBuilder()
	crank := bld.AddBody(topology.BodySpec{
		Name: "crank", Parent: topology.Ground, Mobilizer: mobilizer.NewPin(),
		Mass: slender(p["mass"]*a/(a+b), a),
	})
	coupler := bld.AddBody(topology.BodySpec{
		Name: "coupler", Parent: crank, Mobilizer: mobilizer.NewPin(),
		Mass: slender(p["mass"]*b/(a+b), b),
		XPF:  spatial.Translation(spatial.V(a, 0, 0)),
	})
	bld.AddConstraint(constraint.NewRod(topology.Ground, spatial.V(d, 0, 0), coupler, spatial.V(b, 0, 0), c))

	m, err := assemble(bld, gravityY(p["gravity"]))
	if err != nil {
		return nil, err
	}

	theta := p["theta0"]
	phi, err := closeLoop(a, b, c, d, theta)
	if err != nil {
		return nil, err
	}
	if err := m.setBody(crank, []float64{theta}, []float64{p["omega0"]}); err != nil {
		return nil, err
	}
	// The coupler speed is left for velocity projection to fill in.
	return m, m.setBody(coupler, []float64{phi}, []float64{0})
}

// closeLoop returns the coupler angle, relative to the crank, that puts the
// coupler tip at distance c from the pivot (d, 0). It takes the elbow above
// the line from crank tip to pivot.
func closeLoop(a, b, c, d, theta float64) (float64, error) {
	ax, ay := a*math.Cos(theta), a*math.Sin(theta)
	dx, dy := d-ax, -ay
	dist := math.Hypot(dx, dy)
	if dist > b+c || dist < math.Abs(b-c) || dist == 0 {
		return 0, errors.Wrapf(ErrBadParam, "four bar cannot close at crank angle %g", theta)
	}
	// Angle at the crank tip between the pivot direction and the coupler.
	alpha := math.Acos((b*b + dist*dist - c*c) / (2 * b * dist))
	return math.Atan2(dy, dx) + alpha - theta, nil
}
