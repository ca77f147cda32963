package matter_test

import (
	"math"

	. "github.com/onsi/gomega"

	"github.com/san-kum/mbsim/internal/constraint"
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/mobilizer"
	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/topology"
)

// pinSlider is ground -pin- A -slider- B.
func pinSlider() (*matter.Subsystem, int, int) {
	bld := topology.NewBuilder()
	a := bld.AddBody(topology.BodySpec{
		Name: "A", Parent: topology.Ground, Mobilizer: mobilizer.NewPin(),
		Mass: spatial.NewMassProperties(1, spatial.Vec3{}, spatial.Diag(0.1, 0.1, 0.1)),
	})
	b := bld.AddBody(topology.BodySpec{
		Name: "B", Parent: a, Mobilizer: mobilizer.NewSlider(),
		Mass: spatial.PointMass(2, spatial.Vec3{}),
	})
	topo, err := bld.Build()
	Expect(err).NotTo(HaveOccurred())
	return matter.NewSubsystem(topo), a, b
}

// mixedChain exercises every kind of coordinate: a pin, a quaternion ball
// with an offset mass center and a free body hanging below it.
func mixedChain() *matter.Subsystem {
	bld := topology.NewBuilder()
	a := bld.AddBody(topology.BodySpec{
		Name: "a", Parent: topology.Ground, Mobilizer: mobilizer.NewPin(),
		Mass: spatial.NewMassProperties(1.5, spatial.V(0.5, 0, 0), spatial.Diag(0.1, 0.2, 0.3)),
	})
	b := bld.AddBody(topology.BodySpec{
		Name: "b", Parent: a, Mobilizer: mobilizer.NewBall(),
		Mass: spatial.NewMassProperties(0.7, spatial.V(0, -0.4, 0.1), spatial.Diag(0.05, 0.04, 0.03)),
		XPF:  spatial.Translation(spatial.V(1, 0, 0)),
	})
	bld.AddBody(topology.BodySpec{
		Name: "c", Parent: b, Mobilizer: mobilizer.NewCylinder(),
		Mass: spatial.NewMassProperties(0.3, spatial.V(0.1, 0.1, 0), spatial.Diag(0.01, 0.02, 0.02)),
		XPF:  spatial.NewTransform(spatial.RotationAboutX(0.3), spatial.V(0, -0.8, 0)),
		XBM:  spatial.Translation(spatial.V(0, 0.2, 0)),
	})
	bld.AddBody(topology.BodySpec{
		Name: "d", Parent: topology.Ground, Mobilizer: mobilizer.NewFree(),
		Mass: spatial.NewMassProperties(2, spatial.V(0, 0, 0.2), spatial.Diag(0.3, 0.3, 0.1)),
	})
	topo, err := bld.Build()
	Expect(err).NotTo(HaveOccurred())
	return matter.NewSubsystem(topo)
}

// closedLoop is a planar double pendulum of unit links whose tip is tied to
// the Ground origin by a rod.
func closedLoop(rodLength float64) (*matter.Subsystem, int, int) {
	bld := topology.NewBuilder()
	link := spatial.NewMassProperties(1, spatial.V(0.5, 0, 0), spatial.Diag(0.01, 0.08, 0.08))
	a := bld.AddBody(topology.BodySpec{Name: "upper", Parent: topology.Ground, Mobilizer: mobilizer.NewPin(), Mass: link})
	b := bld.AddBody(topology.BodySpec{
		Name: "lower", Parent: a, Mobilizer: mobilizer.NewPin(), Mass: link,
		XPF: spatial.Translation(spatial.V(1, 0, 0)),
	})
	bld.AddConstraint(constraint.NewRod(topology.Ground, spatial.Vec3{}, b, spatial.V(1, 0, 0), rodLength))
	topo, err := bld.Build()
	Expect(err).NotTo(HaveOccurred())
	return matter.NewSubsystem(topo), a, b
}

// gravity is a minimal force source used to drive the dynamics.
type gravity struct{ g spatial.Vec3 }

func (gravity) Name() string { return "gravity" }

func (gr gravity) CalcForces(sys *matter.Subsystem, s *matter.State, f *matter.Forces) error {
	for b := 1; b < sys.NBodies(); b++ {
		mp, err := sys.BodyMassProperties(s, b)
		if err != nil {
			return err
		}
		if err := sys.AddInStationForce(s, b, mp.COM, gr.g.Mul(mp.Mass), f); err != nil {
			return err
		}
	}
	return nil
}

func (gr gravity) PotentialEnergy(sys *matter.Subsystem, s *matter.State) (float64, error) {
	pe := 0.0
	for b := 1; b < sys.NBodies(); b++ {
		mp, err := sys.BodyMassProperties(s, b)
		if err != nil {
			return 0, err
		}
		p, err := sys.CalcStationLocation(s, b, mp.COM)
		if err != nil {
			return 0, err
		}
		pe -= mp.Mass * gr.g.Dot(p)
	}
	return pe, nil
}

func setSomeMotion(s *matter.State) {
	q := s.Q()
	for i := range q {
		q[i] += 0.1 * float64(i+1)
	}
	Expect(s.SetQ(q)).To(Succeed())
	u := s.U()
	for i := range u {
		u[i] = 0.3 * math.Sin(float64(i+1))
	}
	Expect(s.SetU(u)).To(Succeed())
}

func expectSlicesClose(got, want []float64, tol float64) {
	ExpectWithOffset(1, got).To(HaveLen(len(want)))
	for i := range want {
		ExpectWithOffset(1, got[i]).To(BeNumerically("~", want[i], tol), "entry %d", i)
	}
}

func expectVecClose(got, want spatial.Vec3, tol float64) {
	ExpectWithOffset(1, got.Sub(want).Norm()).To(BeNumerically("<", tol), "got %v want %v", got, want)
}
