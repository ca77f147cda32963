package matter_test

import (
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/stage"
)

var _ = Describe("State staging", func() {
	var (
		sys *matter.Subsystem
		s   *matter.State
	)

	BeforeEach(func() {
		sys, _, _ = pinSlider()
		s = sys.NewState()
	})

	It("starts at Topology", func() {
		Expect(s.Stage()).To(Equal(stage.Topology))
	})

	It("realizes each stage once", func() {
		Expect(sys.Realize(s, stage.Position)).To(Succeed())
		Expect(s.Stage()).To(Equal(stage.Position))
		Expect(sys.Realize(s, stage.Position)).To(Succeed())
		Expect(sys.Realize(s, stage.Instance)).To(Succeed())
		Expect(s.Recomputes(stage.Position)).To(Equal(1))
		Expect(s.Recomputes(stage.Instance)).To(Equal(1))
		Expect(s.Stage()).To(Equal(stage.Position))
	})

	DescribeTable("writes demote below the stage they feed",
		func(write func(s *matter.State), want stage.Stage) {
			Expect(sys.Realize(s, stage.Report)).To(Succeed())
			write(s)
			Expect(s.Stage()).To(Equal(want))
		},
		Entry("applied forces", func(s *matter.State) { Expect(s.SetMobilityForces([]float64{1, 0})).To(Succeed()) }, stage.Velocity),
		Entry("speeds", func(s *matter.State) { Expect(s.SetU([]float64{1, 0})).To(Succeed()) }, stage.Position),
		Entry("speeds in place", func(s *matter.State) { s.UpdU(func(u []float64) { u[0] = 2 }) }, stage.Position),
		Entry("coordinates", func(s *matter.State) { Expect(s.SetQ([]float64{1, 0})).To(Succeed()) }, stage.Time),
		Entry("time", func(s *matter.State) { s.SetTime(1) }, stage.Instance),
		Entry("mass", func(s *matter.State) {
			Expect(s.SetMassProperties(1, spatial.PointMass(3, spatial.Vec3{}))).To(Succeed())
		}, stage.Model),
		Entry("weights", func(s *matter.State) { Expect(s.SetUWeights([]float64{1, 2})).To(Succeed()) }, stage.Model),
		Entry("model choice", func(s *matter.State) { s.SetUseEulerAngles(true) }, stage.Topology),
	)

	It("recomputes only the stages a write invalidated", func() {
		Expect(sys.Realize(s, stage.Acceleration)).To(Succeed())
		Expect(s.SetU([]float64{0.5, 0})).To(Succeed())
		Expect(sys.Realize(s, stage.Acceleration)).To(Succeed())
		Expect(s.Recomputes(stage.Position)).To(Equal(1))
		Expect(s.Recomputes(stage.Velocity)).To(Equal(2))
		Expect(s.Recomputes(stage.Acceleration)).To(Equal(2))
	})

	It("refuses stale reads", func() {
		Expect(sys.Realize(s, stage.Velocity)).To(Succeed())
		Expect(s.SetQ([]float64{0.1, 0.2})).To(Succeed())

		_, err := s.BodyTransform(1)
		Expect(err).To(MatchError(stage.ErrStageViolation))
		var se *stage.Error
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Need).To(Equal(stage.Position))
		Expect(se.Have).To(Equal(stage.Time))

		_, err = s.UDot()
		Expect(err).To(MatchError(stage.ErrStageViolation))
	})

	It("rejects bad inputs", func() {
		Expect(s.SetQ([]float64{1})).To(MatchError(matter.ErrBadLength))
		Expect(s.SetUWeights([]float64{1, 0})).To(MatchError(matter.ErrBadWeight))
		Expect(s.SetMobilizerU(7, []float64{1})).To(MatchError(matter.ErrBadBody))
		Expect(sys.Realize(s, stage.Stage(42))).To(MatchError(stage.ErrInvalidStage))
	})

	It("rejects a state from another subsystem", func() {
		other, _, _ := pinSlider()
		Expect(other.Realize(s, stage.Position)).To(MatchError(matter.ErrWrongTopology))
	})

	It("reports invalid mass properties at Instance", func() {
		Expect(s.SetMassProperties(1, spatial.PointMass(-1, spatial.Vec3{}))).To(Succeed())
		err := sys.Realize(s, stage.Position)
		Expect(err).To(MatchError(spatial.ErrNegativeMass))
		Expect(s.Stage()).To(Equal(stage.Model))
	})
})

var _ = Describe("Pin-slider chain", func() {
	var (
		sys  *matter.Subsystem
		s    *matter.State
		a, b int
	)

	BeforeEach(func() {
		sys, a, b = pinSlider()
		s = sys.NewState()
		Expect(s.SetQ([]float64{math.Pi / 2, 0.5})).To(Succeed())
		Expect(sys.Realize(s, stage.Position)).To(Succeed())
	})

	It("places both bodies analytically", func() {
		xa, err := s.BodyTransform(a)
		Expect(err).NotTo(HaveOccurred())
		Expect(xa.R.ApproxEqual(spatial.RotationAboutZ(math.Pi/2), 1e-14)).To(BeTrue())
		expectVecClose(xa.P, spatial.Vec3{}, 1e-14)

		xb, err := s.BodyTransform(b)
		Expect(err).NotTo(HaveOccurred())
		Expect(xb.R.ApproxEqual(spatial.RotationAboutZ(math.Pi/2), 1e-14)).To(BeTrue())
		expectVecClose(xb.P, spatial.V(0, 0.5, 0), 1e-14)

		xfm, err := s.MobilizerTransform(b)
		Expect(err).NotTo(HaveOccurred())
		expectVecClose(xfm.P, spatial.V(0.5, 0, 0), 1e-15)

		p, err := sys.CalcStationLocation(s, b, spatial.V(1, 0, 0))
		Expect(err).NotTo(HaveOccurred())
		expectVecClose(p, spatial.V(0, 1.5, 0), 1e-14)

		back, err := sys.CalcStationLocationInBody(s, 0, p, b)
		Expect(err).NotTo(HaveOccurred())
		expectVecClose(back, spatial.V(1, 0, 0), 1e-14)

		d, err := sys.CalcVectorOrientation(s, a, spatial.V(1, 0, 0))
		Expect(err).NotTo(HaveOccurred())
		expectVecClose(d, spatial.V(0, 1, 0), 1e-14)
	})

	It("re-expresses stations and vectors between two bodies", func() {
		Expect(s.SetQ([]float64{0.7, 0.5})).To(Succeed())
		Expect(sys.Realize(s, stage.Position)).To(Succeed())
		station := spatial.V(1, -0.3, 0.2)

		inA, err := sys.CalcStationLocationInBody(s, b, station, a)
		Expect(err).NotTo(HaveOccurred())
		expectVecClose(inA, spatial.V(1.5, -0.3, 0.2), 1e-14)

		viaA, err := sys.CalcStationLocation(s, a, inA)
		Expect(err).NotTo(HaveOccurred())
		viaB, err := sys.CalcStationLocation(s, b, station)
		Expect(err).NotTo(HaveOccurred())
		expectVecClose(viaA, viaB, 1e-14)

		back, err := sys.CalcStationLocationInBody(s, a, inA, b)
		Expect(err).NotTo(HaveOccurred())
		expectVecClose(back, station, 1e-14)

		v := spatial.V(0, 1, 0.5)
		vA, err := sys.CalcVectorOrientationInBody(s, b, v, a)
		Expect(err).NotTo(HaveOccurred())
		gA, err := sys.CalcVectorOrientation(s, a, vA)
		Expect(err).NotTo(HaveOccurred())
		gB, err := sys.CalcVectorOrientation(s, b, v)
		Expect(err).NotTo(HaveOccurred())
		expectVecClose(gA, gB, 1e-14)

		inGround, err := sys.CalcVectorOrientationInBody(s, b, v, 0)
		Expect(err).NotTo(HaveOccurred())
		expectVecClose(inGround, gB, 1e-14)

		_, err = sys.CalcStationLocationInBody(s, b, station, 9)
		Expect(err).To(HaveOccurred())
	})

	It("refuses force accumulators that were not reset", func() {
		var f matter.Forces
		Expect(sys.AddInBodyTorque(s, a, spatial.V(0, 0, 1), &f)).To(MatchError(matter.ErrBadLength))
		Expect(sys.AddInMobilityForce(s, b, 0, 1, &f)).To(MatchError(matter.ErrBadLength))
		Expect(sys.AddInStationForce(s, b, spatial.Vec3{}, spatial.V(1, 0, 0), &f)).To(MatchError(matter.ErrBadLength))
		Expect(sys.AddInMobilityForce(s, b, 0, 1, nil)).To(MatchError(matter.ErrBadLength))

		sys.ResetForces(&f)
		Expect(sys.AddInBodyTorque(s, a, spatial.V(0, 0, 1), &f)).To(Succeed())
		Expect(sys.AddInMobilityForce(s, b, 0, 2, &f)).To(Succeed())
		Expect(f.Body[a].W.Z).To(Equal(1.0))
		Expect(f.Mobility).To(Equal([]float64{0, 2}))
	})

	It("combines rotation and sliding in station velocities", func() {
		Expect(s.SetU([]float64{1, 2})).To(Succeed())
		Expect(sys.Realize(s, stage.Velocity)).To(Succeed())

		v, err := sys.CalcStationVelocity(s, b, spatial.Vec3{})
		Expect(err).NotTo(HaveOccurred())
		expectVecClose(v, spatial.V(-0.5, 2, 0), 1e-14)

		rel, err := sys.CalcStationVelocityInBody(s, b, spatial.Vec3{}, a)
		Expect(err).NotTo(HaveOccurred())
		expectVecClose(rel, spatial.V(2, 0, 0), 1e-14)
	})

	It("reports mass and mass center", func() {
		m, err := sys.CalcSystemMass(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(BeNumerically("~", 3, 1e-15))

		Expect(sys.Realize(s, stage.Report)).To(Succeed())
		c, err := sys.MassCenter(s)
		Expect(err).NotTo(HaveOccurred())
		expectVecClose(c, spatial.V(0, 1.0/3, 0), 1e-14)
	})

	It("answers structural queries", func() {
		Expect(sys.NBodies()).To(Equal(3))
		Expect(sys.NMobilities()).To(Equal(2))
		Expect(sys.NParticles()).To(Equal(0))
		Expect(sys.NConstraints()).To(Equal(0))
		Expect(sys.Parent(b)).To(Equal(a))
		Expect(sys.Children(a)).To(Equal([]int{b}))
		_, err := sys.Parent(9)
		Expect(err).To(MatchError(matter.ErrBadBody))

		mass, err := sys.BodyMass(s, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(mass).To(Equal(2.0))
	})
})

var _ = Describe("Mass matrix operators", func() {
	var (
		sys *matter.Subsystem
		s   *matter.State
	)

	BeforeEach(func() {
		sys = mixedChain()
		s = sys.NewState()
		setSomeMotion(s)
		Expect(sys.Realize(s, stage.Velocity)).To(Succeed())
	})

	It("forms a symmetric M whose inverse matches M⁻¹", func() {
		m, err := sys.CalcM(s)
		Expect(err).NotTo(HaveOccurred())
		minv, err := sys.CalcMInv(s)
		Expect(err).NotTo(HaveOccurred())

		n := sys.NMobilities()
		var prod mat.Dense
		prod.Mul(m, minv)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				Expect(m.At(i, j)).To(BeNumerically("~", m.At(j, i), 1e-12))
				want := 0.0
				if i == j {
					want = 1
				}
				Expect(prod.At(i, j)).To(BeNumerically("~", want, 1e-9), "entry %d,%d", i, j)
			}
		}
	})

	It("maps gathered body and mobility forces through Jᵀ", func() {
		sys.AddForceSource(gravity{g: spatial.V(0, -9.81, 0)})
		Expect(s.SetMobilityForces([]float64{0.5, 0, 0.1, 0, -0.2, 0.3, 0, 0, 0, 0, 0, 0.4})).To(Succeed())
		Expect(sys.Realize(s, stage.Dynamics)).To(Succeed())

		gen, err := sys.CalcGeneralizedForces(s)
		Expect(err).NotTo(HaveOccurred())
		body, err := s.BodyForces()
		Expect(err).NotTo(HaveOccurred())
		mobility, err := s.MobilityForces()
		Expect(err).NotTo(HaveOccurred())

		zero := make([]float64, sys.NMobilities())
		bias, err := sys.CalcInverseDynamics(s, zero, nil)
		Expect(err).NotTo(HaveOccurred())
		loaded, err := sys.CalcInverseDynamics(s, zero, &matter.Forces{Body: body, Mobility: mobility})
		Expect(err).NotTo(HaveOccurred())
		for i := range gen {
			Expect(gen[i]).To(BeNumerically("~", bias[i]-loaded[i], 1e-10), "mobility %d", i)
		}

		Expect(s.SetU(s.U())).To(Succeed())
		_, err = sys.CalcGeneralizedForces(s)
		Expect(errors.Is(err, stage.ErrStageViolation)).To(BeTrue())
	})

	It("agrees on kinetic energy with ½·uᵀ·M·u", func() {
		u := s.U()
		mu, err := sys.MultiplyByM(s, u)
		Expect(err).NotTo(HaveOccurred())
		want := 0.0
		for i := range u {
			want += 0.5 * u[i] * mu[i]
		}
		Expect(sys.Realize(s, stage.Report)).To(Succeed())
		ke, err := sys.KineticEnergy(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(ke).To(BeNumerically("~", want, 1e-12))
	})

	It("maps u to station velocities with the station Jacobian", func() {
		station := spatial.V(0.3, -0.2, 0.1)
		jac, err := sys.CalcStationJacobian(s, 3, station)
		Expect(err).NotTo(HaveOccurred())
		var v mat.VecDense
		v.MulVec(jac, mat.NewVecDense(len(s.U()), s.U()))

		want, err := sys.CalcStationVelocity(s, 3, station)
		Expect(err).NotTo(HaveOccurred())
		expectVecClose(spatial.V(v.AtVec(0), v.AtVec(1), v.AtVec(2)), want, 1e-12)
	})

	It("inverts forward dynamics with inverse dynamics", func() {
		sys.AddForceSource(gravity{g: spatial.V(0, -9.81, 0)})
		Expect(s.SetMobilityForces([]float64{0.5, 0, 0.1, 0, -0.2, 0.3, 0, 0, 0, 0, 0, 0.4})).To(Succeed())
		Expect(sys.Realize(s, stage.Acceleration)).To(Succeed())

		udot, err := s.UDot()
		Expect(err).NotTo(HaveOccurred())
		body, err := s.BodyForces()
		Expect(err).NotTo(HaveOccurred())
		mobility, err := s.MobilityForces()
		Expect(err).NotTo(HaveOccurred())

		residual, err := sys.CalcInverseDynamics(s, udot, &matter.Forces{Body: body, Mobility: mobility})
		Expect(err).NotTo(HaveOccurred())
		expectSlicesClose(residual, make([]float64, len(udot)), 1e-9)
	})

	It("agrees with station accelerations from finite differences", func() {
		Expect(sys.Realize(s, stage.Acceleration)).To(Succeed())
		station := spatial.V(0.1, 0.2, 0.3)
		acc, err := sys.CalcStationAcceleration(s, 3, station)
		Expect(err).NotTo(HaveOccurred())
		qdot, err := s.QDot()
		Expect(err).NotTo(HaveOccurred())
		udot, err := s.UDot()
		Expect(err).NotTo(HaveOccurred())

		const h = 1e-6
		velocityAt := func(sign float64) spatial.Vec3 {
			c := s.Clone()
			c.UpdQ(func(q []float64) {
				for i := range q {
					q[i] += sign * h * qdot[i]
				}
			})
			c.UpdU(func(u []float64) {
				for i := range u {
					u[i] += sign * h * udot[i]
				}
			})
			Expect(sys.Realize(c, stage.Velocity)).To(Succeed())
			v, err := sys.CalcStationVelocity(c, 3, station)
			Expect(err).NotTo(HaveOccurred())
			return v
		}
		fd := velocityAt(1).Sub(velocityAt(-1)).Mul(1 / (2 * h))
		expectVecClose(acc, fd, 1e-5)
	})

	It("keeps momentum consistent with the mass centers", func() {
		Expect(sys.Realize(s, stage.Report)).To(Succeed())
		h, err := sys.SystemMomentum(s)
		Expect(err).NotTo(HaveOccurred())

		var linear spatial.Vec3
		for b := 1; b < sys.NBodies(); b++ {
			mp, err := sys.BodyMassProperties(s, b)
			Expect(err).NotTo(HaveOccurred())
			v, err := sys.CalcStationVelocity(s, b, mp.COM)
			Expect(err).NotTo(HaveOccurred())
			linear = linear.Add(v.Mul(mp.Mass))
		}
		expectVecClose(h.V, linear, 1e-12)
	})
})

var _ = Describe("Mobilizer fitting through the facade", func() {
	It("preserves the pose across a coordinate model switch", func() {
		sys := mixedChain()
		s := sys.NewState()
		setSomeMotion(s)
		Expect(sys.Realize(s, stage.Position)).To(Succeed())
		nq := s.NQ()
		var before []spatial.Transform
		for b := 0; b < sys.NBodies(); b++ {
			x, err := s.BodyTransform(b)
			Expect(err).NotTo(HaveOccurred())
			before = append(before, x)
		}

		s.SetUseEulerAngles(true)
		Expect(s.UseEulerAngles()).To(BeTrue())
		Expect(s.NQ()).To(Equal(nq - 2))
		Expect(sys.Realize(s, stage.Position)).To(Succeed())
		for b := 0; b < sys.NBodies(); b++ {
			x, err := s.BodyTransform(b)
			Expect(err).NotTo(HaveOccurred())
			Expect(x.ApproxEqual(before[b], 1e-12)).To(BeTrue(), "body %d", b)
		}
	})

	It("fits transforms and velocities", func() {
		sys := mixedChain()
		s := sys.NewState()
		ball, err := sys.Topology().BodyIndex("b")
		Expect(err).NotTo(HaveOccurred())
		free, err := sys.Topology().BodyIndex("d")
		Expect(err).NotTo(HaveOccurred())
		Expect(sys.Realize(s, stage.Model)).To(Succeed())

		target := spatial.RotationAboutAxis(0.7, spatial.V(1, 2, 3).Normalize())
		Expect(sys.SetMobilizerPosition(s, ball, spatial.Transform{R: target})).To(Succeed())
		pose := spatial.NewTransform(spatial.RotationAboutY(-0.4), spatial.V(1, 2, 3))
		Expect(sys.SetMobilizerPosition(s, free, pose)).To(Succeed())
		vel := spatial.SpatialVec{W: spatial.V(0.1, 0.2, 0.3), V: spatial.V(1, 0, -1)}
		Expect(sys.SetMobilizerVelocity(s, free, vel)).To(Succeed())
		Expect(sys.Realize(s, stage.Velocity)).To(Succeed())

		x, err := s.MobilizerTransform(ball)
		Expect(err).NotTo(HaveOccurred())
		Expect(x.R.ApproxEqual(target, 1e-12)).To(BeTrue())
		x, err = s.MobilizerTransform(free)
		Expect(err).NotTo(HaveOccurred())
		Expect(x.ApproxEqual(pose, 1e-12)).To(BeTrue())
		v, err := s.MobilizerVelocity(free)
		Expect(err).NotTo(HaveOccurred())
		expectVecClose(v.W, vel.W, 1e-12)
		expectVecClose(v.V, vel.V, 1e-12)
	})
})

var _ = Describe("Clone", func() {
	It("gives an independent trajectory over the same topology", func() {
		sys := mixedChain()
		s := sys.NewState()
		setSomeMotion(s)
		Expect(sys.Realize(s, stage.Acceleration)).To(Succeed())
		q := s.Q()

		c := s.Clone()
		Expect(c.Topology()).To(BeIdenticalTo(s.Topology()))
		Expect(c.Stage()).To(Equal(stage.Instance))
		c.UpdQ(func(q []float64) { q[0] += 1 })
		Expect(sys.Realize(c, stage.Acceleration)).To(Succeed())

		Expect(s.Q()).To(Equal(q))
		Expect(s.Stage()).To(Equal(stage.Acceleration))
		Expect(c.Recomputes(stage.Instance)).To(Equal(0))
	})
})

var _ = Describe("Constraints", func() {
	It("projects positions onto a reachable loop", func() {
		sys, _, _ := closedLoop(1.5)
		s := sys.NewState()
		Expect(s.SetQ([]float64{0.3, 0.4})).To(Succeed())
		Expect(sys.Realize(s, stage.Position)).To(Succeed())

		qErr := []float64{1e-3, -2e-3}
		res, err := sys.ProjectQ(s, qErr, 1e-10, 1e-12)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeTrue())
		Expect(res.Changed).To(BeTrue())
		Expect(res.Iterations).To(BeNumerically("<=", matter.MaxProjectionIters))
		Expect(res.FinalNorm).To(BeNumerically("<", res.InitialNorm))
		Expect(res.FinalNorm).To(BeNumerically("<=", 1e-10))
		Expect(s.Stage()).To(Equal(stage.Position))

		perr, err := s.QErr()
		Expect(err).NotTo(HaveOccurred())
		Expect(math.Abs(perr[0])).To(BeNumerically("<", 1e-10))

		jac, err := sys.ConstraintJacobian(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(jac.At(0, 0)*qErr[0] + jac.At(0, 1)*qErr[1]).To(BeNumerically("~", 0, 1e-12))
	})

	It("reports non-convergence for an unreachable loop", func() {
		sys, _, _ := closedLoop(5)
		s := sys.NewState()
		Expect(s.SetQ([]float64{0.3, 0.4})).To(Succeed())
		Expect(sys.Realize(s, stage.Position)).To(Succeed())

		res, err := sys.ProjectQ(s, nil, 1e-10, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeFalse())
		Expect(res.Iterations).To(BeNumerically("<=", matter.MaxProjectionIters))
		Expect(res.FinalNorm).To(BeNumerically("<=", res.InitialNorm))
	})

	It("projects speeds onto the velocity constraints", func() {
		sys, _, _ := closedLoop(1.5)
		s := sys.NewState()
		Expect(s.SetQ([]float64{0.3, 0.4})).To(Succeed())
		Expect(sys.Realize(s, stage.Position)).To(Succeed())
		_, err := sys.ProjectQ(s, nil, 1e-12, 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(s.SetU([]float64{1, 0.5})).To(Succeed())
		Expect(sys.Realize(s, stage.Velocity)).To(Succeed())
		res, err := sys.ProjectU(s, nil, 1e-10, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeTrue())
		norm, err := sys.CalcUConstraintNorm(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(norm).To(BeNumerically("<", 1e-10))
	})

	It("needs the stage it projects at", func() {
		sys, _, _ := closedLoop(1.5)
		s := sys.NewState()
		_, err := sys.ProjectQ(s, nil, 1e-10, 0)
		Expect(err).To(MatchError(stage.ErrStageViolation))
	})

	It("cancels the acceleration errors with multipliers", func() {
		sys, _, _ := closedLoop(1.5)
		sys.AddForceSource(gravity{g: spatial.V(0, -9.81, 0)})
		s := sys.NewState()
		Expect(s.SetQ([]float64{0.3, 0.4})).To(Succeed())
		Expect(sys.Realize(s, stage.Position)).To(Succeed())
		_, err := sys.ProjectQ(s, nil, 1e-12, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.SetU([]float64{0.7, -0.2})).To(Succeed())
		Expect(sys.Realize(s, stage.Velocity)).To(Succeed())
		_, err = sys.ProjectU(s, nil, 1e-12, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(sys.Realize(s, stage.Acceleration)).To(Succeed())

		norm, err := sys.CalcUDotConstraintNorm(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(norm).To(BeNumerically("<", 1e-9))

		lambda, err := s.Multipliers()
		Expect(err).NotTo(HaveOccurred())
		Expect(lambda).To(HaveLen(1))

		udot, _ := s.UDot()
		body, _ := s.BodyForces()
		mobility, _ := s.MobilityForces()
		residual, err := sys.CalcInverseDynamics(s, udot, &matter.Forces{Body: body, Mobility: mobility})
		Expect(err).NotTo(HaveOccurred())
		jac, err := sys.ConstraintJacobian(s)
		Expect(err).NotTo(HaveOccurred())
		for i := range residual {
			Expect(residual[i]).To(BeNumerically("~", -jac.At(0, i)*lambda[0], 1e-9))
		}
	})

	It("conserves energy along a short constrained trajectory", func() {
		sys, _, _ := closedLoop(1.5)
		sys.AddForceSource(gravity{g: spatial.V(0, -9.81, 0)})
		s := sys.NewState()
		Expect(s.SetQ([]float64{0.3, 0.4})).To(Succeed())
		Expect(sys.Realize(s, stage.Position)).To(Succeed())
		_, err := sys.ProjectQ(s, nil, 1e-12, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(sys.Realize(s, stage.Report)).To(Succeed())
		e0, err := sys.TotalEnergy(s)
		Expect(err).NotTo(HaveOccurred())

		const dt = 1e-4
		for i := 0; i < 200; i++ {
			Expect(sys.Realize(s, stage.Acceleration)).To(Succeed())
			qdot, _ := s.QDot()
			udot, _ := s.UDot()
			s.UpdU(func(u []float64) {
				for j := range u {
					u[j] += dt * udot[j]
				}
			})
			Expect(sys.Realize(s, stage.Velocity)).To(Succeed())
			qd, _ := s.QDot()
			s.UpdQ(func(q []float64) {
				for j := range q {
					q[j] += dt * 0.5 * (qdot[j] + qd[j])
				}
			})
			Expect(sys.Realize(s, stage.Position)).To(Succeed())
			_, err := sys.ProjectQ(s, nil, 1e-12, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(sys.Realize(s, stage.Velocity)).To(Succeed())
			_, err = sys.ProjectU(s, nil, 1e-12, 0)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(sys.Realize(s, stage.Report)).To(Succeed())
		e1, err := sys.TotalEnergy(s)
		Expect(err).NotTo(HaveOccurred())
		Expect(e1).To(BeNumerically("~", e0, 1e-3))
	})
})
