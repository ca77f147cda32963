package matter

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/topology"
)

// ensureArticulated forms the articulated body inertias with a tip to base
// pass:
//
//	P  = M + Σ Φ·P⁺·Φᵀ over children
//	D  = Hᵀ·P·H, DI = D⁻¹, G = P·H·DI
//	P⁺ = P − G·(P·H)ᵀ
//
// They depend on positions and mass properties only.
func (sys *Subsystem) ensureArticulated(s *State) {
	if s.abi.valid {
		return
	}
	topo := sys.topo
	nb, nu := topo.NBodies(), topo.NMobilities()
	a := &s.abi
	if len(a.p) != nb {
		a.p = make([]spatial.SpatialMat, nb)
		a.pPlus = make([]spatial.SpatialMat, nb)
		a.di = make([][]float64, nb)
	}
	a.ph = resizeSpatial(a.ph, nu)
	a.g = resizeSpatial(a.g, nu)

	for b := 0; b < nb; b++ {
		a.p[b] = s.mass[b].SpatialInertia(s.pc.xgb[b].R)
	}
	order := topo.Order()
	for i := len(order) - 1; i >= 0; i-- {
		b := order[i]
		if b == topology.Ground {
			continue
		}
		body := topo.Body(b)
		n, u0 := body.NU, body.UStart
		pb := a.p[b]
		for j := 0; j < n; j++ {
			a.ph[u0+j] = pb.MulVec(s.pc.hG[u0+j])
		}
		d := make([]float64, n*n)
		for r := 0; r < n; r++ {
			for c := 0; c < n; c++ {
				d[r*n+c] = s.pc.hG[u0+r].Dot(a.ph[u0+c])
			}
		}
		a.di[b] = pseudoInverse(d, n)
		plus := pb
		for j := 0; j < n; j++ {
			var g spatial.SpatialVec
			for k := 0; k < n; k++ {
				g = g.Add(a.ph[u0+k].Scale(a.di[b][k*n+j]))
			}
			a.g[u0+j] = g
			plus = plus.Sub(spatial.SpatialOuter(g, a.ph[u0+j]))
		}
		a.pPlus[b] = plus
		if body.Parent != topology.Ground {
			a.p[body.Parent] = a.p[body.Parent].Add(plus.Shift(s.pc.rPB[b]))
		}
	}
	a.valid = true
}

// articulatedBias is the tip to base force pass. coriolis and bias (the
// gyroscopic minus applied body forces) may be nil for zero. It fills
// z (per body), eps and nu (per mobility).
func (sys *Subsystem) articulatedBias(s *State, coriolis, bias []spatial.SpatialVec, fmob []float64, z []spatial.SpatialVec, eps, nu []float64) {
	topo := sys.topo
	a := &s.abi
	for b := range z {
		z[b] = spatial.SpatialVec{}
		if coriolis != nil {
			z[b] = a.p[b].MulVec(coriolis[b])
		}
		if bias != nil {
			z[b] = z[b].Add(bias[b])
		}
	}
	order := topo.Order()
	for i := len(order) - 1; i >= 0; i-- {
		b := order[i]
		if b == topology.Ground {
			continue
		}
		body := topo.Body(b)
		n, u0 := body.NU, body.UStart
		zPlus := z[b]
		for j := 0; j < n; j++ {
			eps[u0+j] = -s.pc.hG[u0+j].Dot(z[b])
			if fmob != nil {
				eps[u0+j] += fmob[u0+j]
			}
		}
		for j := 0; j < n; j++ {
			nu[u0+j] = 0
			for k := 0; k < n; k++ {
				nu[u0+j] += a.di[b][j*n+k] * eps[u0+k]
			}
			zPlus = zPlus.Add(a.g[u0+j].Scale(eps[u0+j]))
		}
		if body.Parent != topology.Ground {
			z[body.Parent] = z[body.Parent].Add(zPlus.ShiftForce(s.pc.rPB[b]))
		}
	}
}

// articulatedAccel is the base to tip pass: udot = ν − Gᵀ·Φᵀ·A_P and
// A = Φᵀ·A_P + H·udot + coriolis.
func (sys *Subsystem) articulatedAccel(s *State, coriolis []spatial.SpatialVec, nu, udot []float64, agb []spatial.SpatialVec) {
	topo := sys.topo
	a := &s.abi
	agb[topology.Ground] = spatial.SpatialVec{}
	for _, b := range topo.Order() {
		if b == topology.Ground {
			continue
		}
		body := topo.Body(b)
		alpha := agb[body.Parent].ShiftVelocity(s.pc.rPB[b])
		acc := alpha
		for j := body.UStart; j < body.UStart+body.NU; j++ {
			udot[j] = nu[j] - a.g[j].Dot(alpha)
			acc = acc.Add(s.pc.hG[j].Scale(udot[j]))
		}
		if coriolis != nil {
			acc = acc.Add(coriolis[b])
		}
		agb[b] = acc
	}
}

// accelerationsFromUDot runs the base to tip acceleration recursion for a
// given udot, with or without the velocity dependent terms.
func (sys *Subsystem) accelerationsFromUDot(s *State, udot []float64, coriolis []spatial.SpatialVec, agb []spatial.SpatialVec) {
	topo := sys.topo
	agb[topology.Ground] = spatial.SpatialVec{}
	for _, b := range topo.Order() {
		if b == topology.Ground {
			continue
		}
		body := topo.Body(b)
		acc := agb[body.Parent].ShiftVelocity(s.pc.rPB[b])
		for j := body.UStart; j < body.UStart+body.NU; j++ {
			acc = acc.Add(s.pc.hG[j].Scale(udot[j]))
		}
		if coriolis != nil {
			acc = acc.Add(coriolis[b])
		}
		agb[b] = acc
	}
}

// realizeDynamics gathers applied and source forces and runs the articulated
// body force pass.
func (sys *Subsystem) realizeDynamics(s *State) error {
	topo := sys.topo
	dc := &s.dc
	sys.ResetForces(&dc.forces)
	dc.forces.add(&s.applied)
	for _, src := range sys.sources {
		if err := src.CalcForces(sys, s, &dc.forces); err != nil {
			return errors.Wrapf(err, "force source %s", src.Name())
		}
	}

	sys.ensureArticulated(s)
	nb, nu := topo.NBodies(), topo.NMobilities()
	dc.z = resizeSpatial(dc.z, nb)
	dc.eps = resizeFloats(dc.eps, nu)
	dc.nu = resizeFloats(dc.nu, nu)
	bias := make([]spatial.SpatialVec, nb)
	for b := range bias {
		bias[b] = s.vc.gyroscopic[b].Sub(dc.forces.Body[b])
	}
	sys.articulatedBias(s, s.vc.coriolis, bias, dc.forces.Mobility, dc.z, dc.eps, dc.nu)
	return nil
}

// realizeAcceleration resolves the unconstrained accelerations and then
// removes the constraint acceleration errors with multipliers:
//
//	(P·M⁻¹·Pᵀ)·λ = aerr(udot₀),  udot = udot₀ − M⁻¹·Pᵀ·λ
func (sys *Subsystem) realizeAcceleration(s *State) error {
	topo := sys.topo
	nb, nu, m := topo.NBodies(), topo.NMobilities(), topo.NUDotErr()
	ac := &s.ac
	ac.udot0 = resizeFloats(ac.udot0, nu)
	ac.udot = resizeFloats(ac.udot, nu)
	ac.agb = resizeSpatial(ac.agb, nb)
	ac.aerr = resizeFloats(ac.aerr, m)
	ac.lambda = resizeFloats(ac.lambda, m)
	ac.qdotdot = resizeFloats(ac.qdotdot, len(s.q))

	sys.articulatedAccel(s, s.vc.coriolis, s.dc.nu, ac.udot0, ac.agb)
	copy(ac.udot, ac.udot0)

	if m > 0 && nu > 0 {
		sys.accelerationErrors(s, ac.agb, ac.udot, ac.aerr)

		jac := s.pc.jac
		minvPt := mat.NewDense(nu, m, nil)
		col := make([]float64, nu)
		for j := 0; j < m; j++ {
			sys.multiplyByMInv(s, jac.RawRowView(j), col)
			minvPt.SetCol(j, col)
		}
		var a mat.Dense
		a.Mul(jac, minvPt)
		ones := make([]float64, m)
		fill(ones, 1)
		copy(ac.lambda, minNormSolve(&a, s.ic.aErrWeight, ones, ac.aerr))

		var corr mat.VecDense
		corr.MulVec(minvPt, mat.NewVecDense(m, ac.lambda))
		for i := range ac.udot {
			ac.udot[i] -= corr.AtVec(i)
		}
		sys.accelerationsFromUDot(s, ac.udot, s.vc.coriolis, ac.agb)
	}
	sys.accelerationErrors(s, ac.agb, ac.udot, ac.aerr)

	for _, b := range topo.Order() {
		if b == topology.Ground {
			continue
		}
		body := topo.Body(b)
		qs, nq := s.layout.Slot(b)
		us := body.UStart
		body.Mobilizer.QDotDot(s.model, s.q[qs:qs+nq], s.u[us:us+body.NU], ac.udot[us:us+body.NU], ac.qdotdot[qs:qs+nq])
	}
	return nil
}

func (sys *Subsystem) accelerationErrors(s *State, agb []spatial.SpatialVec, udot, aerr []float64) {
	v := view{s: s, acc: agb, udot: udot}
	for c := 0; c < sys.topo.NConstraints(); c++ {
		sl := sys.topo.ConstraintSlots(c)
		sys.topo.Constraint(c).AccelerationErrors(v, aerr[sl.UDotStart:sl.UDotStart+sl.Counts.UDot()])
	}
}

// multiplyByMInv computes M⁻¹·f with the articulated body method at zero
// velocity. Positions must be realized.
func (sys *Subsystem) multiplyByMInv(s *State, f, out []float64) {
	sys.ensureArticulated(s)
	nb, nu := sys.topo.NBodies(), sys.topo.NMobilities()
	z := make([]spatial.SpatialVec, nb)
	eps, nuv := make([]float64, nu), make([]float64, nu)
	sys.articulatedBias(s, nil, nil, f, z, eps, nuv)
	sys.articulatedAccel(s, nil, nuv, out, make([]spatial.SpatialVec, nb))
}

// multiplyByM computes M·v with a Newton-Euler pass at zero velocity.
func (sys *Subsystem) multiplyByM(s *State, v, out []float64) {
	nb := sys.topo.NBodies()
	agb := make([]spatial.SpatialVec, nb)
	sys.accelerationsFromUDot(s, v, nil, agb)
	f := make([]spatial.SpatialVec, nb)
	for b := 1; b < nb; b++ {
		f[b] = s.mass[b].SpatialInertia(s.pc.xgb[b].R).MulVec(agb[b])
	}
	sys.jacobianTranspose(s, f, nil, out, make([]spatial.SpatialVec, nb))
}
