package matter

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/topology"
)

// view exposes a state's realized kinematics to constraints. acc and udot
// are only set when accelerations are being evaluated.
type view struct {
	s    *State
	acc  []spatial.SpatialVec
	udot []float64
}

func (v view) BodyTransform(b int) spatial.Transform     { return v.s.pc.xgb[b] }
func (v view) BodyVelocity(b int) spatial.SpatialVec     { return v.s.vc.vgb[b] }
func (v view) BodyAcceleration(b int) spatial.SpatialVec { return v.acc[b] }
func (v view) UStart(b int) int                          { return v.s.topo.Body(b).UStart }

func (v view) MobilizerQ(b int) []float64 {
	start, n := v.s.layout.Slot(b)
	return v.s.q[start : start+n]
}

func (v view) MobilizerU(b int) []float64 {
	start, n := v.s.topo.USlot(b)
	return v.s.u[start : start+n]
}

func (v view) MobilizerUDot(b int) []float64 {
	start, n := v.s.topo.USlot(b)
	return v.udot[start : start+n]
}

func resizeTransforms(x []spatial.Transform, n int) []spatial.Transform {
	if len(x) != n {
		return make([]spatial.Transform, n)
	}
	return x
}

func resizeSpatial(x []spatial.SpatialVec, n int) []spatial.SpatialVec {
	if len(x) != n {
		return make([]spatial.SpatialVec, n)
	}
	return x
}

func resizeVec3(x []spatial.Vec3, n int) []spatial.Vec3 {
	if len(x) != n {
		return make([]spatial.Vec3, n)
	}
	return x
}

func resizeFloats(x []float64, n int) []float64 {
	if len(x) != n {
		return make([]float64, n)
	}
	return x
}

// realizePosition is the base to tip position sweep. It also evaluates the
// position errors and the constraint Jacobian, which depend on q only.
func (sys *Subsystem) realizePosition(s *State) error {
	topo := sys.topo
	nb := topo.NBodies()
	pc := &s.pc
	pc.xfm = resizeTransforms(pc.xfm, nb)
	pc.xpb = resizeTransforms(pc.xpb, nb)
	pc.xgb = resizeTransforms(pc.xgb, nb)
	pc.rMB = resizeVec3(pc.rMB, nb)
	pc.rPB = resizeVec3(pc.rPB, nb)
	pc.hG = resizeSpatial(pc.hG, topo.NMobilities())
	s.abi.valid = false

	var h [6]spatial.SpatialVec
	pc.xgb[topology.Ground] = spatial.IdentityTransform()
	for _, b := range topo.Order() {
		if b == topology.Ground {
			continue
		}
		body := topo.Body(b)
		p := body.Parent
		qs, nq := s.layout.Slot(b)

		xfm := body.Mobilizer.AcrossJointTransform(s.model, s.q[qs:qs+nq])
		xgf := pc.xgb[p].Mul(s.xpf[b])
		pc.xfm[b] = xfm
		pc.xpb[b] = s.xpf[b].Mul(xfm).Mul(s.ic.xmb[b])
		pc.xgb[b] = pc.xgb[p].Mul(pc.xpb[b])
		pc.rMB[b] = pc.xgb[b].P.Sub(xgf.Apply(xfm.P))
		pc.rPB[b] = pc.xgb[b].P.Sub(pc.xgb[p].P)

		cols := h[:body.NU]
		body.Mobilizer.VelocityJacobian(s.model, s.q[qs:qs+nq], cols)
		for j, col := range cols {
			pc.hG[body.UStart+j] = reexpressMobility(xgf.R, col, pc.rMB[b])
		}
	}

	pc.perr = resizeFloats(pc.perr, topo.NQErr())
	v := view{s: s}
	for c := 0; c < topo.NConstraints(); c++ {
		sl := topo.ConstraintSlots(c)
		topo.Constraint(c).PositionErrors(v, pc.perr[sl.QStart:sl.QStart+sl.Counts.Q()])
	}
	sys.buildConstraintJacobian(s)
	return nil
}

// reexpressMobility turns a mobilizer column given in F about M's origin into
// the matching column in Ground about B's origin.
func reexpressMobility(rGF spatial.Rotation, col spatial.SpatialVec, rMB spatial.Vec3) spatial.SpatialVec {
	w := rGF.MulVec(col.W)
	return spatial.SpatialVec{W: w, V: rGF.MulVec(col.V).Add(w.Cross(rMB))}
}

// buildConstraintJacobian fills one row per multiplier. Row j is the
// generalized force produced by a unit multiplier j, which equals the
// derivative of the matching velocity error with respect to u.
func (sys *Subsystem) buildConstraintJacobian(s *State) {
	topo := sys.topo
	m, n := topo.NUDotErr(), topo.NMobilities()
	if m == 0 || n == 0 {
		s.pc.jac = nil
		return
	}
	if s.pc.jac == nil {
		s.pc.jac = mat.NewDense(m, n, nil)
	}
	body := make([]spatial.SpatialVec, topo.NBodies())
	mobility := make([]float64, n)
	scratch := make([]spatial.SpatialVec, topo.NBodies())
	v := view{s: s}
	for c := 0; c < topo.NConstraints(); c++ {
		sl := topo.ConstraintSlots(c)
		k := sl.Counts.UDot()
		lambda := make([]float64, k)
		for r := 0; r < k; r++ {
			for i := range body {
				body[i] = spatial.SpatialVec{}
			}
			fill(mobility, 0)
			fill(lambda, 0)
			lambda[r] = 1
			topo.Constraint(c).ApplyForces(v, lambda, body, mobility)
			sys.jacobianTranspose(s, body, mobility, s.pc.jac.RawRowView(sl.UDotStart+r), scratch)
		}
	}
}

// jacobianTranspose maps body forces (about body origins, in Ground) plus
// mobility forces to generalized forces with one tip to base pass. Forces on
// Ground are ignored. mobility may be nil.
func (sys *Subsystem) jacobianTranspose(s *State, body []spatial.SpatialVec, mobility, out []float64, scratch []spatial.SpatialVec) {
	copy(scratch, body)
	order := sys.topo.Order()
	for i := len(order) - 1; i >= 0; i-- {
		b := order[i]
		if b == topology.Ground {
			continue
		}
		bd := sys.topo.Body(b)
		f := scratch[b]
		for j := bd.UStart; j < bd.UStart+bd.NU; j++ {
			out[j] = s.pc.hG[j].Dot(f)
			if mobility != nil {
				out[j] += mobility[j]
			}
		}
		scratch[bd.Parent] = scratch[bd.Parent].Add(f.ShiftForce(s.pc.rPB[b]))
	}
}
