package matter

import (
	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/topology"
)

// realizeVelocity is the base to tip velocity sweep. It also forms the
// velocity dependent acceleration and force terms used by the dynamics.
func (sys *Subsystem) realizeVelocity(s *State) error {
	topo := sys.topo
	nb := topo.NBodies()
	pc, vc := &s.pc, &s.vc
	vc.vfm = resizeSpatial(vc.vfm, nb)
	vc.vgb = resizeSpatial(vc.vgb, nb)
	vc.vpb = resizeSpatial(vc.vpb, nb)
	vc.coriolis = resizeSpatial(vc.coriolis, nb)
	vc.gyroscopic = resizeSpatial(vc.gyroscopic, nb)
	vc.qdot = resizeFloats(vc.qdot, len(s.q))

	var hdot [6]spatial.SpatialVec
	for _, b := range topo.Order() {
		if b == topology.Ground {
			continue
		}
		body := topo.Body(b)
		p := body.Parent
		qs, nq := s.layout.Slot(b)
		q, u := s.q[qs:qs+nq], s.u[body.UStart:body.UStart+body.NU]

		vc.vfm[b] = mobilizerVelocity(body, s, q, u)
		var vpb spatial.SpatialVec
		for j, uj := range u {
			vpb = vpb.Add(pc.hG[body.UStart+j].Scale(uj))
		}
		vc.vpb[b] = vpb

		wP, r := vc.vgb[p].W, pc.rPB[b]
		vc.vgb[b] = vc.vgb[p].ShiftVelocity(r).Add(vpb)

		rGF := pc.xgb[p].R.Mul(s.xpf[b].R)
		cols := hdot[:body.NU]
		body.Mobilizer.VelocityJacobianDot(s.model, q, u, cols)
		var hdotU spatial.SpatialVec
		for j, col := range cols {
			hdotU = hdotU.Add(reexpressMobility(rGF, col, pc.rMB[b]).Scale(u[j]))
		}
		vc.coriolis[b] = spatial.SpatialVec{
			W: wP.Cross(vpb.W),
			V: wP.Cross(wP.Cross(r)).
				Add(wP.Cross(vpb.V).Mul(2)).
				Add(vpb.W.Cross(vpb.W.Cross(pc.rMB[b]))),
		}.Add(hdotU)

		vc.gyroscopic[b] = s.mass[b].GyroscopicForce(pc.xgb[b].R, vc.vgb[b].W)
		body.Mobilizer.QDot(s.model, q, u, vc.qdot[qs:qs+nq])
	}

	vc.verr = resizeFloats(vc.verr, topo.NUErr())
	v := view{s: s}
	for c := 0; c < topo.NConstraints(); c++ {
		sl := topo.ConstraintSlots(c)
		topo.Constraint(c).VelocityErrors(v, vc.verr[sl.UStart:sl.UStart+sl.Counts.U()])
	}
	return nil
}

func mobilizerVelocity(body *topology.Body, s *State, q, u []float64) spatial.SpatialVec {
	var h [6]spatial.SpatialVec
	cols := h[:body.NU]
	body.Mobilizer.VelocityJacobian(s.model, q, cols)
	var v spatial.SpatialVec
	for j, col := range cols {
		v = v.Add(col.Scale(u[j]))
	}
	return v
}
