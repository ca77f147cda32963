package matter

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/mbsim/internal/mobilizer"
	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/stage"
	"github.com/san-kum/mbsim/internal/topology"
)

// State holds the variables of one trajectory and its realized caches. Every
// write goes through a method that first demotes the ladder, so a cached
// value can never outlive its inputs.
type State struct {
	topo   *topology.Topology
	ladder stage.Ladder

	// Model stage input and the q layout it implies.
	model  mobilizer.Model
	layout topology.QLayout

	// Instance stage inputs.
	mass     []spatial.MassProperties
	xpf, xbm []spatial.Transform
	cweights []float64
	uweights []float64

	t    float64
	q, u []float64

	// Dynamics stage inputs.
	applied Forces

	ic  instanceCache
	pc  positionCache
	vc  velocityCache
	dc  dynamicsCache
	ac  accelerationCache
	rc  reportCache
	abi articulatedCache
}

type instanceCache struct {
	xmb        []spatial.Transform
	totalMass  float64
	qErrWeight []float64
	uErrWeight []float64
	aErrWeight []float64
	// qRows and uRows pick the Jacobian rows of the Q and U level errors.
	qRows, uRows []int
}

type positionCache struct {
	xfm, xpb, xgb []spatial.Transform
	// rMB is the vector from M's origin to B's origin, in Ground.
	rMB []spatial.Vec3
	// rPB is the vector from the parent's origin to B's origin, in Ground.
	rPB []spatial.Vec3
	// hG holds the columns of H_PB, one per mobility, in Ground.
	hG   []spatial.SpatialVec
	perr []float64
	// jac is the constraint Jacobian with one row per multiplier.
	jac *mat.Dense
}

type velocityCache struct {
	vfm, vgb []spatial.SpatialVec
	// vpb is the velocity of B relative to its parent, in Ground.
	vpb        []spatial.SpatialVec
	coriolis   []spatial.SpatialVec
	gyroscopic []spatial.SpatialVec
	qdot       []float64
	verr       []float64
}

type dynamicsCache struct {
	forces Forces
	z      []spatial.SpatialVec
	eps    []float64
	nu     []float64
}

type accelerationCache struct {
	udot, udot0 []float64
	agb         []spatial.SpatialVec
	qdotdot     []float64
	aerr        []float64
	lambda      []float64
}

type reportCache struct {
	kinetic, potential float64
	momentum           spatial.SpatialVec
	massCenter         spatial.Vec3
}

// articulatedCache depends on positions only. It is built on demand after
// Position and dropped with the position cache.
type articulatedCache struct {
	valid bool
	p     []spatial.SpatialMat
	pPlus []spatial.SpatialMat
	ph    []spatial.SpatialVec
	g     []spatial.SpatialVec
	di    [][]float64
}

func newState(topo *topology.Topology) *State {
	n := topo.NBodies()
	s := &State{
		topo:     topo,
		mass:     make([]spatial.MassProperties, n),
		xpf:      make([]spatial.Transform, n),
		xbm:      make([]spatial.Transform, n),
		cweights: make([]float64, topo.NConstraints()),
		uweights: make([]float64, topo.NMobilities()),
		u:        make([]float64, topo.NMobilities()),
	}
	for b := 0; b < n; b++ {
		body := topo.Body(b)
		s.mass[b], s.xpf[b], s.xbm[b] = body.Mass, body.XPF, body.XBM
	}
	fill(s.cweights, 1)
	fill(s.uweights, 1)
	s.layout = topo.QLayout(s.model)
	s.q = defaultQ(topo, s.model)
	s.applied.resize(n, topo.NMobilities())
	_ = s.ladder.Realize(stage.Topology, nil)
	return s
}

func defaultQ(topo *topology.Topology, m mobilizer.Model) []float64 {
	layout := topo.QLayout(m)
	q := make([]float64, layout.NQ)
	for b := 1; b < topo.NBodies(); b++ {
		start, n := layout.Slot(b)
		topo.Body(b).Mobilizer.DefaultQ(m, q[start:start+n])
	}
	return q
}

// Clone returns an independent copy sharing only the topology. Caches above
// Instance are not copied and are recomputed on demand.
func (s *State) Clone() *State {
	c := &State{
		topo:     s.topo,
		ladder:   s.ladder,
		model:    s.model,
		layout:   s.layout,
		mass:     append([]spatial.MassProperties(nil), s.mass...),
		xpf:      append([]spatial.Transform(nil), s.xpf...),
		xbm:      append([]spatial.Transform(nil), s.xbm...),
		cweights: append([]float64(nil), s.cweights...),
		uweights: append([]float64(nil), s.uweights...),
		t:        s.t,
		q:        append([]float64(nil), s.q...),
		u:        append([]float64(nil), s.u...),
		applied:  s.applied.clone(),
		ic:       s.ic,
	}
	c.ladder.ResetCounters()
	c.ladder.Invalidate(stage.Time)
	return c
}

func (s *State) Topology() *topology.Topology { return s.topo }

// Stage reports the highest realized stage.
func (s *State) Stage() stage.Stage { return s.ladder.Current() }

// Recomputes reports how many times stage st has been computed, for tests and
// benchmarks.
func (s *State) Recomputes(st stage.Stage) int { return s.ladder.Recomputes(st) }

func (s *State) UseEulerAngles() bool { return s.model.UseEulerAngles }

func (s *State) Time() float64 { return s.t }

func (s *State) NQ() int { return len(s.q) }
func (s *State) NU() int { return len(s.u) }

// Q returns a copy of the generalized coordinates.
func (s *State) Q() []float64 { return append([]float64(nil), s.q...) }

// U returns a copy of the generalized speeds.
func (s *State) U() []float64 { return append([]float64(nil), s.u...) }

// QSlot returns the first index and count of body b's coordinates under the
// current Model choice.
func (s *State) QSlot(b int) (start, n int) { return s.layout.Slot(b) }

// MobilizerQ returns a copy of body b's coordinates.
func (s *State) MobilizerQ(b int) ([]float64, error) {
	if err := s.checkBody(b); err != nil {
		return nil, err
	}
	start, n := s.QSlot(b)
	return append([]float64(nil), s.q[start:start+n]...), nil
}

// MobilizerU returns a copy of body b's speeds.
func (s *State) MobilizerU(b int) ([]float64, error) {
	if err := s.checkBody(b); err != nil {
		return nil, err
	}
	start, n := s.topo.USlot(b)
	return append([]float64(nil), s.u[start:start+n]...), nil
}

// SetUseEulerAngles switches ball and free mobilizers between quaternions
// and body-fixed angles. Their current orientations are carried over.
func (s *State) SetUseEulerAngles(euler bool) {
	s.ladder.Invalidate(stage.Model)
	if euler == s.model.UseEulerAngles {
		return
	}
	from, to := s.model, mobilizer.Model{UseEulerAngles: euler}
	oldLayout, newLayout := s.topo.QLayout(from), s.topo.QLayout(to)
	q := make([]float64, newLayout.NQ)
	for b := 1; b < s.topo.NBodies(); b++ {
		mob := s.topo.Body(b).Mobilizer
		os, on := oldLayout.Slot(b)
		ns, nn := newLayout.Slot(b)
		if on == nn {
			copy(q[ns:ns+nn], s.q[os:os+on])
			continue
		}
		x := mob.AcrossJointTransform(from, s.q[os:os+on])
		mob.DefaultQ(to, q[ns:ns+nn])
		mob.FitRotation(to, x.R, q[ns:ns+nn])
		mob.FitTranslation(to, x.P, q[ns:ns+nn])
	}
	s.q, s.model, s.layout = q, to, newLayout
}

func (s *State) SetMassProperties(b int, mp spatial.MassProperties) error {
	if err := s.checkBody(b); err != nil {
		return err
	}
	s.ladder.Invalidate(stage.Instance)
	s.mass[b] = mp
	return nil
}

// SetInboardFrame places body b's F frame on its parent.
func (s *State) SetInboardFrame(b int, xpf spatial.Transform) error {
	if err := s.checkBody(b); err != nil {
		return err
	}
	s.ladder.Invalidate(stage.Instance)
	s.xpf[b] = xpf
	return nil
}

// SetOutboardFrame places body b's M frame on the body.
func (s *State) SetOutboardFrame(b int, xbm spatial.Transform) error {
	if err := s.checkBody(b); err != nil {
		return err
	}
	s.ladder.Invalidate(stage.Instance)
	s.xbm[b] = xbm
	return nil
}

// SetConstraintWeights sets one weight per constraint. Each error row is
// multiplied by its constraint's weight in the weighted norms, so a weight is
// the inverse of a tolerable error.
func (s *State) SetConstraintWeights(w []float64) error {
	if err := checkWeights("SetConstraintWeights", w, len(s.cweights)); err != nil {
		return err
	}
	s.ladder.Invalidate(stage.Instance)
	copy(s.cweights, w)
	return nil
}

// SetUWeights sets one weight per mobility. Projection minimizes the
// weighted size of the change it makes to u (and through N to q).
func (s *State) SetUWeights(w []float64) error {
	if err := checkWeights("SetUWeights", w, len(s.uweights)); err != nil {
		return err
	}
	s.ladder.Invalidate(stage.Instance)
	copy(s.uweights, w)
	return nil
}

func (s *State) SetTime(t float64) {
	s.ladder.Invalidate(stage.Time)
	s.t = t
}

func (s *State) SetQ(q []float64) error {
	if len(q) != len(s.q) {
		return errors.Wrapf(ErrBadLength, "SetQ: got %d, want %d", len(q), len(s.q))
	}
	s.ladder.Invalidate(stage.Position)
	copy(s.q, q)
	return nil
}

// UpdQ demotes to Time and lets fn modify q in place.
func (s *State) UpdQ(fn func(q []float64)) {
	s.ladder.Invalidate(stage.Position)
	fn(s.q)
}

func (s *State) SetMobilizerQ(b int, q []float64) error {
	if err := s.checkBody(b); err != nil {
		return err
	}
	start, n := s.QSlot(b)
	if len(q) != n {
		return errors.Wrapf(ErrBadLength, "SetMobilizerQ(body %d): got %d, want %d", b, len(q), n)
	}
	s.ladder.Invalidate(stage.Position)
	copy(s.q[start:start+n], q)
	return nil
}

func (s *State) SetU(u []float64) error {
	if len(u) != len(s.u) {
		return errors.Wrapf(ErrBadLength, "SetU: got %d, want %d", len(u), len(s.u))
	}
	s.ladder.Invalidate(stage.Velocity)
	copy(s.u, u)
	return nil
}

// UpdU demotes to Position and lets fn modify u in place.
func (s *State) UpdU(fn func(u []float64)) {
	s.ladder.Invalidate(stage.Velocity)
	fn(s.u)
}

func (s *State) SetMobilizerU(b int, u []float64) error {
	if err := s.checkBody(b); err != nil {
		return err
	}
	start, n := s.topo.USlot(b)
	if len(u) != n {
		return errors.Wrapf(ErrBadLength, "SetMobilizerU(body %d): got %d, want %d", b, len(u), n)
	}
	s.ladder.Invalidate(stage.Velocity)
	copy(s.u[start:start+n], u)
	return nil
}

// SetMobilityForces sets the applied generalized forces, one per mobility.
func (s *State) SetMobilityForces(f []float64) error {
	if len(f) != len(s.applied.Mobility) {
		return errors.Wrapf(ErrBadLength, "SetMobilityForces: got %d, want %d", len(f), len(s.applied.Mobility))
	}
	s.ladder.Invalidate(stage.Dynamics)
	copy(s.applied.Mobility, f)
	return nil
}

// SetBodyForces sets the applied spatial forces, one per body, about each
// body origin and in Ground. The entry for Ground is ignored.
func (s *State) SetBodyForces(f []spatial.SpatialVec) error {
	if len(f) != len(s.applied.Body) {
		return errors.Wrapf(ErrBadLength, "SetBodyForces: got %d, want %d", len(f), len(s.applied.Body))
	}
	s.ladder.Invalidate(stage.Dynamics)
	copy(s.applied.Body, f)
	return nil
}

// SetParticleForces exists for interface completeness; this engine has no
// particles so only an empty slice is accepted.
func (s *State) SetParticleForces(f []spatial.Vec3) error {
	if len(f) != len(s.applied.Particle) {
		return errors.Wrapf(ErrBadLength, "SetParticleForces: got %d, want %d", len(f), len(s.applied.Particle))
	}
	s.ladder.Invalidate(stage.Dynamics)
	copy(s.applied.Particle, f)
	return nil
}

// AppliedForces returns a copy of the applied force inputs.
func (s *State) AppliedForces() Forces { return s.applied.clone() }

// InvalidateAll drops every cache above Topology.
func (s *State) InvalidateAll() { s.ladder.Invalidate(stage.Model) }

// IsFinite reports whether t, q and u are free of NaN and Inf.
func (s *State) IsFinite() bool {
	if math.IsNaN(s.t) || math.IsInf(s.t, 0) {
		return false
	}
	for _, v := range s.q {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	for _, v := range s.u {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s *State) checkBody(b int) error {
	if b < 0 || b >= s.topo.NBodies() {
		return errors.Wrapf(ErrBadBody, "body %d of %d", b, s.topo.NBodies())
	}
	return nil
}

func (s *State) require(op string, st stage.Stage) error {
	return s.ladder.Require(op, st)
}

func checkWeights(op string, w []float64, n int) error {
	if len(w) != n {
		return errors.Wrapf(ErrBadLength, "%s: got %d, want %d", op, len(w), n)
	}
	for i, v := range w {
		if !(v > 0) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrBadWeight, "%s: entry %d is %v", op, i, v)
		}
	}
	return nil
}

func fill(x []float64, v float64) {
	for i := range x {
		x[i] = v
	}
}
