package integrators

import (
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/mbsim/internal/logging"
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/stage"
)

// Dormand-Prince coefficients (RK45)
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

// DefaultTolerance is the local error tolerance Step uses.
const DefaultTolerance = 1e-6

// RK45 is the embedded Dormand-Prince 5(4) pair with step size control.
type RK45 struct {
	projecting
	safety   float64
	minScale float64
	maxScale float64
	logger   *zap.SugaredLogger
}

func NewRK45() *RK45 {
	return &RK45{
		projecting: projecting{proj: DefaultProjection()},
		safety:     0.9,
		minScale:   0.2,
		maxScale:   10.0,
		logger:     logging.NewNop(),
	}
}

// SetLogger sets where rejected steps are reported, at Debug level.
func (r *RK45) SetLogger(logger *zap.SugaredLogger) { r.logger = logger }

func (r *RK45) Name() string { return "rk45" }

// Step takes one step of exactly dt, accepting it whatever its error.
func (r *RK45) Step(sys *matter.Subsystem, s *matter.State, dt float64) (StepResult, error) {
	res, _, err := r.step(sys, s, dt, DefaultTolerance, true)
	return res, err
}

// StepAdaptive attempts a step of dt. When the estimated local error exceeds
// tol, or the position projection fails to converge, the step is rejected,
// s is left untouched and the returned size is smaller than dt.
func (r *RK45) StepAdaptive(sys *matter.Subsystem, s *matter.State, dt, tol float64) (StepResult, float64, error) {
	return r.step(sys, s, dt, tol, false)
}

func (r *RK45) step(sys *matter.Subsystem, s *matter.State, dt, tol float64, force bool) (StepResult, float64, error) {
	f := newFlow(sys, s)
	n, t := f.n, s.Time()
	x := pack(s)

	k1, k2, k3, k4 := buffers.get(n), buffers.get(n), buffers.get(n), buffers.get(n)
	k5, k6, k7 := buffers.get(n), buffers.get(n), buffers.get(n)
	xs, xNew, xErr := buffers.get(n), buffers.get(n), buffers.get(n)
	defer buffers.put(k1, k2, k3, k4, k5, k6, k7, xs, xNew, xErr)

	if err := f.eval(t, x, k1); err != nil {
		return StepResult{}, dt, err
	}
	for i := 0; i < n; i++ {
		xs[i] = x[i] + dt*b21*k1[i]
	}
	if err := f.eval(t+a2*dt, xs, k2); err != nil {
		return StepResult{}, dt, err
	}
	for i := 0; i < n; i++ {
		xs[i] = x[i] + dt*(b31*k1[i]+b32*k2[i])
	}
	if err := f.eval(t+a3*dt, xs, k3); err != nil {
		return StepResult{}, dt, err
	}
	for i := 0; i < n; i++ {
		xs[i] = x[i] + dt*(b41*k1[i]+b42*k2[i]+b43*k3[i])
	}
	if err := f.eval(t+a4*dt, xs, k4); err != nil {
		return StepResult{}, dt, err
	}
	for i := 0; i < n; i++ {
		xs[i] = x[i] + dt*(b51*k1[i]+b52*k2[i]+b53*k3[i]+b54*k4[i])
	}
	if err := f.eval(t+a5*dt, xs, k5); err != nil {
		return StepResult{}, dt, err
	}
	for i := 0; i < n; i++ {
		xs[i] = x[i] + dt*(b61*k1[i]+b62*k2[i]+b63*k3[i]+b64*k4[i]+b65*k5[i])
	}
	if err := f.eval(t+dt, xs, k6); err != nil {
		return StepResult{}, dt, err
	}
	for i := 0; i < n; i++ {
		xNew[i] = x[i] + dt*(c1*k1[i]+c3*k3[i]+c4*k4[i]+c5*k5[i]+c6*k6[i])
	}
	if err := f.eval(t+dt, xNew, k7); err != nil {
		return StepResult{}, dt, err
	}

	errMax := 0.0
	for i := 0; i < n; i++ {
		xErr[i] = dt * (dc1*k1[i] + dc3*k3[i] + dc4*k4[i] + dc5*k5[i] + dc6*k6[i] + dc7*k7[i])
		scale := math.Abs(x[i]) + math.Abs(dt*k1[i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(xErr[i])/scale)
	}
	errRatio := errMax / tol

	if errRatio > 1 && !force {
		scale := math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.25))
		r.logger.Debugw("step rejected", "t", t, "dt", dt, "err_ratio", errRatio, "next_dt", dt*scale)
		return StepResult{}, dt * scale, nil
	}

	var dtNew float64
	switch {
	case errRatio > 1:
		dtNew = dt * math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.25))
	case errRatio > 0:
		dtNew = dt * math.Min(r.maxScale, r.safety*math.Pow(errRatio, -0.2))
	default:
		dtNew = dt * r.maxScale
	}

	if force {
		res, err := r.commit(sys, s, t+dt, xNew, xErr)
		return res, dtNew, err
	}

	// Commit into a trial copy so a failed projection can be rejected.
	trial := s.Clone()
	res, err := r.commit(sys, trial, t+dt, xNew, xErr)
	if err != nil {
		return res, dtNew, err
	}
	if !res.Position.Converged {
		r.logger.Debugw("step rejected", "t", t, "dt", dt, "reason", "projection", "qerr", res.Position.FinalNorm)
		return StepResult{Position: res.Position, Velocity: res.Velocity}, dt * r.minScale, nil
	}
	s.SetTime(trial.Time())
	if err := s.SetQ(trial.Q()); err != nil {
		return res, dtNew, err
	}
	if err := s.SetU(trial.U()); err != nil {
		return res, dtNew, err
	}
	return res, dtNew, sys.Realize(s, stage.Velocity)
}
