package mobilizer

import "github.com/san-kum/mbsim/internal/spatial"

// Weld has no mobility; M is rigidly attached to F.
type Weld struct{ plainKinematics }

func NewWeld() *Weld { return &Weld{} }

func (*Weld) Type() string { return "weld" }
func (*Weld) NQ(Model) int { return 0 }
func (*Weld) NU() int      { return 0 }

func (*Weld) AcrossJointTransform(Model, []float64) spatial.Transform {
	return spatial.IdentityTransform()
}

func (*Weld) VelocityJacobian(Model, []float64, []spatial.SpatialVec)               {}
func (*Weld) VelocityJacobianDot(Model, []float64, []float64, []spatial.SpatialVec) {}
func (*Weld) FitRotation(Model, spatial.Rotation, []float64)                        {}
func (*Weld) FitTranslation(Model, spatial.Vec3, []float64)                         {}
func (*Weld) FitAngularVelocity(Model, []float64, spatial.Vec3, []float64)          {}
func (*Weld) FitLinearVelocity(Model, []float64, spatial.Vec3, []float64)           {}
func (*Weld) UsingAngles(Model) (bool, int, int)                                    { return false, 0, 0 }

// Pin (torsion) rotates M about the common z axis of F and M.
type Pin struct{ plainKinematics }

func NewPin() *Pin { return &Pin{} }

func (*Pin) Type() string { return "pin" }
func (*Pin) NQ(Model) int { return 1 }
func (*Pin) NU() int      { return 1 }

func (*Pin) AcrossJointTransform(_ Model, q []float64) spatial.Transform {
	return spatial.Transform{R: spatial.RotationAboutZ(q[0])}
}

func (*Pin) VelocityJacobian(_ Model, _ []float64, h []spatial.SpatialVec) {
	h[0] = spatial.SpatialVec{W: spatial.ZAxis}
}

func (*Pin) VelocityJacobianDot(_ Model, _, _ []float64, hdot []spatial.SpatialVec) {
	zeroSpatial(hdot)
}

// FitRotation keeps only the part of the rotation about z.
func (*Pin) FitRotation(_ Model, r spatial.Rotation, q []float64) { q[0] = angleAboutZ(r) }

func (*Pin) FitTranslation(Model, spatial.Vec3, []float64) {}

func (*Pin) FitAngularVelocity(_ Model, _ []float64, w spatial.Vec3, u []float64) { u[0] = w.Z }

func (*Pin) FitLinearVelocity(Model, []float64, spatial.Vec3, []float64) {}

func (*Pin) UsingAngles(Model) (bool, int, int) { return true, 0, 1 }

// Slider translates M along the common x axis of F and M.
type Slider struct{ plainKinematics }

func NewSlider() *Slider { return &Slider{} }

func (*Slider) Type() string { return "slider" }
func (*Slider) NQ(Model) int { return 1 }
func (*Slider) NU() int      { return 1 }

func (*Slider) AcrossJointTransform(_ Model, q []float64) spatial.Transform {
	return spatial.Translation(spatial.V(q[0], 0, 0))
}

func (*Slider) VelocityJacobian(_ Model, _ []float64, h []spatial.SpatialVec) {
	h[0] = spatial.SpatialVec{V: spatial.XAxis}
}

func (*Slider) VelocityJacobianDot(_ Model, _, _ []float64, hdot []spatial.SpatialVec) {
	zeroSpatial(hdot)
}

func (*Slider) FitRotation(Model, spatial.Rotation, []float64) {}

func (*Slider) FitTranslation(_ Model, p spatial.Vec3, q []float64) { q[0] = p.X }

func (*Slider) FitAngularVelocity(Model, []float64, spatial.Vec3, []float64) {}

func (*Slider) FitLinearVelocity(_ Model, _ []float64, v spatial.Vec3, u []float64) { u[0] = v.X }

func (*Slider) UsingAngles(Model) (bool, int, int) { return false, 0, 0 }

// Cylinder rotates about and slides along the common z axis. q = (angle, z).
type Cylinder struct{ plainKinematics }

func NewCylinder() *Cylinder { return &Cylinder{} }

func (*Cylinder) Type() string { return "cylinder" }
func (*Cylinder) NQ(Model) int { return 2 }
func (*Cylinder) NU() int      { return 2 }

func (*Cylinder) AcrossJointTransform(_ Model, q []float64) spatial.Transform {
	return spatial.Transform{R: spatial.RotationAboutZ(q[0]), P: spatial.V(0, 0, q[1])}
}

func (*Cylinder) VelocityJacobian(_ Model, _ []float64, h []spatial.SpatialVec) {
	h[0] = spatial.SpatialVec{W: spatial.ZAxis}
	h[1] = spatial.SpatialVec{V: spatial.ZAxis}
}

func (*Cylinder) VelocityJacobianDot(_ Model, _, _ []float64, hdot []spatial.SpatialVec) {
	zeroSpatial(hdot)
}

func (*Cylinder) FitRotation(_ Model, r spatial.Rotation, q []float64) { q[0] = angleAboutZ(r) }

func (*Cylinder) FitTranslation(_ Model, p spatial.Vec3, q []float64) { q[1] = p.Z }

func (*Cylinder) FitAngularVelocity(_ Model, _ []float64, w spatial.Vec3, u []float64) { u[0] = w.Z }

func (*Cylinder) FitLinearVelocity(_ Model, _ []float64, v spatial.Vec3, u []float64) { u[1] = v.Z }

func (*Cylinder) UsingAngles(Model) (bool, int, int) { return true, 0, 1 }

// Translation is a Cartesian joint: p_FM = q, with no rotation.
type Translation struct{ plainKinematics }

func NewTranslation() *Translation { return &Translation{} }

func (*Translation) Type() string { return "translation" }
func (*Translation) NQ(Model) int { return 3 }
func (*Translation) NU() int      { return 3 }

func (*Translation) AcrossJointTransform(_ Model, q []float64) spatial.Transform {
	return spatial.Translation(spatial.FromSlice(q))
}

func (*Translation) VelocityJacobian(_ Model, _ []float64, h []spatial.SpatialVec) {
	h[0] = spatial.SpatialVec{V: spatial.XAxis}
	h[1] = spatial.SpatialVec{V: spatial.YAxis}
	h[2] = spatial.SpatialVec{V: spatial.ZAxis}
}

func (*Translation) VelocityJacobianDot(_ Model, _, _ []float64, hdot []spatial.SpatialVec) {
	zeroSpatial(hdot)
}

func (*Translation) FitRotation(Model, spatial.Rotation, []float64) {}

func (*Translation) FitTranslation(_ Model, p spatial.Vec3, q []float64) { spatial.ToSlice(p, q) }

func (*Translation) FitAngularVelocity(Model, []float64, spatial.Vec3, []float64) {}

func (*Translation) FitLinearVelocity(_ Model, _ []float64, v spatial.Vec3, u []float64) {
	spatial.ToSlice(v, u)
}

func (*Translation) UsingAngles(Model) (bool, int, int) { return false, 0, 0 }
