// Package spatial provides the numeric leaf types of the multibody engine.
//
// Conventions follow the usual rigid-body notation:
//
//   - X_AB is a [Transform] locating frame B in frame A (rotation R_AB, origin p_AB).
//   - [SpatialVec] values are ordered angular first: {w, v} for velocities,
//     {alpha, a} for accelerations and {torque, force} for forces.
//   - Spatial velocities and forces are taken about a body's origin and
//     expressed in the ground frame unless a name says otherwise.
//
// Cartesian vectors are r3.Vector values from github.com/golang/geo; quaternions
// are gonum quat.Number values with the scalar part in Real.
package spatial
