// Package matter realizes the multibody state through its stage ladder and
// exposes the kinematic and dynamic operators built from the realized cache.
//
// A Subsystem wraps one frozen topology and the force sources attached to it.
// A State owns the state variables (t, q, u), the Instance and Dynamics stage
// inputs, and every cache tier. States built from the same Subsystem share the
// topology read-only and may be used from different goroutines, one goroutine
// per State.
//
// Spatial quantities follow one convention throughout: a SpatialVec is
// {angular, linear}, taken about a body's origin and expressed in Ground.
//
// Sweeps:
//   - Position and Velocity walk the topological order base to tip.
//   - Forward dynamics uses the articulated body method: a tip to base pass
//     forming articulated inertias and bias forces, then a base to tip pass
//     resolving accelerations. Constraint multipliers come from
//     A·λ = aerr(udot₀) with A = P·M⁻¹·Pᵀ, solved in the least squares sense.
//   - Inverse dynamics and M·v use Newton-Euler passes.
package matter
