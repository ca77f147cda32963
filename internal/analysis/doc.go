// Package analysis characterizes simulated trajectories.
//
//   - [PowerSpectrum] and [DominantFrequency]: spectral content of a sampled signal
//   - [LyapunovExponent]: largest Lyapunov exponent via trajectory separation
//   - [PhasePortrait]: a coordinate against a speed, rendered as ASCII
//
// A positive largest Lyapunov exponent indicates chaotic dynamics:
//
//	lambda, err := analysis.LyapunovExponent(m.System, integ, m.NewState(), 0.01, 20, 1e-8)
//	if err == nil && lambda > 0 {
//	    // chaotic
//	}
package analysis
