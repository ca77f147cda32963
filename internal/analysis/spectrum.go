package analysis

import (
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrShortSignal = errors.New("analysis: signal too short")

// PowerSpectrum returns the magnitude of each non-negative frequency bin of
// signal after removing its mean. Bin i sits at i/(len(signal)·dt).
func PowerSpectrum(signal []float64) []float64 {
	if len(signal) < 2 {
		return nil
	}
	mean := stat.Mean(signal, nil)
	centered := make([]float64, len(signal))
	for i, v := range signal {
		centered[i] = v - mean
	}
	coeffs := fourier.NewFFT(len(centered)).Coefficients(nil, centered)
	ps := make([]float64, len(coeffs))
	for i, c := range coeffs {
		ps[i] = cmplx.Abs(c)
	}
	return ps
}

// DominantFrequency returns the frequency, in Hz, of the strongest non-DC
// bin of a signal sampled every dt seconds.
func DominantFrequency(signal []float64, dt float64) (float64, error) {
	if len(signal) < 4 {
		return 0, errors.Wrapf(ErrShortSignal, "%d samples", len(signal))
	}
	if dt <= 0 {
		return 0, errors.Errorf("analysis: sample interval %g", dt)
	}
	ps := PowerSpectrum(signal)
	i := floats.MaxIdx(ps[1:]) + 1
	return float64(i) / (float64(len(signal)) * dt), nil
}
