// Package spectral holds sampled spectra, the CIE 1931 observer and the
// conversions from spectra to XYZ, sRGB and CIELAB.
package spectral

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"

	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

const (
	// VisibleMinNM and VisibleMaxNM bound the default evaluation grid.
	VisibleMinNM = 380.0
	VisibleMaxNM = 700.0
	// VisibleStepNM is the spacing of the default grid.
	VisibleStepNM = 10.0
	// VisibleSamples is the number of samples on the default grid.
	VisibleSamples = 33
)

// Spectrum is anything that can be evaluated at a wavelength in nanometres.
type Spectrum interface {
	At(wavelengthNM float64) float64
}

// Func adapts a plain function to Spectrum.
type Func func(wavelengthNM float64) float64

func (f Func) At(wavelengthNM float64) float64 { return f(wavelengthNM) }

// Constant is a flat spectrum.
type Constant float64

func (c Constant) At(float64) float64 { return float64(c) }

// Signal is an immutable, sampled spectrum. Values between samples are
// linearly interpolated; outside the sampled range the nearest end value is
// returned.
type Signal struct {
	wavelengths []float64
	values      []float64
	pl          interp.PiecewiseLinear
}

// NewSignal copies the samples into a new Signal. Wavelengths must be
// strictly increasing and there must be at least two samples.
func NewSignal(wavelengths, values []float64) (Signal, error) {
	if len(wavelengths) != len(values) {
		return Signal{}, fmt.Errorf("signal has %d wavelengths and %d values: %w",
			len(wavelengths), len(values), opterr.ErrParameterOutOfRange)
	}
	if len(wavelengths) < 2 {
		return Signal{}, fmt.Errorf("signal needs at least 2 samples, got %d: %w",
			len(wavelengths), opterr.ErrParameterOutOfRange)
	}
	for i := range wavelengths {
		if err := opterr.Finite("signal", wavelengths[i], values[i]); err != nil {
			return Signal{}, err
		}
		if i > 0 && wavelengths[i] <= wavelengths[i-1] {
			return Signal{}, fmt.Errorf("signal wavelengths not increasing at index %d: %w",
				i, opterr.ErrParameterOutOfRange)
		}
	}

	s := Signal{
		wavelengths: append([]float64(nil), wavelengths...),
		values:      append([]float64(nil), values...),
	}
	if err := s.pl.Fit(s.wavelengths, s.values); err != nil {
		return Signal{}, err
	}
	return s, nil
}

// MustSignal is NewSignal for static tables.
func MustSignal(wavelengths, values []float64) Signal {
	s, err := NewSignal(wavelengths, values)
	if err != nil {
		panic(err)
	}
	return s
}

// Sample evaluates a spectrum on the given grid.
func Sample(sp Spectrum, grid []float64) Signal {
	values := make([]float64, len(grid))
	for i, wl := range grid {
		values[i] = sp.At(wl)
	}
	return MustSignal(grid, values)
}

// At returns the interpolated value at wavelengthNM.
func (s Signal) At(wavelengthNM float64) float64 {
	if len(s.wavelengths) == 0 {
		return 0
	}
	return s.pl.Predict(wavelengthNM)
}

// Len is the number of samples.
func (s Signal) Len() int { return len(s.wavelengths) }

// Wavelengths returns a copy of the sample wavelengths.
func (s Signal) Wavelengths() []float64 { return append([]float64(nil), s.wavelengths...) }

// Values returns a copy of the sample values.
func (s Signal) Values() []float64 { return append([]float64(nil), s.values...) }

// Scale returns a new signal with every value multiplied by k.
func (s Signal) Scale(k float64) Signal {
	values := s.Values()
	floats.Scale(k, values)
	return MustSignal(s.wavelengths, values)
}

// Max is the largest sample value.
func (s Signal) Max() float64 {
	if len(s.values) == 0 {
		return math.NaN()
	}
	return floats.Max(s.values)
}

// Grid returns n evenly spaced wavelengths from lo to hi inclusive.
func Grid(lo, hi float64, n int) []float64 {
	if n < 2 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// VisibleGrid is the 33-sample grid from 380 to 700 nm in 10 nm steps.
func VisibleGrid() []float64 {
	return Grid(VisibleMinNM, VisibleMaxNM, VisibleSamples)
}
