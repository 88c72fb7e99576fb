package gooptcore

import (
	"fmt"
	"math"

	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// DefaultEpsilon is the tolerance on R+T+A = 1.
const DefaultEpsilon = 1e-6

// BSDFResponse splits incident power into reflected, transmitted and
// absorbed fractions.
type BSDFResponse struct {
	Reflectance   float64 `json:"reflectance"`
	Transmittance float64 `json:"transmittance"`
	Absorption    float64 `json:"absorption"`
}

// roundingSlack is how far outside [0,1] a fraction may land from
// floating-point error alone.
const roundingSlack = 1e-12

// newResponse assigns the remainder 1−r−t to absorption. Rounding noise is
// trimmed; anything larger is kept so that Diagnose reports it.
func newResponse(r, t float64) BSDFResponse {
	r, t = trim(r), trim(t)
	return BSDFResponse{Reflectance: r, Transmittance: t, Absorption: math.Max(0, 1-r-t)}
}

func trim(v float64) float64 {
	switch {
	case v < 0 && v >= -roundingSlack:
		return 0
	case v > 1 && v <= 1+roundingSlack:
		return 1
	}
	return v
}

// Sum is R+T+A.
func (r BSDFResponse) Sum() float64 {
	return r.Reflectance + r.Transmittance + r.Absorption
}

// Deviation is |R+T+A − 1|, or the size of the most negative fraction when
// that is larger.
func (r BSDFResponse) Deviation() float64 {
	d := math.Abs(r.Sum() - 1)
	for _, v := range r.Array() {
		if v < 0 {
			d = math.Max(d, -v)
		}
	}
	return d
}

// Conserves reports whether the response is within eps of conserving energy.
func (r BSDFResponse) Conserves(eps float64) bool {
	return r.Deviation() <= eps
}

// Array is the flat [R, T, A] form.
func (r BSDFResponse) Array() [3]float64 {
	return [3]float64{r.Reflectance, r.Transmittance, r.Absorption}
}

func (r BSDFResponse) finite() error {
	return opterr.Finite("bsdf", r.Reflectance, r.Transmittance, r.Absorption)
}

// renormalize rescales when the sum drifted by more than eps.
func (r BSDFResponse) renormalize(eps float64) BSDFResponse {
	s := r.Sum()
	if math.Abs(s-1) <= eps || s <= 0 {
		return r
	}
	return BSDFResponse{r.Reflectance / s, r.Transmittance / s, r.Absorption / s}
}

// Diagnostic records whether a response conserved energy.
type Diagnostic struct {
	Deviation float64 `json:"deviation"`
	Epsilon   float64 `json:"epsilon"`
	Conserved bool    `json:"energy_conserved"`
}

// Diagnose checks the response against eps.
func (r BSDFResponse) Diagnose(eps float64) Diagnostic {
	d := r.Deviation()
	return Diagnostic{Deviation: d, Epsilon: eps, Conserved: !math.IsNaN(d) && d <= eps}
}

// Err turns a failed diagnostic into an ErrEnergyConservation error.
func (d Diagnostic) Err() error {
	if d.Conserved {
		return nil
	}
	return fmt.Errorf("R+T+A deviates from 1 by %g (epsilon %g): %w", d.Deviation, d.Epsilon, opterr.ErrEnergyConservation)
}
