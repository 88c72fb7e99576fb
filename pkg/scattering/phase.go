// Package scattering describes light scattered by particles: phase
// functions, Rayleigh and Mie efficiencies, and the size-parameter routing
// between them.
package scattering

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"

	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// PhaseFunction is a probability density over solid angle as a function of
// the cosine of the scattering angle.
type PhaseFunction func(cosTheta float64) float64

// HenyeyGreenstein is the one-parameter phase function with asymmetry g.
func HenyeyGreenstein(cosTheta, g float64) float64 {
	denom := 1 + g*g - 2*g*cosTheta
	return (1 - g*g) / (4 * math.Pi * denom * math.Sqrt(denom))
}

// DoubleHenyeyGreenstein mixes a forward and a backward lobe with weight w
// on the forward one.
func DoubleHenyeyGreenstein(cosTheta, gForward, gBackward, w float64) float64 {
	return w*HenyeyGreenstein(cosTheta, gForward) + (1-w)*HenyeyGreenstein(cosTheta, gBackward)
}

// RayleighPhase is the phase function of unpolarised light scattered by a
// particle much smaller than the wavelength.
func RayleighPhase(cosTheta float64) float64 {
	return 3 / (16 * math.Pi) * (1 + cosTheta*cosTheta)
}

// HG returns a Henyey-Greenstein phase function after checking |g| < 1.
func HG(g float64) (PhaseFunction, error) {
	if math.IsNaN(g) || g <= -1 || g >= 1 {
		return nil, opterr.OutOfRange("g", g, "in (-1, 1)")
	}
	return func(c float64) float64 { return HenyeyGreenstein(c, g) }, nil
}

// DoubleHG checks its parameters and returns the two-lobe phase function.
func DoubleHG(gForward, gBackward, w float64) (PhaseFunction, error) {
	if _, err := HG(gForward); err != nil {
		return nil, err
	}
	if _, err := HG(gBackward); err != nil {
		return nil, err
	}
	if err := opterr.Between("w", w, 0, 1); err != nil {
		return nil, err
	}
	return func(c float64) float64 { return DoubleHenyeyGreenstein(c, gForward, gBackward, w) }, nil
}

// DoubleHGAsymmetry is the mean cosine g of a double HG mixture.
func DoubleHGAsymmetry(gForward, gBackward, w float64) float64 {
	return w*gForward + (1-w)*gBackward
}

const phaseNodes = 256

// IntegratePhase returns ∫p dΩ over the sphere. A normalised phase function
// integrates to 1.
func IntegratePhase(p PhaseFunction) float64 {
	return 2 * math.Pi * quad.Fixed(func(mu float64) float64 { return p(mu) }, -1, 1, phaseNodes, quad.Legendre{}, 0)
}

// MeanCosine returns ∫p·cosθ dΩ, the asymmetry parameter of p.
func MeanCosine(p PhaseFunction) float64 {
	return 2 * math.Pi * quad.Fixed(func(mu float64) float64 { return mu * p(mu) }, -1, 1, phaseNodes, quad.Legendre{}, 0)
}

// RGB sample wavelengths, in nm.
var rgbWavelengths = [3]float64{650, 550, 450}

// RayleighIntensityRGB is the scattered intensity at the red, green and
// blue wavelengths relative to green, including the λ⁻⁴ dependence.
func RayleighIntensityRGB(cosTheta float64) [3]float64 {
	var out [3]float64
	p := RayleighPhase(cosTheta)
	for i, wl := range rgbWavelengths {
		out[i] = p * math.Pow(550/wl, 4)
	}
	return out
}

// CheckNormalised reports ErrNumericalInstability when p integrates to
// something further than tol from 1.
func CheckNormalised(p PhaseFunction, tol float64) error {
	if s := IntegratePhase(p); math.Abs(s-1) > tol {
		return fmt.Errorf("phase function integrates to %g: %w", s, opterr.ErrNumericalInstability)
	}
	return nil
}
