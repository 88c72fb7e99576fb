// Package thinfilm computes interference in thin dielectric films and
// multilayer stacks.
//
// Every structure sits between a real ambient medium n0 and a (possibly
// absorbing) semi-infinite substrate. Reflectance and transmittance are
// power fractions; whatever is left over is absorbed inside the layers.
package thinfilm

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/kacperjurak/gooptcore/pkg/fresnel"
	"github.com/kacperjurak/gooptcore/pkg/opterr"
	"github.com/kacperjurak/gooptcore/pkg/spectral"
)

// RGB sample wavelengths, in nm.
var rgbWavelengths = [3]float64{650, 550, 450}

// MinSpectrumSamples is the fewest wavelengths Spectrum accepts.
const MinSpectrumSamples = 8

// Structure is anything that reflects and transmits like a coating.
type Structure interface {
	Response(wavelengthNM, n0 float64, substrate complex128, cos0 float64, pol fresnel.Polarization) (r, t float64)
}

// Film is a single homogeneous non-absorbing layer.
type Film struct {
	N           float64 `json:"n"`
	ThicknessNM float64 `json:"thickness_nm"`
}

// NewFilm checks n >= 1 and a positive thickness.
func NewFilm(n, thicknessNM float64) (Film, error) {
	if err := opterr.Between("film n", n, 1, 10); err != nil {
		return Film{}, err
	}
	if err := opterr.Positive("film thickness", thicknessNM); err != nil {
		return Film{}, err
	}
	return Film{N: n, ThicknessNM: thicknessNM}, nil
}

// Stack turns the film into a one-layer stack.
func (f Film) Stack() Stack {
	return Stack{Layers: []Layer{{N: f.N, ThicknessNM: f.ThicknessNM}}}
}

// OpticalPathDifference is the extra path 2·n·d·cosθ of the wave reflected
// from the lower interface.
func (f Film) OpticalPathDifference(n0, cos0 float64) float64 {
	sin0 := math.Sqrt(math.Max(0, 1-cos0*cos0))
	sinF := n0 * sin0 / f.N
	cosF := math.Sqrt(math.Max(0, 1-sinF*sinF))
	return 2 * f.N * f.ThicknessNM * cosF
}

// Amplitudes returns the Airy reflection and transmission amplitudes for one
// polarisation.
func (f Film) Amplitudes(wavelengthNM, n0 float64, substrate complex128, cos0 float64, pol fresnel.Polarization) (r, t complex128) {
	sin0 := math.Sqrt(math.Max(0, 1-cos0*cos0))
	kx := n0 * sin0
	na, nf := complex(n0, 0), complex(f.N, 0)
	q0 := complex(n0*cos0, 0)
	q1 := fresnel.NormalComponent(nf, kx)
	q2 := fresnel.NormalComponent(substrate, kx)

	rs01, rp01, ts01, tp01 := fresnel.Amplitudes(na, nf, q0, q1)
	rs12, rp12, ts12, tp12 := fresnel.Amplitudes(nf, substrate, q1, q2)
	r01, r12, t01, t12 := rs01, rs12, ts01, ts12
	if pol == fresnel.P {
		r01, r12, t01, t12 = rp01, rp12, tp01, tp12
	}

	// Single-pass phase; the round trip 2β equals 2π·OPD/λ.
	beta := 2 * math.Pi * q1 * complex(f.ThicknessNM/wavelengthNM, 0)
	e1 := cmplx.Exp(1i * beta)
	e2 := e1 * e1
	den := 1 + r01*r12*e2
	return (r01 + r12*e2) / den, t01 * t12 * e1 / den
}

// Response implements Structure.
func (f Film) Response(wavelengthNM, n0 float64, substrate complex128, cos0 float64, pol fresnel.Polarization) (float64, float64) {
	if cos0 <= 0 {
		return 1, 0
	}
	cos0 = math.Min(1, cos0)
	if pol == fresnel.Unpolarized {
		rs, ts := f.Response(wavelengthNM, n0, substrate, cos0, fresnel.S)
		rp, tp := f.Response(wavelengthNM, n0, substrate, cos0, fresnel.P)
		return 0.5 * (rs + rp), 0.5 * (ts + tp)
	}
	r, t := f.Amplitudes(wavelengthNM, n0, substrate, cos0, pol)
	return powers(pol, r, t, n0, substrate, cos0)
}

// Reflectance is the unpolarised reflectance of the film in air on a real
// substrate.
func (f Film) Reflectance(wavelengthNM, substrate, cos0 float64) float64 {
	r, _ := f.Response(wavelengthNM, 1, complex(substrate, 0), cos0, fresnel.Unpolarized)
	return r
}

// ReflectanceRGB samples Reflectance at 650, 550 and 450 nm.
func (f Film) ReflectanceRGB(substrate, cos0 float64) [3]float64 {
	return RGB(f, 1, complex(substrate, 0), cos0)
}

// RGB evaluates any structure at the three sample wavelengths.
func RGB(s Structure, n0 float64, substrate complex128, cos0 float64) [3]float64 {
	var out [3]float64
	for i, wl := range rgbWavelengths {
		out[i], _ = s.Response(wl, n0, substrate, cos0, fresnel.Unpolarized)
	}
	return out
}

// Spectrum samples the unpolarised reflectance at n wavelengths across
// 380-700 nm.
func Spectrum(s Structure, n0 float64, substrate complex128, cos0 float64, n int) (spectral.Signal, error) {
	if n < MinSpectrumSamples {
		return spectral.Signal{}, fmt.Errorf("spectrum needs at least %d samples, got %d: %w",
			MinSpectrumSamples, n, opterr.ErrParameterOutOfRange)
	}
	grid := spectral.Grid(spectral.VisibleMinNM, spectral.VisibleMaxNM, n)
	values := make([]float64, n)
	for i, wl := range grid {
		values[i], _ = s.Response(wl, n0, substrate, cos0, fresnel.Unpolarized)
	}
	return spectral.NewSignal(grid, values)
}

func abs2(z complex128) float64 { return real(z)*real(z) + imag(z)*imag(z) }

// powers converts exit amplitudes into clamped power fractions.
func powers(pol fresnel.Polarization, r, t complex128, n0 float64, substrate complex128, cos0 float64) (float64, float64) {
	sin0 := math.Sqrt(1 - cos0*cos0)
	q2 := fresnel.NormalComponent(substrate, n0*sin0)
	tr := powerTransmittance(pol, t, complex(n0, 0), substrate, complex(n0*cos0, 0), q2)
	return math.Min(1, abs2(r)), math.Max(0, tr)
}

// powerTransmittance converts a transmission amplitude into a power fraction
// between a real incident medium and the exit medium.
func powerTransmittance(pol fresnel.Polarization, t, ni, nf, qi, qf complex128) float64 {
	if pol == fresnel.P {
		// n·conj(cosθ) with cosθ = q/n
		num := real(nf * cmplx.Conj(qf/nf))
		den := real(ni * cmplx.Conj(qi/ni))
		return abs2(t) * num / den
	}
	return abs2(t) * real(qf) / real(qi)
}
