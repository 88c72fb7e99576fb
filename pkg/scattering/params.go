package scattering

import (
	"math"

	"github.com/kacperjurak/gooptcore/pkg/cior"
	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// RayleighLimit is the size parameter below which the Rayleigh limit is
// used instead of the Mie series.
const RayleighLimit = 0.3

// Regime names the scattering model chosen for a particle.
type Regime int

const (
	RegimeRayleigh Regime = iota
	RegimeMie
)

func (r Regime) String() string {
	if r == RegimeRayleigh {
		return "rayleigh"
	}
	return "mie"
}

// Params describe a spherical particle in a host medium at one wavelength.
type Params struct {
	RadiusUM     float64         `json:"radius_um"`
	WavelengthNM float64         `json:"wavelength_nm"`
	Particle     cior.ComplexIOR `json:"particle"`
	MediumIOR    float64         `json:"medium_ior"`
}

// NewParams validates the particle description. A zero medium index means
// air.
func NewParams(radiusUM, wavelengthNM float64, particle cior.ComplexIOR, mediumIOR float64) (Params, error) {
	if mediumIOR == 0 {
		mediumIOR = 1
	}
	p := Params{RadiusUM: radiusUM, WavelengthNM: wavelengthNM, Particle: particle, MediumIOR: mediumIOR}
	return p, p.Validate()
}

func (p Params) Validate() error {
	if err := opterr.Positive("radius_um", p.RadiusUM); err != nil {
		return err
	}
	if err := opterr.Positive("wavelength_nm", p.WavelengthNM); err != nil {
		return err
	}
	if err := opterr.Positive("medium_ior", p.MediumIOR); err != nil {
		return err
	}
	if err := opterr.Positive("particle n", p.Particle.N); err != nil {
		return err
	}
	return opterr.NonNegative("particle k", p.Particle.K)
}

// At returns the same particle at another wavelength.
func (p Params) At(wavelengthNM float64) Params {
	p.WavelengthNM = wavelengthNM
	return p
}

// SizeParameter is x = 2π·r·n_medium/λ, with λ the vacuum wavelength.
func (p Params) SizeParameter() float64 {
	return 2 * math.Pi * p.RadiusUM * 1000 * p.MediumIOR / p.WavelengthNM
}

// RelativeIOR is the particle index divided by the medium index.
func (p Params) RelativeIOR() complex128 {
	return p.Particle.Complex() / complex(p.MediumIOR, 0)
}

func (p Params) Regime() Regime {
	if p.SizeParameter() < RayleighLimit {
		return RegimeRayleigh
	}
	return RegimeMie
}

// Efficiencies routes to the Rayleigh limit for small particles and to src
// otherwise. A nil src evaluates the exact series.
func (p Params) Efficiencies(src MieSource) (Efficiencies, error) {
	if err := p.Validate(); err != nil {
		return Efficiencies{}, err
	}
	x, m := p.SizeParameter(), p.RelativeIOR()
	if p.Regime() == RegimeRayleigh {
		return Rayleigh(x, m), nil
	}
	if src == nil {
		src = ExactMie{}
	}
	return src.Efficiencies(x, m)
}

// CrossSectionUM2 converts an efficiency to a cross section in µm².
func (p Params) CrossSectionUM2(q float64) float64 {
	return q * math.Pi * p.RadiusUM * p.RadiusUM
}

// Phase returns the phase function matching the regime: Rayleigh for small
// particles and a Henyey-Greenstein lobe with the Mie asymmetry otherwise.
func (p Params) Phase(e Efficiencies) PhaseFunction {
	if p.Regime() == RegimeRayleigh {
		return RayleighPhase
	}
	g := math.Max(-0.999, math.Min(0.999, e.G))
	return func(c float64) float64 { return HenyeyGreenstein(c, g) }
}
