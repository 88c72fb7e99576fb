package cior

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// hc in eV·nm, for photon energy E = hc/λ.
const hcEVNM = 1239.84193

// DrudeParams describe the free-electron permittivity
// ε(ω) = ε∞ − ωp²/(ω² + iγω) with energies in eV, plus a linear temperature
// model: damping grows as γ0(1 + β(T−T0)) and the plasma frequency falls with
// volume expansion as ωp0/√(1 + 3α(T−T0)).
type DrudeParams struct {
	EpsInf        float64 `json:"eps_inf"`
	PlasmaEV      float64 `json:"plasma_ev"`
	DampingEV     float64 `json:"damping_ev"`
	RefTempK      float64 `json:"ref_temp_k"`
	DampingPerK   float64 `json:"damping_per_k"`
	ExpansionPerK float64 `json:"expansion_per_k"`
}

func (d DrudeParams) Validate() error {
	if err := opterr.Positive("eps_inf", d.EpsInf); err != nil {
		return err
	}
	if err := opterr.Positive("plasma_ev", d.PlasmaEV); err != nil {
		return err
	}
	if err := opterr.NonNegative("damping_ev", d.DampingEV); err != nil {
		return err
	}
	if err := opterr.Positive("ref_temp_k", d.RefTempK); err != nil {
		return err
	}
	return opterr.Finite("drude", d.DampingPerK, d.ExpansionPerK)
}

func (d DrudeParams) scaled(tempK float64) (wp, gamma float64, err error) {
	if err := opterr.Positive("temperature", tempK); err != nil {
		return 0, 0, err
	}
	dt := tempK - d.RefTempK
	vol := 1 + 3*d.ExpansionPerK*dt
	gamma = d.DampingEV * (1 + d.DampingPerK*dt)
	if vol <= 0 || gamma < 0 {
		return 0, 0, fmt.Errorf("temperature %g K leaves the drude model: %w", tempK, opterr.ErrParameterOutOfRange)
	}
	return d.PlasmaEV / math.Sqrt(vol), gamma, nil
}

// Permittivity returns ε at a wavelength and temperature.
func (d DrudeParams) Permittivity(wavelengthNM, tempK float64) (complex128, error) {
	if err := opterr.Positive("wavelength", wavelengthNM); err != nil {
		return 0, err
	}
	wp, gamma, err := d.scaled(tempK)
	if err != nil {
		return 0, err
	}
	w := hcEVNM / wavelengthNM
	return complex(d.EpsInf, 0) - complex(wp*wp, 0)/complex(w*w, gamma*w), nil
}

// IOR returns n + ik = √ε on the branch with k ≥ 0.
func (d DrudeParams) IOR(wavelengthNM, tempK float64) (ComplexIOR, error) {
	eps, err := d.Permittivity(wavelengthNM, tempK)
	if err != nil {
		return ComplexIOR{}, err
	}
	n := cmplx.Sqrt(eps)
	if imag(n) < 0 {
		n = -n
	}
	if err := opterr.Finite("drude ior", real(n), imag(n)); err != nil {
		return ComplexIOR{}, err
	}
	return ComplexIOR{N: math.Abs(real(n)), K: imag(n)}, nil
}

// At samples the model on the RGB triplet.
func (d DrudeParams) At(tempK float64) (SpectralComplexIOR, error) {
	var out SpectralComplexIOR
	for _, ch := range []struct {
		wl  float64
		dst *ComplexIOR
	}{{RedNM, &out.R}, {GreenNM, &out.G}, {BlueNM, &out.B}} {
		c, err := d.IOR(ch.wl, tempK)
		if err != nil {
			return SpectralComplexIOR{}, err
		}
		*ch.dst = c
	}
	return out, nil
}

var drude = map[string]DrudeParams{
	"gold":     {EpsInf: 9.84, PlasmaEV: 9.03, DampingEV: 0.053, RefTempK: 293, DampingPerK: 1.3e-3, ExpansionPerK: 14.2e-6},
	"silver":   {EpsInf: 3.7, PlasmaEV: 9.0, DampingEV: 0.018, RefTempK: 293, DampingPerK: 1.5e-3, ExpansionPerK: 18.9e-6},
	"aluminum": {EpsInf: 1.0, PlasmaEV: 14.98, DampingEV: 0.047, RefTempK: 293, DampingPerK: 1.2e-3, ExpansionPerK: 23.1e-6},
	"copper":   {EpsInf: 8.0, PlasmaEV: 8.76, DampingEV: 0.096, RefTempK: 293, DampingPerK: 1.4e-3, ExpansionPerK: 16.5e-6},
}

// DrudePreset returns temperature-model parameters for a metal.
func DrudePreset(name string) (DrudeParams, bool) {
	d, ok := drude[name]
	return d, ok
}
