package gooptcore

import (
	"fmt"
	"math"
	"strings"

	"github.com/kacperjurak/gooptcore/pkg/fresnel"
	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// Valid wavelength range for evaluation, in nm.
const (
	MinWavelengthNM = 380.0
	MaxWavelengthNM = 780.0
)

// Mode selects what a single evaluation samples.
type Mode int

const (
	// ModeSpectral evaluates at the context wavelength.
	ModeSpectral Mode = iota
	// ModeRGB averages the responses at 650, 550 and 450 nm. The context
	// wavelength is still validated but otherwise ignored.
	ModeRGB
)

// ParseMode accepts "spectral" and "rgb". The empty string is spectral.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "spectral":
		return ModeSpectral, nil
	case "rgb":
		return ModeRGB, nil
	}
	return 0, fmt.Errorf("mode %q must be spectral or rgb: %w", s, opterr.ErrParameterOutOfRange)
}

func (m Mode) String() string {
	if m == ModeRGB {
		return "rgb"
	}
	return "spectral"
}

// EvaluationContext describes how a material is lit. Build it with
// NewContext; the With* methods return modified copies.
type EvaluationContext struct {
	CosTheta     float64
	WavelengthNM float64
	Mode         Mode
	Polarization fresnel.Polarization
	// TemperatureK is zero when unset.
	TemperatureK float64
	// AmbientIOR is the index of the incident medium; zero means air.
	AmbientIOR float64
}

// NewContext validates an incidence angle in degrees and a wavelength.
func NewContext(angleDeg, wavelengthNM float64) (EvaluationContext, error) {
	if err := opterr.Between("angle_deg", angleDeg, 0, 90); err != nil {
		return EvaluationContext{}, err
	}
	ctx := EvaluationContext{
		CosTheta:     math.Cos(angleDeg * math.Pi / 180),
		WavelengthNM: wavelengthNM,
	}
	if angleDeg == 90 {
		ctx.CosTheta = 0
	}
	return ctx, ctx.Validate()
}

// Validate checks the context the way NewContext does.
func (c EvaluationContext) Validate() error {
	if err := opterr.Between("cos_theta", c.CosTheta, 0, 1); err != nil {
		return err
	}
	if err := opterr.Between("wavelength_nm", c.WavelengthNM, MinWavelengthNM, MaxWavelengthNM); err != nil {
		return err
	}
	if err := opterr.NonNegative("temperature_k", c.TemperatureK); err != nil {
		return err
	}
	if c.AmbientIOR != 0 {
		if err := opterr.Between("ambient_ior", c.AmbientIOR, 1, 4); err != nil {
			return err
		}
	}
	return nil
}

// AngleDeg is the incidence angle in degrees.
func (c EvaluationContext) AngleDeg() float64 {
	return math.Acos(math.Min(1, math.Max(0, c.CosTheta))) * 180 / math.Pi
}

// Ambient returns the incident medium index, defaulting to 1.
func (c EvaluationContext) Ambient() float64 {
	if c.AmbientIOR == 0 {
		return 1
	}
	return c.AmbientIOR
}

// Samples lists the wavelengths an evaluation in this context looks at.
func (c EvaluationContext) Samples() []float64 {
	if c.Mode == ModeRGB {
		wls := rgbWavelengths
		return wls[:]
	}
	return []float64{c.WavelengthNM}
}

// At returns the context at another wavelength.
func (c EvaluationContext) At(wavelengthNM float64) EvaluationContext {
	c.WavelengthNM = wavelengthNM
	return c
}

func (c EvaluationContext) WithPolarization(p fresnel.Polarization) EvaluationContext {
	c.Polarization = p
	return c
}

func (c EvaluationContext) WithMode(m Mode) EvaluationContext {
	c.Mode = m
	return c
}

// WithTemperature sets a temperature in kelvin for temperature-dependent
// metals.
func (c EvaluationContext) WithTemperature(kelvin float64) (EvaluationContext, error) {
	if err := opterr.Positive("temperature_k", kelvin); err != nil {
		return c, err
	}
	c.TemperatureK = kelvin
	return c, nil
}

// WithAmbient sets the index of the incident medium.
func (c EvaluationContext) WithAmbient(n float64) (EvaluationContext, error) {
	if err := opterr.Between("ambient_ior", n, 1, 4); err != nil {
		return c, err
	}
	c.AmbientIOR = n
	return c, nil
}
