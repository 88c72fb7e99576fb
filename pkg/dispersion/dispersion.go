// Package dispersion models the wavelength dependence of a real refractive
// index. Wavelengths are in nanometres at the API and converted to
// micrometres for the empirical formulas.
package dispersion

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// Fraunhofer lines used by the Abbe number, in nm.
const (
	LineF = 486.1
	LineD = 587.6
	LineC = 656.3
)

// Model gives the refractive index at a wavelength in nm.
type Model interface {
	IOR(wavelengthNM float64) float64
}

// Constant is a non-dispersive index.
type Constant float64

func (c Constant) IOR(float64) float64 { return float64(c) }

// Cauchy is n(λ) = A + B/λ² + C/λ⁴ with λ in µm.
type Cauchy struct {
	A, B, C float64
}

func (c Cauchy) IOR(wavelengthNM float64) float64 {
	l2 := wavelengthNM * wavelengthNM * 1e-6
	return c.A + c.B/l2 + c.C/(l2*l2)
}

// NewCauchy validates that the index is at least 1 across the visible range.
func NewCauchy(a, b, c float64) (Cauchy, error) {
	m := Cauchy{A: a, B: b, C: c}
	if err := opterr.Finite("cauchy", a, b, c); err != nil {
		return Cauchy{}, err
	}
	for _, wl := range []float64{380, 780} {
		if n := m.IOR(wl); n < 1 {
			return Cauchy{}, opterr.OutOfRange(fmt.Sprintf("cauchy n(%g nm)", wl), n, ">= 1")
		}
	}
	return m, nil
}

// Sellmeier is n²(λ) = 1 + Σ Bᵢλ²/(λ² − Cᵢ) with λ in µm and Cᵢ in µm².
type Sellmeier struct {
	B [3]float64
	C [3]float64
}

func (s Sellmeier) IOR(wavelengthNM float64) float64 {
	l2 := wavelengthNM * wavelengthNM * 1e-6
	n2 := 1.0
	for i := range s.B {
		n2 += s.B[i] * l2 / (l2 - s.C[i])
	}
	if n2 < 1 {
		return 1
	}
	return math.Sqrt(n2)
}

// NewSellmeier rejects negative coefficients and poles inside the visible
// range.
func NewSellmeier(b, c [3]float64) (Sellmeier, error) {
	for i := range b {
		if err := opterr.NonNegative(fmt.Sprintf("sellmeier B%d", i+1), b[i]); err != nil {
			return Sellmeier{}, err
		}
		if err := opterr.NonNegative(fmt.Sprintf("sellmeier C%d", i+1), c[i]); err != nil {
			return Sellmeier{}, err
		}
		if pole := math.Sqrt(c[i]) * 1000; pole >= 380 && pole <= 780 {
			return Sellmeier{}, opterr.OutOfRange(fmt.Sprintf("sellmeier pole %d", i+1), pole, "outside 380-780 nm")
		}
	}
	return Sellmeier{B: b, C: c}, nil
}

// AbbeNumber is V = (n_d − 1)/(n_F − n_C).
func AbbeNumber(m Model) float64 {
	return (m.IOR(LineD) - 1) / (m.IOR(LineF) - m.IOR(LineC))
}

// CauchyFromAbbe builds the two-term Cauchy model with refractive index nd
// at the d line and Abbe number v.
func CauchyFromAbbe(nd, v float64) (Cauchy, error) {
	if err := opterr.Between("nd", nd, 1, 4); err != nil {
		return Cauchy{}, err
	}
	if err := opterr.Positive("abbe", v); err != nil {
		return Cauchy{}, err
	}
	inv := func(nm float64) float64 { return 1 / (nm * nm * 1e-6) }
	b := (nd - 1) / (v * (inv(LineF) - inv(LineC)))
	return Cauchy{A: nd - b*inv(LineD), B: b}, nil
}

// CheckConsistency verifies normal dispersion: n_F > n_d > n_C, a finite
// positive Abbe number and a monotone decrease across 380-780 nm.
func CheckConsistency(m Model) error {
	nF, nd, nC := m.IOR(LineF), m.IOR(LineD), m.IOR(LineC)
	if err := opterr.Finite("dispersion", nF, nd, nC); err != nil {
		return err
	}
	if !(nF > nd && nd > nC) {
		return fmt.Errorf("n_F=%g n_d=%g n_C=%g not strictly decreasing: %w", nF, nd, nC, opterr.ErrParameterOutOfRange)
	}
	v := AbbeNumber(m)
	if err := opterr.Positive("abbe", v); err != nil {
		return err
	}
	prev := math.Inf(1)
	for wl := 380.0; wl <= 780; wl += 5 {
		n := m.IOR(wl)
		if n > prev {
			return fmt.Errorf("index rises at %g nm: %w", wl, opterr.ErrParameterOutOfRange)
		}
		prev = n
	}
	return nil
}

var presets = map[string]func() Model{
	"crown-glass":        func() Model { return CrownGlass() },
	"crown-glass-cauchy": func() Model { return CrownGlassCauchy() },
	"flint-glass":        func() Model { return FlintGlass() },
	"dense-flint":        func() Model { return DenseFlint() },
	"fused-silica":       func() Model { return FusedSilica() },
	"sapphire":           func() Model { return Sapphire() },
	"diamond":            func() Model { return Diamond() },
	"water":              func() Model { return Water() },
}

// CrownGlass is Schott N-BK7.
func CrownGlass() Sellmeier {
	return Sellmeier{
		B: [3]float64{1.03961212, 0.231792344, 1.01046945},
		C: [3]float64{0.00600069867, 0.0200179144, 103.560653},
	}
}

// CrownGlassCauchy is a two-term fit of a typical crown glass.
func CrownGlassCauchy() Cauchy {
	return Cauchy{A: 1.5046, B: 0.00420}
}

// FlintGlass is Schott SF11.
func FlintGlass() Sellmeier {
	return Sellmeier{
		B: [3]float64{1.73759695, 0.313747346, 1.89878101},
		C: [3]float64{0.013188707, 0.0623068142, 155.23629},
	}
}

// DenseFlint is Schott F2.
func DenseFlint() Sellmeier {
	return Sellmeier{
		B: [3]float64{1.34533359, 0.209073176, 0.937357162},
		C: [3]float64{0.00997743871, 0.0470450767, 111.886764},
	}
}

func FusedSilica() Sellmeier {
	return Sellmeier{
		B: [3]float64{0.6961663, 0.4079426, 0.8974794},
		C: [3]float64{0.004679148, 0.01351206, 97.934},
	}
}

// Sapphire uses the ordinary ray.
func Sapphire() Sellmeier {
	return Sellmeier{
		B: [3]float64{1.4313493, 0.65054713, 5.3414021},
		C: [3]float64{0.00527993, 0.0142383, 325.0178},
	}
}

func Diamond() Sellmeier {
	return Sellmeier{
		B: [3]float64{0.3306, 4.3356, 0},
		C: [3]float64{0.030625, 0.011236, 0},
	}
}

func Water() Cauchy {
	return Cauchy{A: 1.3239, B: 0.00313}
}

// Preset looks a named model up.
func Preset(name string) (Model, error) {
	f, ok := presets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown dispersion preset %q: %w", name, opterr.ErrParameterOutOfRange)
	}
	return f(), nil
}

// PresetNames lists the known presets in order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
