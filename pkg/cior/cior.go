// Package cior models complex refractive indices n + ik for absorbing media.
package cior

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// Sample wavelengths of the RGB triplet, in nm.
const (
	RedNM   = 656.0
	GreenNM = 588.0
	BlueNM  = 486.0
)

// ComplexIOR is n + ik. K > 0 marks an absorbing medium.
type ComplexIOR struct {
	N float64 `json:"n"`
	K float64 `json:"k"`
}

// NewComplexIOR rejects negative or non-finite components.
func NewComplexIOR(n, k float64) (ComplexIOR, error) {
	if err := opterr.NonNegative("n", n); err != nil {
		return ComplexIOR{}, err
	}
	if err := opterr.NonNegative("k", k); err != nil {
		return ComplexIOR{}, err
	}
	return ComplexIOR{N: n, K: k}, nil
}

func (c ComplexIOR) Complex() complex128 { return complex(c.N, c.K) }

func (c ComplexIOR) IsConductor() bool { return c.K > 0 }

// F0 is the normal-incidence reflectance from vacuum.
func (c ComplexIOR) F0() float64 {
	k2 := c.K * c.K
	return ((c.N-1)*(c.N-1) + k2) / ((c.N+1)*(c.N+1) + k2)
}

func (c ComplexIOR) String() string {
	return fmt.Sprintf("%.4g%+.4gi", c.N, c.K)
}

// SpectralComplexIOR samples a complex index at the red, green and blue
// wavelengths.
type SpectralComplexIOR struct {
	R ComplexIOR `json:"r"`
	G ComplexIOR `json:"g"`
	B ComplexIOR `json:"b"`
}

// Validate checks every channel.
func (s SpectralComplexIOR) Validate() error {
	for _, c := range []ComplexIOR{s.R, s.G, s.B} {
		if _, err := NewComplexIOR(c.N, c.K); err != nil {
			return err
		}
	}
	return nil
}

// F0RGB returns the per-channel normal-incidence reflectance.
func (s SpectralComplexIOR) F0RGB() [3]float64 {
	return [3]float64{s.R.F0(), s.G.F0(), s.B.F0()}
}

// At interpolates linearly between the three sample wavelengths and holds
// the end values outside them.
func (s SpectralComplexIOR) At(wavelengthNM float64) ComplexIOR {
	lerp := func(a, b ComplexIOR, t float64) ComplexIOR {
		return ComplexIOR{N: a.N + (b.N-a.N)*t, K: a.K + (b.K-a.K)*t}
	}
	switch {
	case wavelengthNM <= BlueNM:
		return s.B
	case wavelengthNM <= GreenNM:
		return lerp(s.B, s.G, (wavelengthNM-BlueNM)/(GreenNM-BlueNM))
	case wavelengthNM <= RedNM:
		return lerp(s.G, s.R, (wavelengthNM-GreenNM)/(RedNM-GreenNM))
	}
	return s.R
}

// Uniform is a non-dispersive triplet.
func Uniform(c ComplexIOR) SpectralComplexIOR {
	return SpectralComplexIOR{R: c, G: c, B: c}
}

// Flatten packs indices as [n0, k0, n1, k1, ...].
func Flatten(iors []ComplexIOR) []float64 {
	out := make([]float64, 0, 2*len(iors))
	for _, c := range iors {
		out = append(out, c.N, c.K)
	}
	return out
}

// Unflatten is the inverse of Flatten.
func Unflatten(flat []float64) ([]ComplexIOR, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("flat complex IOR array has odd length %d: %w", len(flat), opterr.ErrParameterOutOfRange)
	}
	out := make([]ComplexIOR, len(flat)/2)
	for i := range out {
		c, err := NewComplexIOR(flat[2*i], flat[2*i+1])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

var metals = map[string]SpectralComplexIOR{
	"gold": {
		R: ComplexIOR{0.13, 3.4239},
		G: ComplexIOR{0.27, 2.8645},
		B: ComplexIOR{1.20, 1.8536},
	},
	"silver": {
		R: ComplexIOR{0.14, 4.15},
		G: ComplexIOR{0.12, 3.60},
		B: ComplexIOR{0.13, 2.92},
	},
	"copper": {
		R: ComplexIOR{0.21, 4.2},
		G: ComplexIOR{0.47, 2.81},
		B: ComplexIOR{1.13, 2.56},
	},
	"aluminum": {
		R: ComplexIOR{1.83, 8.31},
		G: ComplexIOR{1.20, 7.26},
		B: ComplexIOR{0.64, 5.90},
	},
	"iron": {
		R: ComplexIOR{2.87, 3.36},
		G: ComplexIOR{2.91, 3.08},
		B: ComplexIOR{2.55, 2.89},
	},
	"platinum": {
		R: ComplexIOR{2.38, 4.26},
		G: ComplexIOR{2.09, 3.70},
		B: ComplexIOR{1.83, 3.20},
	},
	"titanium": {
		R: ComplexIOR{2.74, 3.79},
		G: ComplexIOR{2.54, 3.43},
		B: ComplexIOR{2.27, 2.98},
	},
	"chromium": {
		R: ComplexIOR{3.18, 3.32},
		G: ComplexIOR{3.14, 3.31},
		B: ComplexIOR{2.39, 3.17},
	},
	"nickel": {
		R: ComplexIOR{2.01, 3.84},
		G: ComplexIOR{1.88, 3.56},
		B: ComplexIOR{1.71, 3.07},
	},
}

// Preset returns the named metal.
func Preset(name string) (SpectralComplexIOR, error) {
	m, ok := metals[strings.ToLower(name)]
	if !ok {
		return SpectralComplexIOR{}, fmt.Errorf("unknown metal %q: %w", name, opterr.ErrParameterOutOfRange)
	}
	return m, nil
}

// PresetNames lists the known metals.
func PresetNames() []string {
	names := make([]string, 0, len(metals))
	for name := range metals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Gold() SpectralComplexIOR     { return metals["gold"] }
func Silver() SpectralComplexIOR   { return metals["silver"] }
func Copper() SpectralComplexIOR   { return metals["copper"] }
func Aluminum() SpectralComplexIOR { return metals["aluminum"] }
