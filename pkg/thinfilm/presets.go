package thinfilm

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kacperjurak/gooptcore/pkg/cior"
	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// Coating is a stack on a named substrate.
type Coating struct {
	Stack     Stack           `json:"stack"`
	Substrate cior.ComplexIOR `json:"substrate"`
}

// QuarterWaveAR is the ideal single-layer antireflection film for a
// substrate at wavelength λ: n = √n_s and d = λ/(4n).
func QuarterWaveAR(substrate, wavelengthNM float64) (Film, error) {
	if err := opterr.Between("substrate n", substrate, 1, 10); err != nil {
		return Film{}, err
	}
	if err := opterr.Positive("wavelength", wavelengthNM); err != nil {
		return Film{}, err
	}
	n := math.Sqrt(substrate)
	return Film{N: n, ThicknessNM: wavelengthNM / (4 * n)}, nil
}

// BraggMirror alternates quarter-wave high and low index layers, starting
// with the high one.
func BraggMirror(nHigh, nLow, wavelengthNM float64, pairs int) (Stack, error) {
	if pairs < 1 {
		return Stack{}, fmt.Errorf("bragg mirror needs at least one pair: %w", opterr.ErrParameterOutOfRange)
	}
	if nHigh <= nLow {
		return Stack{}, opterr.OutOfRange("nHigh", nHigh, fmt.Sprintf("> nLow=%g", nLow))
	}
	layers := make([]Layer, 0, 2*pairs)
	for i := 0; i < pairs; i++ {
		layers = append(layers,
			Layer{N: nHigh, ThicknessNM: wavelengthNM / (4 * nHigh)},
			Layer{N: nLow, ThicknessNM: wavelengthNM / (4 * nLow)},
		)
	}
	return NewStack(layers...)
}

func mustBragg(nHigh, nLow, wavelengthNM float64, pairs int) Stack {
	s, err := BraggMirror(nHigh, nLow, wavelengthNM, pairs)
	if err != nil {
		panic(err)
	}
	return s
}

func periodic(a, b Layer, pairs int) Stack {
	layers := make([]Layer, 0, 2*pairs)
	for i := 0; i < pairs; i++ {
		layers = append(layers, a, b)
	}
	return Stack{Layers: layers}
}

var air = cior.ComplexIOR{N: 1}

var coatings = map[string]func() Coating{
	// Free-standing water film.
	"soap-bubble": func() Coating {
		return Coating{Stack: Film{N: 1.33, ThicknessNM: 300}.Stack(), Substrate: air}
	},
	// Oil on water.
	"oil-slick": func() Coating {
		return Coating{Stack: Film{N: 1.47, ThicknessNM: 350}.Stack(), Substrate: cior.ComplexIOR{N: 1.33}}
	},
	// MgF2 on crown glass.
	"ar-coating": func() Coating {
		return Coating{Stack: Film{N: 1.38, ThicknessNM: 550 / (4 * 1.38)}.Stack(), Substrate: cior.ComplexIOR{N: 1.52}}
	},
	// Quarter-quarter V coat on crown glass.
	"broadband-ar": func() Coating {
		return Coating{Stack: Stack{Layers: []Layer{
			{N: 1.38, ThicknessNM: 550 / (4 * 1.38)},
			{N: 1.70, ThicknessNM: 550 / (4 * 1.70)},
		}}, Substrate: cior.ComplexIOR{N: 1.52}}
	},
	// Chitin lamellae in air tuned to blue.
	"morpho": func() Coating {
		return Coating{Stack: periodic(
			Layer{N: 1.56, ThicknessNM: 75},
			Layer{N: 1.0, ThicknessNM: 115},
			6), Substrate: cior.ComplexIOR{N: 1.56}}
	},
	// Chitin multilayer with a melanin-rich back, tuned to green.
	"beetle-shell": func() Coating {
		return Coating{Stack: periodic(
			Layer{N: 1.73, ThicknessNM: 78},
			Layer{N: 1.40, ThicknessNM: 96},
			8), Substrate: cior.ComplexIOR{N: 1.7, K: 0.3}}
	},
	// Aragonite platelets separated by thin organic sheets.
	"nacre": func() Coating {
		return Coating{Stack: periodic(
			Layer{N: 1.68, ThicknessNM: 400},
			Layer{N: 1.34, ThicknessNM: 25},
			10), Substrate: cior.ComplexIOR{N: 1.68}}
	},
	// TiO2/SiO2 dielectric mirror centred at 550 nm.
	"bragg-mirror": func() Coating {
		return Coating{Stack: mustBragg(2.4, 1.46, 550, 8), Substrate: cior.ComplexIOR{N: 1.52}}
	},
}

// Preset returns a named structural-colour coating.
func Preset(name string) (Coating, error) {
	f, ok := coatings[strings.ToLower(name)]
	if !ok {
		return Coating{}, fmt.Errorf("unknown coating %q: %w", name, opterr.ErrParameterOutOfRange)
	}
	return f(), nil
}

// PresetNames lists the known coatings.
func PresetNames() []string {
	names := make([]string, 0, len(coatings))
	for name := range coatings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
