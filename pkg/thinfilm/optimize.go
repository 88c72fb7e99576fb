package thinfilm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// OptimizeAR searches for the film thickness that minimises normal-incidence
// reflectance of a film of index nFilm on a substrate at one wavelength. The
// search starts from the quarter-wave thickness.
func OptimizeAR(nFilm, substrate, wavelengthNM float64) (Film, float64, error) {
	start, err := NewFilm(nFilm, wavelengthNM/(4*nFilm))
	if err != nil {
		return Film{}, 0, err
	}
	if err := opterr.Between("substrate n", substrate, 1, 10); err != nil {
		return Film{}, 0, err
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return Film{N: nFilm, ThicknessNM: math.Abs(x[0])}.Reflectance(wavelengthNM, substrate, 1)
		},
	}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{Absolute: 1e-14, Iterations: 50},
	}

	res, err := optimize.Minimize(problem, []float64{start.ThicknessNM}, settings, &optimize.NelderMead{})
	if err != nil {
		return Film{}, 0, fmt.Errorf("while minimising reflectance: %v: %w", err, opterr.ErrNumericalInstability)
	}
	best := Film{N: nFilm, ThicknessNM: math.Abs(res.X[0])}
	return best, res.F, nil
}
