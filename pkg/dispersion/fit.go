package dispersion

import (
	"fmt"

	"github.com/maorshutman/lm"

	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// FitCauchy finds the three-term Cauchy model that best matches measured
// (wavelength nm, index) pairs in the least-squares sense.
func FitCauchy(wavelengthsNM, indices []float64) (c Cauchy, err error) {
	if len(wavelengthsNM) != len(indices) {
		return Cauchy{}, fmt.Errorf("%d wavelengths for %d indices: %w",
			len(wavelengthsNM), len(indices), opterr.ErrParameterOutOfRange)
	}
	if len(wavelengthsNM) < 3 {
		return Cauchy{}, fmt.Errorf("need at least 3 samples, got %d: %w",
			len(wavelengthsNM), opterr.ErrParameterOutOfRange)
	}
	for i := range wavelengthsNM {
		if err := opterr.Positive("wavelength", wavelengthsNM[i]); err != nil {
			return Cauchy{}, err
		}
	}

	fnc := func(dst, x []float64) {
		m := Cauchy{A: x[0], B: x[1], C: x[2]}
		for i, wl := range wavelengthsNM {
			dst[i] = m.IOR(wl) - indices[i]
		}
	}
	jac := lm.NumJac{Func: fnc}

	problem := lm.LMProblem{
		Dim:        3,
		Size:       len(wavelengthsNM),
		Func:       fnc,
		Jac:        jac.Jac,
		InitParams: []float64{indices[len(indices)/2], 0.004, 0},
		Tau:        1e-6,
		Eps1:       1e-12,
		Eps2:       1e-12,
	}

	// A singular normal matrix panics inside the solver.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cauchy fit failed: %v: %w", r, opterr.ErrNumericalInstability)
		}
	}()

	res, err := lm.LM(problem, &lm.Settings{Iterations: 1000, ObjectiveTol: 1e-16})
	if err != nil {
		return Cauchy{}, fmt.Errorf("cauchy fit failed: %v: %w", err, opterr.ErrNumericalInstability)
	}
	if err := opterr.Finite("cauchy fit", res.X...); err != nil {
		return Cauchy{}, err
	}
	return Cauchy{A: res.X[0], B: res.X[1], C: res.X[2]}, nil
}
