package spectral

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// Box edges of the three reflectance basis functions, in nm.
const (
	blueGreenEdgeNM = 490.0
	greenRedEdgeNM  = 590.0
)

// Upsampler turns a linear sRGB triple into a reflectance spectrum on the
// visible grid. The spectrum is a weighted sum of three box functions whose
// weights are solved so that the spectrum integrates back to the same triple
// under the calibration illuminant.
type Upsampler struct {
	illum Spectrum
	grid  []float64
	basis [3][]float64
	inv   mat.Dense
}

// NewUpsampler calibrates the basis against illum.
func NewUpsampler(illum Spectrum) (*Upsampler, error) {
	u := &Upsampler{illum: illum, grid: VisibleGrid()}
	for c := range u.basis {
		u.basis[c] = make([]float64, len(u.grid))
	}
	for i, wl := range u.grid {
		switch {
		case wl < blueGreenEdgeNM:
			u.basis[2][i] = 1
		case wl < greenRedEdgeNM:
			u.basis[1][i] = 1
		default:
			u.basis[0][i] = 1
		}
	}

	// Column j is the linear sRGB response of basis j.
	m := mat.NewDense(3, 3, nil)
	for j := range u.basis {
		rgb := XYZToLinearSRGB(Integrate(MustSignal(u.grid, u.basis[j]), illum))
		for i := 0; i < 3; i++ {
			m.Set(i, j, rgb[i])
		}
	}
	if err := u.inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("while inverting basis response: %v: %w", err, opterr.ErrNumericalInstability)
	}
	return u, nil
}

// Weights returns the basis weights for a linear sRGB triple, unclamped.
func (u *Upsampler) Weights(linear RGB) [3]float64 {
	var out mat.VecDense
	out.MulVec(&u.inv, mat.NewVecDense(3, []float64{linear[0], linear[1], linear[2]}))
	return [3]float64{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}

// Spectrum returns the reflectance for a linear sRGB triple. Samples are
// clamped to [0,1], so colours outside the basis gamut come back
// desaturated.
func (u *Upsampler) Spectrum(linear RGB) Signal {
	w := u.Weights(linear)
	values := make([]float64, len(u.grid))
	for i := range values {
		v := w[0]*u.basis[0][i] + w[1]*u.basis[1][i] + w[2]*u.basis[2][i]
		values[i] = min(1, max(0, v))
	}
	return MustSignal(u.grid, values)
}

// FromSRGB accepts a gamma-encoded triple.
func (u *Upsampler) FromSRGB(encoded RGB) Signal {
	return u.Spectrum(encoded.Decode())
}
