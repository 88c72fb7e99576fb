package thinfilm

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/kacperjurak/gooptcore/pkg/fresnel"
	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// Phase attenuation is capped so thick absorbing layers do not overflow;
// e^-35 is already far below float64 noise on the result.
const maxPhaseDecay = 35

// Layer is one homogeneous film in a stack, listed from the ambient side.
type Layer struct {
	N           float64 `json:"n"`
	K           float64 `json:"k,omitempty"`
	ThicknessNM float64 `json:"thickness_nm"`
}

func (l Layer) index() complex128 { return complex(l.N, l.K) }

// Stack is a sequence of layers solved with the transfer-matrix method.
type Stack struct {
	Layers []Layer `json:"layers"`
}

// NewStack validates and copies the layers.
func NewStack(layers ...Layer) (Stack, error) {
	s := Stack{Layers: append([]Layer(nil), layers...)}
	return s, s.Validate()
}

func (s Stack) Validate() error {
	if len(s.Layers) == 0 {
		return fmt.Errorf("stack has no layers: %w", opterr.ErrParameterOutOfRange)
	}
	for i, l := range s.Layers {
		if err := opterr.Positive(fmt.Sprintf("layer %d n", i), l.N); err != nil {
			return err
		}
		if err := opterr.NonNegative(fmt.Sprintf("layer %d k", i), l.K); err != nil {
			return err
		}
		if err := opterr.Positive(fmt.Sprintf("layer %d thickness", i), l.ThicknessNM); err != nil {
			return err
		}
	}
	return nil
}

// Film reports whether the stack is a single lossless layer, and returns it.
func (s Stack) Film() (Film, bool) {
	if len(s.Layers) != 1 || s.Layers[0].K != 0 {
		return Film{}, false
	}
	return Film{N: s.Layers[0].N, ThicknessNM: s.Layers[0].ThicknessNM}, true
}

// TotalThicknessNM sums the layer thicknesses.
func (s Stack) TotalThicknessNM() float64 {
	var d float64
	for _, l := range s.Layers {
		d += l.ThicknessNM
	}
	return d
}

type mat2 [2][2]complex128

func (a mat2) mul(b mat2) mat2 {
	return mat2{
		{a[0][0]*b[0][0] + a[0][1]*b[1][0], a[0][0]*b[0][1] + a[0][1]*b[1][1]},
		{a[1][0]*b[0][0] + a[1][1]*b[1][0], a[1][0]*b[0][1] + a[1][1]*b[1][1]},
	}
}

// interfaceMatrix is [[1, r], [r, 1]]/t.
func interfaceMatrix(r, t complex128) mat2 {
	return mat2{{1 / t, r / t}, {r / t, 1 / t}}
}

// Amplitudes returns the stack reflection and transmission amplitudes for
// one polarisation.
func (s Stack) Amplitudes(wavelengthNM, n0 float64, substrate complex128, cos0 float64, pol fresnel.Polarization) (r, t complex128) {
	sin0 := math.Sqrt(math.Max(0, 1-cos0*cos0))
	kx := n0 * sin0

	n := make([]complex128, 0, len(s.Layers)+2)
	n = append(n, complex(n0, 0))
	for _, l := range s.Layers {
		n = append(n, l.index())
	}
	n = append(n, substrate)

	q := make([]complex128, len(n))
	q[0] = complex(n0*cos0, 0)
	for i := 1; i < len(n); i++ {
		q[i] = fresnel.NormalComponent(n[i], kx)
	}

	amp := func(i int) (complex128, complex128) {
		rs, rp, ts, tp := fresnel.Amplitudes(n[i], n[i+1], q[i], q[i+1])
		if pol == fresnel.P {
			return rp, tp
		}
		return rs, ts
	}

	r01, t01 := amp(0)
	m := interfaceMatrix(r01, t01)
	for i := 1; i <= len(s.Layers); i++ {
		delta := 2 * math.Pi * q[i] * complex(s.Layers[i-1].ThicknessNM/wavelengthNM, 0)
		if imag(delta) > maxPhaseDecay {
			delta = complex(real(delta), maxPhaseDecay)
		}
		prop := mat2{{cmplx.Exp(-1i * delta), 0}, {0, cmplx.Exp(1i * delta)}}
		ri, ti := amp(i)
		m = m.mul(prop).mul(interfaceMatrix(ri, ti))
	}
	return m[1][0] / m[0][0], 1 / m[0][0]
}

// Response implements Structure.
func (s Stack) Response(wavelengthNM, n0 float64, substrate complex128, cos0 float64, pol fresnel.Polarization) (float64, float64) {
	if cos0 <= 0 {
		return 1, 0
	}
	cos0 = math.Min(1, cos0)
	if pol == fresnel.Unpolarized {
		rs, ts := s.Response(wavelengthNM, n0, substrate, cos0, fresnel.S)
		rp, tp := s.Response(wavelengthNM, n0, substrate, cos0, fresnel.P)
		return 0.5 * (rs + rp), 0.5 * (ts + tp)
	}
	r, t := s.Amplitudes(wavelengthNM, n0, substrate, cos0, pol)
	return powers(pol, r, t, n0, substrate, cos0)
}

// Reflectance is the unpolarised reflectance in air on a real substrate.
func (s Stack) Reflectance(wavelengthNM, substrate, cos0 float64) float64 {
	r, _ := s.Response(wavelengthNM, 1, complex(substrate, 0), cos0, fresnel.Unpolarized)
	return r
}
