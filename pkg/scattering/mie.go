package scattering

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

// Efficiencies are the dimensionless cross sections of a sphere (cross
// section over πr²) and its asymmetry parameter.
type Efficiencies struct {
	Ext  float64 `json:"q_ext"`
	Sca  float64 `json:"q_sca"`
	Abs  float64 `json:"q_abs"`
	Back float64 `json:"q_back"`
	G    float64 `json:"g"`
}

// Albedo is the single-scattering albedo Qsca/Qext.
func (e Efficiencies) Albedo() float64 {
	if e.Ext == 0 {
		return 0
	}
	return e.Sca / e.Ext
}

// MieSource supplies sphere efficiencies for a size parameter x and a
// relative refractive index m.
type MieSource interface {
	Efficiencies(x float64, m complex128) (Efficiencies, error)
}

// ExactMie evaluates the full series every time.
type ExactMie struct{}

func (ExactMie) Efficiencies(x float64, m complex128) (Efficiencies, error) {
	return Mie(x, m)
}

// polarizability is (m²−1)/(m²+2).
func polarizability(m complex128) complex128 {
	m2 := m * m
	return (m2 - 1) / (m2 + 2)
}

// Rayleigh gives the small-particle limit of the efficiencies.
func Rayleigh(x float64, m complex128) Efficiencies {
	k := polarizability(m)
	k2 := real(k)*real(k) + imag(k)*imag(k)
	x4 := x * x * x * x
	sca := 8.0 / 3.0 * x4 * k2
	abs := 4 * x * imag(k)
	return Efficiencies{
		Ext:  sca + abs,
		Sca:  sca,
		Abs:  abs,
		Back: 4 * x4 * k2,
		G:    0,
	}
}

// maxMieTerms bounds the series for very large spheres.
const maxMieTerms = 20000

// Mie evaluates the Lorenz-Mie series for a homogeneous sphere.
func Mie(x float64, m complex128) (Efficiencies, error) {
	if err := opterr.Positive("size parameter", x); err != nil {
		return Efficiencies{}, err
	}
	if real(m) <= 0 || imag(m) < 0 {
		return Efficiencies{}, fmt.Errorf("relative index %v must have n > 0 and k >= 0: %w", m, opterr.ErrParameterOutOfRange)
	}

	nstop := int(x + 4*math.Cbrt(x) + 2)
	if nstop > maxMieTerms {
		return Efficiencies{}, opterr.OutOfRange("size parameter", x, fmt.Sprintf("small enough for %d terms", maxMieTerms))
	}
	y := m * complex(x, 0)
	nmx := int(math.Max(float64(nstop), cmplx.Abs(y))) + 15

	// Logarithmic derivative by downward recurrence.
	d := make([]complex128, nmx+1)
	for n := nmx; n > 1; n-- {
		fn := complex(float64(n), 0)
		d[n-1] = fn/y - 1/(d[n]+fn/y)
	}

	psi0, psi1 := math.Cos(x), math.Sin(x)
	chi0, chi1 := -math.Sin(x), math.Cos(x)
	xi1 := complex(psi1, -chi1)

	var (
		qsca, qext, gsum float64
		back             complex128
		an1, bn1         complex128
	)
	for n := 1; n <= nstop; n++ {
		fn := float64(n)
		psi := (2*fn-1)*psi1/x - psi0
		chi := (2*fn-1)*chi1/x - chi0
		xi := complex(psi, -chi)

		da := d[n]/m + complex(fn/x, 0)
		db := m*d[n] + complex(fn/x, 0)
		an := (da*complex(psi, 0) - complex(psi1, 0)) / (da*xi - xi1)
		bn := (db*complex(psi, 0) - complex(psi1, 0)) / (db*xi - xi1)

		w := 2*fn + 1
		qsca += w * (abs2(an) + abs2(bn))
		qext += w * real(an+bn)
		gsum += w / (fn * (fn + 1)) * real(an*cmplx.Conj(bn))
		if n > 1 {
			gsum += (fn - 1) * (fn + 1) / fn * real(an1*cmplx.Conj(an)+bn1*cmplx.Conj(bn))
		}
		sign := 1.0
		if n%2 == 1 {
			sign = -1
		}
		back += complex(w*sign, 0) * (an - bn)

		an1, bn1 = an, bn
		psi0, psi1 = psi1, psi
		chi0, chi1 = chi1, chi
		xi1 = complex(psi1, -chi1)
	}

	x2 := x * x
	e := Efficiencies{
		Sca:  2 / x2 * qsca,
		Ext:  2 / x2 * qext,
		Back: abs2(back) / x2,
	}
	if e.Sca > 0 {
		e.G = 4 / (x2 * e.Sca) * gsum
	}
	e.Abs = math.Max(0, e.Ext-e.Sca)
	if err := opterr.Finite("mie", e.Ext, e.Sca, e.Back, e.G); err != nil {
		return Efficiencies{}, err
	}
	return e, nil
}

func abs2(z complex128) float64 { return real(z)*real(z) + imag(z)*imag(z) }
