// Package fresnel computes reflection at a single optical interface.
//
// Angles are passed as the cosine of the incidence angle measured from the
// surface normal and are clamped to [0,1]. Grazing incidence (cos = 0) always
// reflects everything.
package fresnel

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/integrate/quad"
)

// Polarization selects which field component a reflectance refers to.
type Polarization int

const (
	Unpolarized Polarization = iota
	S
	P
)

func (p Polarization) String() string {
	switch p {
	case S:
		return "s"
	case P:
		return "p"
	}
	return "unpolarized"
}

// ParsePolarization maps "s", "p" and anything else to Unpolarized.
func ParsePolarization(s string) Polarization {
	switch s {
	case "s", "S", "te", "TE":
		return S
	case "p", "P", "tm", "TM":
		return P
	}
	return Unpolarized
}

// Combine picks or averages the s and p reflectances.
func (p Polarization) Combine(rs, rp float64) float64 {
	switch p {
	case S:
		return rs
	case P:
		return rp
	}
	return 0.5 * (rs + rp)
}

func clampCos(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// F0 is the normal-incidence reflectance between two real media.
func F0(n1, n2 float64) float64 {
	r := (n1 - n2) / (n1 + n2)
	return r * r
}

// Schlick is the fifth-power approximation of the dielectric reflectance.
func Schlick(cosTheta, f0 float64) float64 {
	c := clampCos(cosTheta)
	m := 1 - c
	m2 := m * m
	return f0 + (1-f0)*m2*m2*m
}

// Dielectric returns the exact reflectance for light travelling from a
// medium of index n1 into one of index n2. Total internal reflection gives 1.
func Dielectric(n1, n2, cosTheta float64, pol Polarization) float64 {
	ci := clampCos(cosTheta)
	if ci == 0 {
		return 1
	}
	eta := n1 / n2
	sin2t := eta * eta * (1 - ci*ci)
	if sin2t >= 1 {
		return 1
	}
	ct := math.Sqrt(1 - sin2t)

	rs := (n1*ci - n2*ct) / (n1*ci + n2*ct)
	rp := (n2*ci - n1*ct) / (n2*ci + n1*ct)
	return pol.Combine(rs*rs, rp*rp)
}

// Conductor returns the reflectance from a real ambient medium n1 onto an
// absorbing medium with complex index n (n + ik).
func Conductor(n1 float64, n complex128, cosTheta float64, pol Polarization) float64 {
	ci := clampCos(cosTheta)
	if ci == 0 {
		return 1
	}
	sinI := math.Sqrt(1 - ci*ci)
	na := complex(n1, 0)
	qa := complex(n1*ci, 0)
	qb := NormalComponent(n, n1*sinI)

	rs, rp, _, _ := Amplitudes(na, n, qa, qb)
	abs2 := func(z complex128) float64 { return real(z)*real(z) + imag(z)*imag(z) }
	return math.Min(1, pol.Combine(abs2(rs), abs2(rp)))
}

// NormalComponent returns N·cosθ inside a medium of complex index n for a
// wave whose conserved tangential component is kx = n0·sinθ0. The branch is
// chosen so the wave decays (or at least does not grow) into the medium.
func NormalComponent(n complex128, kx float64) complex128 {
	q := cmplx.Sqrt(n*n - complex(kx*kx, 0))
	if imag(q) < 0 || (math.Abs(imag(q)) < 1e-15 && real(q) < 0) {
		q = -q
	}
	return q
}

// Amplitudes gives the s and p reflection and transmission amplitude
// coefficients between media a and b, where qa and qb are the normal
// components returned by NormalComponent.
func Amplitudes(na, nb, qa, qb complex128) (rs, rp, ts, tp complex128) {
	rs = (qa - qb) / (qa + qb)
	ts = 2 * qa / (qa + qb)
	pa := nb * nb * qa
	pb := na * na * qb
	rp = (pa - pb) / (pa + pb)
	tp = 2 * na * nb * qa / (pa + pb)
	return rs, rp, ts, tp
}

// BrewsterAngle is the incidence angle in radians at which p-polarised
// light is not reflected.
func BrewsterAngle(n1, n2 float64) float64 {
	return math.Atan2(n2, n1)
}

// CriticalAngle is the onset of total internal reflection in radians. It
// only exists when light goes from a denser to a rarer medium.
func CriticalAngle(n1, n2 float64) (float64, bool) {
	if n1 <= n2 {
		return 0, false
	}
	return math.Asin(n2 / n1), true
}

// Hemispherical is the cosine-weighted average 2∫R(μ)μ dμ of a reflectance
// function over the hemisphere.
func Hemispherical(r func(cosTheta float64) float64) float64 {
	return 2 * quad.Fixed(func(mu float64) float64 { return r(mu) * mu }, 0, 1, 64, quad.Legendre{}, 0)
}
