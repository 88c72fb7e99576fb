package gooptcore

import (
	"math"

	"github.com/kacperjurak/gooptcore/pkg/fresnel"
)

// diffuseFresnel is the polynomial fit of the hemispherical internal
// reflectance for a relative index eta.
func diffuseFresnel(eta float64) float64 {
	return -1.440/(eta*eta) + 0.710/eta + 0.668 + 0.0636*eta
}

// diffuseReflectance is the dipole diffusion albedo for reduced
// single-scattering albedo a and relative index eta.
func diffuseReflectance(a, eta float64) float64 {
	fdr := diffuseFresnel(eta)
	A := (1 + fdr) / (1 - fdr)
	s := math.Sqrt(3 * (1 - a))
	return a / 2 * (1 + math.Exp(-4.0/3*A*s)) * math.Exp(-s)
}

// subsurface combines a Fresnel entry with the diffusion approximation.
// Finite slabs let ballistic light through and attenuate the diffuse part by
// the effective transport coefficient.
func (e *Evaluator) subsurface(m Subsurface, ctx EvaluationContext) (BSDFResponse, error) {
	n1, n2 := ctx.Ambient(), m.Particles.MediumIOR
	rs := fresnel.Dielectric(n1, n2, ctx.CosTheta, ctx.Polarization)
	if rs >= 1 {
		return newResponse(1, 0), nil
	}

	p := m.Particles.At(ctx.WavelengthNM)
	eff, err := p.Efficiencies(e.mieSource())
	if err != nil {
		return BSDFResponse{}, err
	}
	g := math.Max(-0.999, math.Min(0.999, eff.G))

	albedo := rgbAt(m.Albedo, ctx.WavelengthNM)
	sigmaT := 1 / m.MeanFreePathMM
	sigmaS := albedo * sigmaT
	sigmaA := sigmaT - sigmaS
	reducedS := sigmaS * (1 - g)
	reducedT := reducedS + sigmaA
	reducedAlbedo := 1.0
	if reducedT > 0 {
		reducedAlbedo = reducedS / reducedT
	}
	rd := math.Min(1, diffuseReflectance(reducedAlbedo, n2/n1))

	if m.ThicknessMM == 0 {
		return newResponse(rs+(1-rs)*rd, 0), nil
	}

	sin1 := math.Sqrt(math.Max(0, 1-ctx.CosTheta*ctx.CosTheta))
	sin2 := n1 / n2 * sin1
	cos2 := math.Sqrt(math.Max(1e-12, 1-sin2*sin2))
	ballistic, err := e.transmittance(sigmaT * m.ThicknessMM / cos2)
	if err != nil {
		return BSDFResponse{}, err
	}
	diffuse, err := e.transmittance(math.Sqrt(3*sigmaA*reducedT) * m.ThicknessMM)
	if err != nil {
		return BSDFResponse{}, err
	}
	scattered := (1 - rs) * (1 - ballistic)
	r := rs + scattered*rd
	t := (1-rs)*ballistic + scattered*(1-rd)*diffuse
	return newResponse(r, t), nil
}
