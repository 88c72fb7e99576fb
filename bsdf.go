package gooptcore

import (
	"fmt"
	"math"

	"github.com/golang/glog"

	"github.com/kacperjurak/gooptcore/pkg/fresnel"
	"github.com/kacperjurak/gooptcore/pkg/lut"
	"github.com/kacperjurak/gooptcore/pkg/opterr"
	"github.com/kacperjurak/gooptcore/pkg/scattering"
	"github.com/kacperjurak/gooptcore/pkg/thinfilm"
)

// Evaluator turns a Material and an EvaluationContext into a BSDFResponse.
// It is safe for concurrent use.
type Evaluator struct {
	cache      *lut.Cache
	epsilon    float64
	policy     LayeredPolicy
	fresnelLUT bool
	exactMie   bool
	workers    int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCache sets the table cache. The default is lut.Default().
func WithCache(c *lut.Cache) Option {
	return func(e *Evaluator) { e.cache = c }
}

// WithEpsilon sets the energy conservation tolerance.
func WithEpsilon(eps float64) Option {
	return func(e *Evaluator) { e.epsilon = eps }
}

// WithLayeredPolicy selects how Layered materials combine.
func WithLayeredPolicy(p LayeredPolicy) Option {
	return func(e *Evaluator) { e.policy = p }
}

// WithFresnelLUT serves dielectric Fresnel terms from the cache instead of
// the closed form.
func WithFresnelLUT(on bool) Option {
	return func(e *Evaluator) { e.fresnelLUT = on }
}

// WithExactMie bypasses the Mie tables.
func WithExactMie(on bool) Option {
	return func(e *Evaluator) { e.exactMie = on }
}

// WithWorkers bounds batch parallelism. Values below 1 mean sequential.
func WithWorkers(n int) Option {
	return func(e *Evaluator) { e.workers = n }
}

func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{epsilon: DefaultEpsilon, workers: 1}
	for _, o := range opts {
		o(e)
	}
	if e.cache == nil {
		e.cache = lut.Default()
	}
	if e.epsilon <= 0 {
		e.epsilon = DefaultEpsilon
	}
	return e
}

// Cache exposes the evaluator's table cache.
func (e *Evaluator) Cache() *lut.Cache { return e.cache }

// Epsilon is the energy conservation tolerance in use.
func (e *Evaluator) Epsilon() float64 { return e.epsilon }

var defaultEvaluator = NewEvaluator()

// Evaluate uses a process-wide evaluator with default options.
func Evaluate(m Material, ctx EvaluationContext) (BSDFResponse, error) {
	return defaultEvaluator.Evaluate(m, ctx)
}

// Evaluate validates its inputs and returns the energy split at one
// wavelength and angle. A response that breaks energy conservation is
// returned together with an ErrEnergyConservation error.
func (e *Evaluator) Evaluate(m Material, ctx EvaluationContext) (BSDFResponse, error) {
	resp, d, err := e.diagnose(m, ctx)
	if err != nil {
		return resp, err
	}
	return resp, d.Err()
}

// diagnose is Evaluate with the energy check returned as data. err is
// non-nil only when no response could be computed.
func (e *Evaluator) diagnose(m Material, ctx EvaluationContext) (BSDFResponse, Diagnostic, error) {
	if m == nil {
		return BSDFResponse{}, Diagnostic{}, fmt.Errorf("nil material: %w", opterr.ErrUnsupportedComposition)
	}
	if err := ctx.Validate(); err != nil {
		return BSDFResponse{}, Diagnostic{}, err
	}
	if err := m.Validate(); err != nil {
		return BSDFResponse{}, Diagnostic{}, err
	}
	resp, err := e.evaluateMode(m, ctx)
	if err != nil {
		return BSDFResponse{}, Diagnostic{}, err
	}
	if err := resp.finite(); err != nil {
		return BSDFResponse{}, Diagnostic{}, fmt.Errorf("%s: %w", m.Kind(), err)
	}
	d := resp.Diagnose(e.epsilon)
	if !d.Conserved {
		glog.Warningf("%s at %.1f nm: %v", m.Kind(), ctx.WavelengthNM, d.Err())
	}
	return resp, d, nil
}

// EvaluateRGB evaluates at the red, green and blue sample wavelengths.
func (e *Evaluator) EvaluateRGB(m Material, ctx EvaluationContext) ([3]BSDFResponse, error) {
	var out [3]BSDFResponse
	ctx = ctx.WithMode(ModeSpectral)
	for i, wl := range rgbWavelengths {
		r, err := e.Evaluate(m, ctx.At(wl))
		if err != nil {
			return out, err
		}
		out[i] = r
	}
	return out, nil
}

// evaluateMode averages the red, green and blue samples in ModeRGB and
// ignores the context wavelength.
func (e *Evaluator) evaluateMode(m Material, ctx EvaluationContext) (BSDFResponse, error) {
	if ctx.Mode != ModeRGB {
		return e.evaluate(m, ctx)
	}
	var mean BSDFResponse
	for _, wl := range rgbWavelengths {
		r, err := e.evaluate(m, ctx.At(wl))
		if err != nil {
			return BSDFResponse{}, fmt.Errorf("%g nm: %w", wl, err)
		}
		mean.Reflectance += r.Reflectance / 3
		mean.Transmittance += r.Transmittance / 3
		mean.Absorption += r.Absorption / 3
	}
	return mean, nil
}

// evaluate dispatches on the variant without revalidating.
func (e *Evaluator) evaluate(m Material, ctx EvaluationContext) (BSDFResponse, error) {
	switch m := m.(type) {
	case Dielectric:
		return e.dielectric(m, ctx)
	case Conductor:
		return e.conductor(m, ctx)
	case ThinFilm:
		return e.thinFilm(m, ctx), nil
	case Lambertian:
		return newResponse(rgbAt(m.Albedo, ctx.WavelengthNM), 0), nil
	case Subsurface:
		return e.subsurface(m, ctx)
	case Layered:
		return e.layered(m, ctx)
	}
	return BSDFResponse{}, fmt.Errorf("material kind %q: %w", m.Kind(), opterr.ErrUnsupportedComposition)
}

// roughWeight maps perceptual roughness to the share of reflectance that is
// replaced by the hemispherical average.
func roughWeight(roughness float64) float64 { return roughness * roughness }

func (e *Evaluator) dielectric(m Dielectric, ctx EvaluationContext) (BSDFResponse, error) {
	n1, n2 := ctx.Ambient(), m.IndexAt(ctx.WavelengthNM)
	eta := n2 / n1
	r, err := e.dielectricFresnel(n1, n2, ctx.CosTheta, ctx.Polarization)
	if err != nil {
		return BSDFResponse{}, err
	}
	if w := roughWeight(m.Roughness); w > 0 {
		hemi, err := e.hemispherical(eta)
		if err != nil {
			return BSDFResponse{}, err
		}
		r = (1-w)*r + w*hemi
	}
	return newResponse(r, 1-r), nil
}

func (e *Evaluator) dielectricFresnel(n1, n2, cos float64, pol fresnel.Polarization) (float64, error) {
	eta := n2 / n1
	if !e.fresnelLUT || !lut.FresnelCovers(eta) || cos <= 0 {
		return fresnel.Dielectric(n1, n2, cos, pol), nil
	}
	tab, err := e.cache.DielectricFresnel(pol)
	if err != nil {
		return 0, err
	}
	if tab.MaxError() > lut.FresnelMaxError {
		return fresnel.Dielectric(n1, n2, cos, pol), nil
	}
	return tab.At(cos, eta), nil
}

func (e *Evaluator) hemispherical(eta float64) (float64, error) {
	if eta < 0.2 || eta > 4 {
		return fresnel.Hemispherical(func(c float64) float64 {
			return fresnel.Dielectric(1, eta, c, fresnel.Unpolarized)
		}), nil
	}
	tab, err := e.cache.HemisphericalFresnel()
	if err != nil {
		return 0, err
	}
	return tab.At(eta), nil
}

func (e *Evaluator) conductor(m Conductor, ctx EvaluationContext) (BSDFResponse, error) {
	ior := m.IOR.At(ctx.WavelengthNM)
	if m.Drude != nil && ctx.TemperatureK > 0 {
		var err error
		if ior, err = m.Drude.IOR(ctx.WavelengthNM, ctx.TemperatureK); err != nil {
			return BSDFResponse{}, err
		}
	}
	n1, n := ctx.Ambient(), ior.Complex()
	r := fresnel.Conductor(n1, n, ctx.CosTheta, ctx.Polarization)
	if w := roughWeight(m.Roughness); w > 0 {
		hemi := fresnel.Hemispherical(func(c float64) float64 {
			return fresnel.Conductor(n1, n, c, fresnel.Unpolarized)
		})
		r = (1-w)*r + w*hemi
	}
	return newResponse(r, 0), nil
}

// thinFilm uses the closed-form Airy sum for a single lossless film and the
// transfer matrix otherwise. Light entering an absorbing substrate is
// counted as absorbed.
func (e *Evaluator) thinFilm(m ThinFilm, ctx EvaluationContext) BSDFResponse {
	var s thinfilm.Structure = m.Stack
	if f, ok := m.Stack.Film(); ok {
		s = f
	}
	r, t := s.Response(ctx.WavelengthNM, ctx.Ambient(), m.Substrate.Complex(), ctx.CosTheta, ctx.Polarization)
	if m.Substrate.IsConductor() {
		t = 0
	}
	return newResponse(r, t)
}

func (e *Evaluator) mieSource() scattering.MieSource {
	if e.exactMie {
		return scattering.ExactMie{}
	}
	return e.cache.MieSource()
}

func (e *Evaluator) transmittance(tau float64) (float64, error) {
	if math.IsInf(tau, 1) {
		return 0, nil
	}
	return e.cache.Transmittance(tau)
}
