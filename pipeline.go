package gooptcore

import (
	"fmt"
	"math"

	"github.com/kacperjurak/gooptcore/pkg/opterr"
	"github.com/kacperjurak/gooptcore/pkg/scattering"
	"github.com/kacperjurak/gooptcore/pkg/spectral"
)

// Stage is one element of a Pipeline. Apply returns the energy split of the
// flux that reaches the stage.
type Stage interface {
	Name() string
	Apply(e *Evaluator, ctx EvaluationContext) (BSDFResponse, error)
}

// MaterialStage evaluates a material.
type MaterialStage struct {
	Material Material
}

func (s MaterialStage) Name() string {
	if s.Material == nil {
		return "material"
	}
	return string(s.Material.Kind())
}

func (s MaterialStage) Apply(e *Evaluator, ctx EvaluationContext) (BSDFResponse, error) {
	return e.Evaluate(s.Material, ctx)
}

// ParticleStage is a thin layer of suspended particles with optical depth
// OpticalDepth550 at 550 nm. Extinction follows the particles' efficiency
// spectrum; scattered light is split between back and forward hemispheres
// according to the asymmetry parameter.
type ParticleStage struct {
	Particles       scattering.Params
	OpticalDepth550 float64
}

func (s ParticleStage) Name() string { return "particles" }

func (s ParticleStage) Apply(e *Evaluator, ctx EvaluationContext) (BSDFResponse, error) {
	if err := opterr.NonNegative("optical_depth", s.OpticalDepth550); err != nil {
		return BSDFResponse{}, err
	}
	ref, err := s.Particles.At(550).Efficiencies(e.mieSource())
	if err != nil {
		return BSDFResponse{}, err
	}
	eff, err := s.Particles.At(ctx.WavelengthNM).Efficiencies(e.mieSource())
	if err != nil {
		return BSDFResponse{}, err
	}
	if ref.Ext <= 0 {
		return newResponse(0, 1), nil
	}
	tau := s.OpticalDepth550 * eff.Ext / ref.Ext
	if ctx.CosTheta > 0 {
		tau /= ctx.CosTheta
	} else {
		tau = math.Inf(1)
	}
	direct, err := e.transmittance(tau)
	if err != nil {
		return BSDFResponse{}, err
	}
	scattered := (1 - direct) * eff.Albedo()
	back := (1 - math.Max(-1, math.Min(1, eff.G))) / 2
	return newResponse(scattered*back, direct+scattered*(1-back)), nil
}

// AbsorberStage is a non-scattering absorber obeying Beer-Lambert with an
// attenuation coefficient spectrum in 1/mm.
type AbsorberStage struct {
	Coefficient spectral.Spectrum
	ThicknessMM float64
}

func (s AbsorberStage) Name() string { return "absorber" }

func (s AbsorberStage) Apply(e *Evaluator, ctx EvaluationContext) (BSDFResponse, error) {
	if s.Coefficient == nil {
		return BSDFResponse{}, fmt.Errorf("absorber without coefficient: %w", opterr.ErrParameterOutOfRange)
	}
	if err := opterr.NonNegative("thickness_mm", s.ThicknessMM); err != nil {
		return BSDFResponse{}, err
	}
	alpha := s.Coefficient.At(ctx.WavelengthNM)
	if err := opterr.NonNegative("absorption coefficient", alpha); err != nil {
		return BSDFResponse{}, err
	}
	path := s.ThicknessMM
	if ctx.CosTheta > 0 {
		path /= ctx.CosTheta
	} else if alpha > 0 {
		return newResponse(0, 0), nil
	}
	t, err := e.transmittance(alpha * path)
	if err != nil {
		return BSDFResponse{}, err
	}
	return newResponse(0, t), nil
}

// ReflectorStage is an opaque surface with a given reflectance spectrum.
type ReflectorStage struct {
	Reflectance spectral.Spectrum
}

func (s ReflectorStage) Name() string { return "reflector" }

func (s ReflectorStage) Apply(_ *Evaluator, ctx EvaluationContext) (BSDFResponse, error) {
	if s.Reflectance == nil {
		return BSDFResponse{}, fmt.Errorf("reflector without spectrum: %w", opterr.ErrParameterOutOfRange)
	}
	r := s.Reflectance.At(ctx.WavelengthNM)
	if err := opterr.Between("reflectance", r, 0, 1); err != nil {
		return BSDFResponse{}, err
	}
	return newResponse(r, 0), nil
}

// Pipeline runs stages top to bottom at every wavelength of a grid, feeding
// the flux each stage transmits to the next one.
type Pipeline struct {
	Stages []Stage
	// Illuminant weights the colour conversion. Nil means D65.
	Illuminant spectral.Spectrum
	// Wavelengths defaults to 380-700 nm in 10 nm steps.
	Wavelengths []float64
	Context     EvaluationContext
	Evaluator   *Evaluator
}

// NewPipeline builds a pipeline at normal incidence under D65. A zero
// Context also means normal incidence.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{Stages: stages, Context: EvaluationContext{CosTheta: 1, WavelengthNM: 550}}
}

// PipelineResult holds per-wavelength responses and the reflected colour.
type PipelineResult struct {
	Wavelengths   []float64
	Reflectance   []float64
	Transmittance []float64
	Absorption    []float64
	XYZ           spectral.XYZ
	LinearRGB     spectral.RGB
	SRGB          spectral.RGB
}

// Run evaluates the pipeline. The first stage error aborts the run.
func (p *Pipeline) Run() (PipelineResult, error) {
	if len(p.Stages) == 0 {
		return PipelineResult{}, fmt.Errorf("pipeline has no stages: %w", opterr.ErrUnsupportedComposition)
	}
	e := p.Evaluator
	if e == nil {
		e = defaultEvaluator
	}
	grid := p.Wavelengths
	if len(grid) == 0 {
		grid = spectral.VisibleGrid()
	}
	illum := p.Illuminant
	if illum == nil {
		illum = spectral.D65()
	}

	n := len(grid)
	res := PipelineResult{
		Wavelengths:   append([]float64(nil), grid...),
		Reflectance:   make([]float64, n),
		Transmittance: make([]float64, n),
		Absorption:    make([]float64, n),
	}
	base := p.Context
	if base == (EvaluationContext{}) {
		base.CosTheta = 1
	}
	base = base.WithMode(ModeSpectral)
	layers := make([]BSDFResponse, len(p.Stages))
	for i, wl := range grid {
		ctx := base.At(wl)
		if err := ctx.Validate(); err != nil {
			return PipelineResult{}, err
		}
		for j, s := range p.Stages {
			r, err := s.Apply(e, ctx)
			if err != nil {
				return PipelineResult{}, fmt.Errorf("stage %d (%s) at %g nm: %w", j, s.Name(), wl, err)
			}
			layers[j] = r
		}
		out := singleBounce(layers)
		if err := out.finite(); err != nil {
			return PipelineResult{}, err
		}
		res.Reflectance[i], res.Transmittance[i], res.Absorption[i] = out.Reflectance, out.Transmittance, out.Absorption
	}

	refl, err := spectral.NewSignal(res.Wavelengths, res.Reflectance)
	if err != nil {
		return PipelineResult{}, err
	}
	res.XYZ = spectral.Integrate(refl, illum)
	res.LinearRGB = spectral.XYZToLinearSRGB(res.XYZ)
	res.SRGB = res.LinearRGB.Clamp().Encode()
	return res, nil
}

// MaxDeviation is the largest |R+T+A − 1| over the grid.
func (r PipelineResult) MaxDeviation() float64 {
	var worst float64
	for i := range r.Wavelengths {
		d := math.Abs(r.Reflectance[i] + r.Transmittance[i] + r.Absorption[i] - 1)
		if math.IsNaN(d) {
			return math.Inf(1)
		}
		worst = math.Max(worst, d)
	}
	return worst
}

// VerifyEnergyConservation runs the pipeline and reports the worst deviation,
// with ErrEnergyConservation if it exceeds the evaluator's tolerance.
func (p *Pipeline) VerifyEnergyConservation() (float64, error) {
	res, err := p.Run()
	if err != nil {
		return 0, err
	}
	eps := DefaultEpsilon
	if p.Evaluator != nil {
		eps = p.Evaluator.Epsilon()
	}
	d := res.MaxDeviation()
	diag := Diagnostic{Deviation: d, Epsilon: eps, Conserved: d <= eps}
	return d, diag.Err()
}
