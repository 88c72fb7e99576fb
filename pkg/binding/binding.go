// Package binding exposes the engine through flat float64 slices for
// foreign callers such as the WebAssembly module.
//
// Layouts:
//
//	RGB        [r, g, b] in [0,1]
//	BSDF       [reflectance, transmittance, absorption]
//	spectrum   33 samples, 380-700 nm in 10 nm steps
//	IOR batch  [n0, k0, n1, k1, ...]
package binding

import (
	"fmt"

	"github.com/kacperjurak/gooptcore"
	"github.com/kacperjurak/gooptcore/pkg/cior"
	"github.com/kacperjurak/gooptcore/pkg/opterr"
	"github.com/kacperjurak/gooptcore/pkg/spectral"
)

// Engine wraps an evaluator.
type Engine struct {
	eval *gooptcore.Evaluator
}

// New uses e, or the default evaluator when e is nil.
func New(e *gooptcore.Evaluator) *Engine {
	if e == nil {
		e = gooptcore.NewEvaluator()
	}
	return &Engine{eval: e}
}

// Presets lists the material presets.
func (b *Engine) Presets() []string { return gooptcore.PresetNames() }

func (b *Engine) material(name string) (gooptcore.Material, error) {
	return gooptcore.Preset(name)
}

// BSDF evaluates a preset at one angle and wavelength.
func (b *Engine) BSDF(preset string, angleDeg, wavelengthNM float64) ([]float64, error) {
	m, err := b.material(preset)
	if err != nil {
		return nil, err
	}
	return b.BSDFOf(m, angleDeg, wavelengthNM)
}

// BSDFOf evaluates any material.
func (b *Engine) BSDFOf(m gooptcore.Material, angleDeg, wavelengthNM float64) ([]float64, error) {
	ctx, err := gooptcore.NewContext(angleDeg, wavelengthNM)
	if err != nil {
		return nil, err
	}
	r, err := b.eval.Evaluate(m, ctx)
	if err != nil {
		return nil, err
	}
	a := r.Array()
	return a[:], nil
}

// Reflectance returns the per-channel reflectance at the RGB sample
// wavelengths.
func (b *Engine) Reflectance(preset string, angleDeg float64) ([]float64, error) {
	m, err := b.material(preset)
	if err != nil {
		return nil, err
	}
	ctx, err := gooptcore.NewContext(angleDeg, 550)
	if err != nil {
		return nil, err
	}
	rgb, err := b.eval.EvaluateRGB(m, ctx)
	if err != nil {
		return nil, err
	}
	return []float64{rgb[0].Reflectance, rgb[1].Reflectance, rgb[2].Reflectance}, nil
}

// Spectrum returns reflectance on the 33-sample visible grid.
func (b *Engine) Spectrum(preset string, angleDeg float64) ([]float64, error) {
	res, err := b.run(preset, angleDeg)
	if err != nil {
		return nil, err
	}
	return res.Reflectance, nil
}

// Color returns the gamma-encoded sRGB colour of the reflected light under
// D65.
func (b *Engine) Color(preset string, angleDeg float64) ([]float64, error) {
	res, err := b.run(preset, angleDeg)
	if err != nil {
		return nil, err
	}
	return RGB(res.SRGB), nil
}

func (b *Engine) run(preset string, angleDeg float64) (gooptcore.PipelineResult, error) {
	m, err := b.material(preset)
	if err != nil {
		return gooptcore.PipelineResult{}, err
	}
	ctx, err := gooptcore.NewContext(angleDeg, 550)
	if err != nil {
		return gooptcore.PipelineResult{}, err
	}
	p := &gooptcore.Pipeline{
		Stages:    []gooptcore.Stage{gooptcore.MaterialStage{Material: m}},
		Context:   ctx,
		Evaluator: b.eval,
	}
	return p.Run()
}

// Batch evaluates presets[i] at anglesDeg[i] and wavelengthsNM[i]. The
// result holds three values per item; failed items are zero and their
// error text is returned at the same index.
func (b *Engine) Batch(presets []string, anglesDeg, wavelengthsNM []float64) ([]float64, []string, error) {
	n := len(presets)
	if len(anglesDeg) != n || len(wavelengthsNM) != n {
		return nil, nil, fmt.Errorf("batch sizes differ: %d presets, %d angles, %d wavelengths: %w",
			n, len(anglesDeg), len(wavelengthsNM), opterr.ErrParameterOutOfRange)
	}
	materials := make([]gooptcore.Material, n)
	contexts := make([]gooptcore.EvaluationContext, n)
	errs := make([]string, n)
	for i := range presets {
		m, err := b.material(presets[i])
		if err == nil {
			contexts[i], err = gooptcore.NewContext(anglesDeg[i], wavelengthsNM[i])
		}
		if err != nil {
			errs[i] = err.Error()
			// A nil material fails evaluation without stopping the batch.
			continue
		}
		materials[i] = m
	}
	res, err := b.eval.EvaluateBatch(materials, contexts)
	if err != nil {
		return nil, nil, err
	}
	for i, e := range res.Errors {
		if e != nil && errs[i] == "" {
			errs[i] = e.Error()
		}
	}
	return res.Flat(), errs, nil
}

// MetalIOR samples a metal's complex index at each wavelength.
func MetalIOR(name string, wavelengthsNM []float64) ([]float64, error) {
	m, err := cior.Preset(name)
	if err != nil {
		return nil, err
	}
	iors := make([]cior.ComplexIOR, len(wavelengthsNM))
	for i, wl := range wavelengthsNM {
		if err := opterr.Positive("wavelength_nm", wl); err != nil {
			return nil, err
		}
		iors[i] = m.At(wl)
	}
	return cior.Flatten(iors), nil
}

// F0 converts an IOR batch into normal-incidence reflectances.
func F0(flat []float64) ([]float64, error) {
	iors, err := cior.Unflatten(flat)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(iors))
	for i, c := range iors {
		out[i] = c.F0()
	}
	return out, nil
}

// RGB flattens a colour, clamped to [0,1].
func RGB(c spectral.RGB) []float64 {
	c = c.Clamp()
	return c[:]
}

// Wavelengths is the spectrum grid.
func Wavelengths() []float64 { return spectral.VisibleGrid() }
