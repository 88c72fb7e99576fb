package processing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/kacperjurak/gooptcore"
	"github.com/kacperjurak/gooptcore/pkg/cior"
	"github.com/kacperjurak/gooptcore/pkg/config"
	"github.com/kacperjurak/gooptcore/pkg/dispersion"
	"github.com/kacperjurak/gooptcore/pkg/fresnel"
	"github.com/kacperjurak/gooptcore/pkg/models"
	"github.com/kacperjurak/gooptcore/pkg/profiling"
	"github.com/kacperjurak/gooptcore/pkg/render"
	"github.com/kacperjurak/gooptcore/pkg/scattering"
	"github.com/kacperjurak/gooptcore/pkg/spectral"
)

const (
	defaultWavelengthNM = 550.0
	// phaseTolerance bounds |∫p dΩ − 1| for a phase function to count as
	// conserving energy.
	phaseTolerance = 0.01
	phaseSamples   = 19
)

// QueryProcessor answers JSON queries with an evaluator
type QueryProcessor struct {
	config *config.Config
	eval   *gooptcore.Evaluator
	mie    scattering.MieSource
}

// NewQueryProcessor creates a new query processor
func NewQueryProcessor(cfg *config.Config) (*QueryProcessor, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	eval, err := cfg.Evaluator()
	if err != nil {
		return nil, err
	}
	var mie scattering.MieSource = eval.Cache().MieSource()
	if cfg.ExactMie {
		mie = scattering.ExactMie{}
	}
	return &QueryProcessor{config: cfg, eval: eval, mie: mie}, nil
}

// Evaluator returns the processor's evaluator.
func (p *QueryProcessor) Evaluator() *gooptcore.Evaluator { return p.eval }

// Process answers one query. Energy conservation failures are reported in the
// response, not as an error.
func (p *QueryProcessor) Process(ctx context.Context, q models.Query) (models.QueryResponse, error) {
	return p.ProcessWith(ctx, q, nil)
}

// ProcessWith is Process with caller-owned scratch buffers. buf may be nil.
func (p *QueryProcessor) ProcessWith(ctx context.Context, q models.Query, buf *models.BufferSet) (models.QueryResponse, error) {
	if buf == nil {
		buf = &models.BufferSet{}
	}
	start := time.Now()
	resp, err := p.dispatch(q, buf)
	resp.ID, resp.Action = q.ID, q.Action
	if err != nil {
		resp = models.QueryResponse{ID: q.ID, Action: q.Action, Error: err.Error()}
	} else {
		resp.Deviation, resp.EnergyConserved = p.conservation(resp)
	}
	profiling.RecordQuery(ctx, string(q.Action), err != nil, resp.EnergyConserved)

	if err != nil {
		glog.Warningf("Query %s (%s) failed: %v", q.ID, q.Action, err)
	} else if !resp.EnergyConserved {
		glog.Warningf("Query %s (%s): energy deviation %g", q.ID, q.Action, resp.Deviation)
	} else if !p.config.Quiet {
		glog.V(1).Infof("Query %s (%s) done in %v", q.ID, q.Action, time.Since(start))
	}
	return resp, err
}

// ProcessorFunc adapts the processor to the worker pool.
func (p *QueryProcessor) ProcessorFunc() func(ctx context.Context, q models.Query, buf *models.BufferSet) (models.QueryResponse, error) {
	return p.ProcessWith
}

func (p *QueryProcessor) dispatch(q models.Query, buf *models.BufferSet) (models.QueryResponse, error) {
	switch q.Action {
	case models.ActionEvaluateBSDF:
		return p.evaluateBSDF(q)
	case models.ActionSpectralRender:
		return p.spectralRender(q, buf)
	case models.ActionCalculateDispersion:
		return p.calculateDispersion(q, buf)
	case models.ActionComplexIOR:
		return p.complexIOR(q, buf)
	case models.ActionThinFilmSpectrum:
		return p.thinFilmSpectrum(q, buf)
	case models.ActionPhaseFunction:
		return p.phaseFunction(q)
	case models.ActionListPresets:
		return p.listPresets(q)
	}
	return models.QueryResponse{}, fmt.Errorf("unknown action %q: %w", q.Action, gooptcore.ErrUnsupportedComposition)
}

// conservation recomputes R+T+A for every returned response. Phase function
// answers carry their normalisation error instead.
func (p *QueryProcessor) conservation(r models.QueryResponse) (float64, bool) {
	if r.Action == models.ActionPhaseFunction {
		return r.Deviation, r.Deviation <= phaseTolerance
	}
	var worst float64
	check := func(b gooptcore.BSDFResponse) {
		d := b.Deviation()
		if math.IsNaN(d) {
			d = math.Inf(1)
		}
		worst = math.Max(worst, d)
	}
	if r.Response != nil {
		check(*r.Response)
	}
	for _, b := range r.Responses {
		check(b)
	}
	return worst, worst <= p.eval.Epsilon()
}

func (p *QueryProcessor) material(q models.Query) (gooptcore.Material, string, error) {
	switch {
	case q.Material != nil:
		m, err := BuildMaterial(*q.Material)
		name := q.Material.Preset
		if name == "" {
			name = string(q.Material.Kind)
		}
		return m, name, err
	case q.Preset != "":
		m, err := gooptcore.Preset(q.Preset)
		return m, q.Preset, err
	}
	return nil, "", fmt.Errorf("query needs a preset or a material: %w", gooptcore.ErrParameterOutOfRange)
}

func (p *QueryProcessor) context(q models.Query, wavelengthNM float64) (gooptcore.EvaluationContext, error) {
	if wavelengthNM == 0 {
		wavelengthNM = defaultWavelengthNM
	}
	ctx, err := gooptcore.NewContext(q.AngleDeg, wavelengthNM)
	if err != nil {
		return ctx, err
	}
	switch strings.ToLower(q.Polarization) {
	case "", "unpolarized", "unpolarised", "s", "p", "te", "tm":
		ctx = ctx.WithPolarization(fresnel.ParsePolarization(strings.ToLower(q.Polarization)))
	default:
		return ctx, fmt.Errorf("polarization %q: %w", q.Polarization, gooptcore.ErrParameterOutOfRange)
	}
	if q.TemperatureK != 0 {
		if ctx, err = ctx.WithTemperature(q.TemperatureK); err != nil {
			return ctx, err
		}
	}
	if q.AmbientIOR != 0 {
		if ctx, err = ctx.WithAmbient(q.AmbientIOR); err != nil {
			return ctx, err
		}
	}
	mode, err := gooptcore.ParseMode(q.Mode)
	if err != nil {
		return ctx, err
	}
	return ctx.WithMode(mode), nil
}

// grid fills buf.Wavelengths with the query's wavelengths, or def when the
// query names none.
func grid(q models.Query, def []float64, buf *models.BufferSet) []float64 {
	buf.Wavelengths = buf.Wavelengths[:0]
	if len(q.WavelengthsNM) > 0 {
		buf.Wavelengths = append(buf.Wavelengths, q.WavelengthsNM...)
	} else {
		buf.Wavelengths = append(buf.Wavelengths, def...)
	}
	return buf.Wavelengths
}

func (p *QueryProcessor) illuminant(q models.Query) (spectral.Signal, error) {
	if k := q.Param("blackbody_k", 0); k > 0 {
		return spectral.Blackbody(k), nil
	}
	illum, ok := spectral.Illuminant(q.Illuminant)
	if !ok {
		return spectral.Signal{}, fmt.Errorf("illuminant %q: %w", q.Illuminant, gooptcore.ErrParameterOutOfRange)
	}
	return illum, nil
}

// evaluate runs the evaluator and keeps energy violations as data.
func (p *QueryProcessor) evaluate(m gooptcore.Material, ctx gooptcore.EvaluationContext) (gooptcore.BSDFResponse, error) {
	r, err := p.eval.Evaluate(m, ctx)
	if err != nil && !errors.Is(err, gooptcore.ErrEnergyConservation) {
		return gooptcore.BSDFResponse{}, err
	}
	return r, nil
}

// sweep evaluates m at each wavelength, reusing buf.Values for reflectance.
func (p *QueryProcessor) sweep(m gooptcore.Material, base gooptcore.EvaluationContext, wls []float64, buf *models.BufferSet) ([]gooptcore.BSDFResponse, []float64, error) {
	out := make([]gooptcore.BSDFResponse, len(wls))
	buf.Values = buf.Values[:0]
	base = base.WithMode(gooptcore.ModeSpectral)
	for i, wl := range wls {
		r, err := p.evaluate(m, base.At(wl))
		if err != nil {
			return nil, nil, fmt.Errorf("at %g nm: %w", wl, err)
		}
		out[i] = r
		buf.Values = append(buf.Values, r.Reflectance)
	}
	return out, append([]float64(nil), buf.Values...), nil
}

func (p *QueryProcessor) evaluateBSDF(q models.Query) (models.QueryResponse, error) {
	m, _, err := p.material(q)
	if err != nil {
		return models.QueryResponse{}, err
	}
	ctx, err := p.context(q, q.WavelengthNM)
	if err != nil {
		return models.QueryResponse{}, err
	}
	r, err := p.evaluate(m, ctx)
	if err != nil {
		return models.QueryResponse{}, err
	}
	a := r.Array()
	return models.QueryResponse{
		Values:        a[:],
		WavelengthsNM: ctx.Samples(),
		Response:      &r,
	}, nil
}

func (p *QueryProcessor) spectralRender(q models.Query, buf *models.BufferSet) (models.QueryResponse, error) {
	m, name, err := p.material(q)
	if err != nil {
		return models.QueryResponse{}, err
	}
	ctx, err := p.context(q, q.WavelengthNM)
	if err != nil {
		return models.QueryResponse{}, err
	}
	illum, err := p.illuminant(q)
	if err != nil {
		return models.QueryResponse{}, err
	}

	stages := []gooptcore.Stage{gooptcore.MaterialStage{Material: m}}
	if tau := q.Param("haze_optical_depth", 0); tau > 0 {
		haze, err := scattering.NewParams(q.Param("haze_radius_um", 0.05), defaultWavelengthNM, cior.ComplexIOR{N: 1.5}, 1)
		if err != nil {
			return models.QueryResponse{}, err
		}
		stages = append([]gooptcore.Stage{gooptcore.ParticleStage{Particles: haze, OpticalDepth550: tau}}, stages...)
	}
	pipe := &gooptcore.Pipeline{
		Stages:      stages,
		Illuminant:  illum,
		Wavelengths: grid(q, spectral.VisibleGrid(), buf),
		Context:     ctx,
		Evaluator:   p.eval,
	}
	res, err := pipe.Run()
	if err != nil {
		return models.QueryResponse{}, err
	}

	responses := make([]gooptcore.BSDFResponse, len(res.Wavelengths))
	for i := range res.Wavelengths {
		responses[i] = gooptcore.BSDFResponse{
			Reflectance:   res.Reflectance[i],
			Transmittance: res.Transmittance[i],
			Absorption:    res.Absorption[i],
		}
	}

	em := render.EvaluatedMaterial{Name: name, Kind: m.Kind(), Stops: []render.Stop{render.StopFrom(q.AngleDeg, res)}}
	if q.Param("gradient", 0) != 0 {
		em, err = render.Evaluate(name, m, render.RenderContext{Illuminant: illum, Evaluator: p.eval})
		if err != nil {
			return models.QueryResponse{}, err
		}
	}
	css, err := render.CSSRenderer{}.Render(em, render.RenderContext{DirectionDeg: q.Param("direction_deg", 180)})
	if err != nil {
		return models.QueryResponse{}, err
	}

	srgb := res.SRGB
	return models.QueryResponse{
		Values:        res.Reflectance,
		WavelengthsNM: res.Wavelengths,
		Responses:     responses,
		Color:         srgb[:],
		CSS:           css,
		Scalars: map[string]float64{
			"x": res.XYZ[0],
			"y": res.XYZ[1],
			"z": res.XYZ[2],
		},
	}, nil
}

func (p *QueryProcessor) dispersionModel(q models.Query) (dispersion.Model, error) {
	if q.Material != nil && q.Material.Dispersion != "" {
		return dispersion.Preset(q.Material.Dispersion)
	}
	if nd, ok := q.Params["nd"]; ok {
		return dispersion.CauchyFromAbbe(nd, q.Param("abbe", 0))
	}
	m, _, err := p.material(q)
	if err != nil {
		return nil, err
	}
	d, ok := m.(gooptcore.Dielectric)
	if !ok {
		return nil, fmt.Errorf("dispersion of a %s: %w", m.Kind(), gooptcore.ErrUnsupportedComposition)
	}
	if d.Dispersion == nil {
		return dispersion.Constant(d.IOR), nil
	}
	return d.Dispersion, nil
}

func (p *QueryProcessor) calculateDispersion(q models.Query, buf *models.BufferSet) (models.QueryResponse, error) {
	model, err := p.dispersionModel(q)
	if err != nil {
		return models.QueryResponse{}, err
	}
	m, err := gooptcore.NewDispersiveDielectric(model, 0)
	if err != nil {
		return models.QueryResponse{}, err
	}
	ctx, err := p.context(q, q.WavelengthNM)
	if err != nil {
		return models.QueryResponse{}, err
	}
	wls := grid(q, spectral.VisibleGrid(), buf)
	responses, _, err := p.sweep(m, ctx, wls, buf)
	if err != nil {
		return models.QueryResponse{}, err
	}
	values := make([]float64, len(wls))
	for i, wl := range wls {
		values[i] = model.IOR(wl)
	}

	scalars := map[string]float64{
		"n_d":         model.IOR(dispersion.LineD),
		"abbe_number": dispersion.AbbeNumber(model),
		"consistent":  1,
	}
	if _, constant := model.(dispersion.Constant); constant {
		scalars["abbe_number"] = 0
	} else if err := dispersion.CheckConsistency(model); err != nil {
		scalars["consistent"] = 0
	}
	return models.QueryResponse{
		Values:        values,
		WavelengthsNM: append([]float64(nil), wls...),
		Responses:     responses,
		Scalars:       scalars,
	}, nil
}

func (p *QueryProcessor) metal(q models.Query) (cior.SpectralComplexIOR, string, error) {
	if q.Material != nil && q.Material.RGB != nil {
		return *q.Material.RGB, "", q.Material.RGB.Validate()
	}
	name := q.Preset
	if q.Material != nil && q.Material.Metal != "" {
		name = q.Material.Metal
	}
	if ior, err := cior.Preset(name); err == nil {
		return ior, name, nil
	}
	m, _, err := p.material(q)
	if err != nil {
		return cior.SpectralComplexIOR{}, "", err
	}
	c, ok := m.(gooptcore.Conductor)
	if !ok {
		return cior.SpectralComplexIOR{}, "", fmt.Errorf("complex index of a %s: %w", m.Kind(), gooptcore.ErrUnsupportedComposition)
	}
	return c.IOR, name, nil
}

func (p *QueryProcessor) complexIOR(q models.Query, buf *models.BufferSet) (models.QueryResponse, error) {
	ior, name, err := p.metal(q)
	if err != nil {
		return models.QueryResponse{}, err
	}
	m, err := gooptcore.NewConductor(ior, 0)
	if err != nil {
		return models.QueryResponse{}, err
	}
	drude, hasDrude := cior.DrudePreset(name)
	if hasDrude {
		m.Drude = &drude
	}
	ctx, err := p.context(q, q.WavelengthNM)
	if err != nil {
		return models.QueryResponse{}, err
	}

	wls := grid(q, []float64{cior.RedNM, cior.GreenNM, cior.BlueNM}, buf)
	// The sweep validates every wavelength before the index lookups.
	responses, _, err := p.sweep(m, ctx, wls, buf)
	if err != nil {
		return models.QueryResponse{}, err
	}
	iors := make([]cior.ComplexIOR, len(wls))
	for i, wl := range wls {
		iors[i] = ior.At(wl)
		if hasDrude && ctx.TemperatureK > 0 {
			if iors[i], err = drude.IOR(wl, ctx.TemperatureK); err != nil {
				return models.QueryResponse{}, err
			}
		}
	}

	f0 := ior.F0RGB()
	return models.QueryResponse{
		Values:        cior.Flatten(iors),
		WavelengthsNM: append([]float64(nil), wls...),
		Responses:     responses,
		Scalars:       map[string]float64{"f0_r": f0[0], "f0_g": f0[1], "f0_b": f0[2]},
	}, nil
}

func (p *QueryProcessor) thinFilmSpectrum(q models.Query, buf *models.BufferSet) (models.QueryResponse, error) {
	m, _, err := p.material(q)
	if err != nil {
		return models.QueryResponse{}, err
	}
	if m.Kind() != gooptcore.KindThinFilm {
		return models.QueryResponse{}, fmt.Errorf("thin film spectrum of a %s: %w", m.Kind(), gooptcore.ErrUnsupportedComposition)
	}
	ctx, err := p.context(q, q.WavelengthNM)
	if err != nil {
		return models.QueryResponse{}, err
	}
	illum, err := p.illuminant(q)
	if err != nil {
		return models.QueryResponse{}, err
	}
	def := spectral.VisibleGrid()
	if n := int(q.Param("samples", 0)); n > 0 {
		if n < 2 {
			return models.QueryResponse{}, fmt.Errorf("samples must be at least 2, got %d: %w", n, gooptcore.ErrParameterOutOfRange)
		}
		def = spectral.Grid(spectral.VisibleMinNM, spectral.VisibleMaxNM, n)
	}
	wls := grid(q, def, buf)
	responses, refl, err := p.sweep(m, ctx, wls, buf)
	if err != nil {
		return models.QueryResponse{}, err
	}

	peak := 0
	for i := range refl {
		if refl[i] > refl[peak] {
			peak = i
		}
	}
	out := models.QueryResponse{
		Values:        refl,
		WavelengthsNM: append([]float64(nil), wls...),
		Responses:     responses,
		Scalars:       map[string]float64{"peak_nm": wls[peak], "peak_reflectance": refl[peak]},
	}
	if len(wls) >= 2 {
		sig, err := spectral.NewSignal(out.WavelengthsNM, refl)
		if err != nil {
			return models.QueryResponse{}, err
		}
		c := spectral.ToSRGB(sig, illum)
		out.Color = c[:]
	}
	return out, nil
}

func (p *QueryProcessor) phaseFunction(q models.Query) (models.QueryResponse, error) {
	var (
		phase scattering.PhaseFunction
		err   error
	)
	switch {
	case q.Param("radius_um", 0) > 0:
		wl := q.WavelengthNM
		if wl == 0 {
			wl = defaultWavelengthNM
		}
		var params scattering.Params
		params, err = scattering.NewParams(q.Param("radius_um", 0), wl,
			cior.ComplexIOR{N: q.Param("n", 1.5), K: q.Param("k", 0)}, q.Param("medium_ior", 1))
		if err != nil {
			return models.QueryResponse{}, err
		}
		var eff scattering.Efficiencies
		if eff, err = params.Efficiencies(p.mie); err != nil {
			return models.QueryResponse{}, err
		}
		phase = params.Phase(eff)
	case q.Params["w"] != 0 || q.Params["g_back"] != 0:
		phase, err = scattering.DoubleHG(q.Param("g", 0.5), q.Param("g_back", -0.3), q.Param("w", 0.7))
	case q.Params["rayleigh"] != 0:
		phase = scattering.RayleighPhase
	default:
		phase, err = scattering.HG(q.Param("g", 0))
	}
	if err != nil {
		return models.QueryResponse{}, err
	}

	n := int(q.Param("samples", phaseSamples))
	if n < 2 {
		return models.QueryResponse{}, fmt.Errorf("samples must be at least 2, got %d: %w", n, gooptcore.ErrParameterOutOfRange)
	}
	cos := spectral.Grid(-1, 1, n)
	values := make([]float64, n)
	for i, c := range cos {
		values[i] = phase(c)
	}
	integral := scattering.IntegratePhase(phase)
	return models.QueryResponse{
		Values:    values,
		CosTheta:  cos,
		Scalars:   map[string]float64{"integral": integral, "mean_cosine": scattering.MeanCosine(phase)},
		Deviation: math.Abs(integral - 1),
	}, nil
}

func (p *QueryProcessor) listPresets(q models.Query) (models.QueryResponse, error) {
	var kind gooptcore.Kind
	if q.Material != nil {
		kind = q.Material.Kind
	}
	var names []string
	for _, n := range gooptcore.PresetNames() {
		if kind != "" {
			m, err := gooptcore.Preset(n)
			if err != nil || m.Kind() != kind {
				continue
			}
		}
		names = append(names, n)
	}
	return models.QueryResponse{Names: names}, nil
}
