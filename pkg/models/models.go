package models

import (
	"math"
	"time"

	"github.com/kacperjurak/gooptcore"
	"github.com/kacperjurak/gooptcore/pkg/cior"
)

// Action names a query operation
type Action string

const (
	ActionEvaluateBSDF        Action = "evaluate_bsdf"
	ActionSpectralRender      Action = "spectral_render"
	ActionCalculateDispersion Action = "calculate_dispersion"
	ActionComplexIOR          Action = "complex_ior"
	ActionThinFilmSpectrum    Action = "thin_film_spectrum"
	ActionPhaseFunction       Action = "phase_function"
	ActionListPresets         Action = "list_presets"
)

// Actions lists every supported action.
var Actions = []Action{
	ActionEvaluateBSDF,
	ActionSpectralRender,
	ActionCalculateDispersion,
	ActionComplexIOR,
	ActionThinFilmSpectrum,
	ActionPhaseFunction,
	ActionListPresets,
}

// MaterialSpec describes a material inline. Kind selects which fields apply;
// a non-empty Preset short-circuits everything else.
type MaterialSpec struct {
	Kind   gooptcore.Kind `json:"kind,omitempty"`
	Preset string         `json:"preset,omitempty"`

	// dielectric
	IOR        float64 `json:"ior,omitempty"`
	Dispersion string  `json:"dispersion,omitempty"`
	Roughness  float64 `json:"roughness,omitempty"`

	// conductor: a metal table name or explicit per-channel indices
	Metal string                   `json:"metal,omitempty"`
	RGB   *cior.SpectralComplexIOR `json:"rgb_ior,omitempty"`

	// thin film: a coating preset or a single film over Substrate
	Coating     string           `json:"coating,omitempty"`
	FilmIOR     float64          `json:"film_ior,omitempty"`
	ThicknessNM float64          `json:"thickness_nm,omitempty"`
	Substrate   *cior.ComplexIOR `json:"substrate,omitempty"`

	// lambertian and subsurface
	Albedo []float64 `json:"albedo,omitempty"`

	// subsurface
	RadiusUM       float64          `json:"radius_um,omitempty"`
	Particle       *cior.ComplexIOR `json:"particle,omitempty"`
	MediumIOR      float64          `json:"medium_ior,omitempty"`
	MeanFreePathMM float64          `json:"mean_free_path_mm,omitempty"`
	SlabMM         float64          `json:"slab_mm,omitempty"`

	// layered, top first
	Layers []MaterialSpec `json:"layers,omitempty"`
}

// Query is one request on the JSON surface
type Query struct {
	ID       string        `json:"id,omitempty"`
	Action   Action        `json:"action"`
	Preset   string        `json:"preset,omitempty"`
	Material *MaterialSpec `json:"material,omitempty"`
	// Params carries action-specific numbers, e.g. "g" for phase_function.
	Params        map[string]float64 `json:"params,omitempty"`
	AngleDeg      float64            `json:"angle_deg"`
	WavelengthNM  float64            `json:"wavelength_nm,omitempty"`
	WavelengthsNM []float64          `json:"wavelengths_nm,omitempty"`
	// Mode is "spectral" (default) or "rgb"; rgb averages 650, 550 and 450 nm.
	Mode          string             `json:"mode,omitempty"`
	Polarization  string             `json:"polarization,omitempty"`
	TemperatureK  float64            `json:"temperature_k,omitempty"`
	AmbientIOR    float64            `json:"ambient_ior,omitempty"`
	Illuminant    string             `json:"illuminant,omitempty"`
}

// Param returns q.Params[name] or def when absent.
func (q Query) Param(name string, def float64) float64 {
	if v, ok := q.Params[name]; ok {
		return v
	}
	return def
}

// QueryResponse is the answer to a Query. EnergyConserved and Deviation are
// computed from the returned responses; actions that return none report a
// zero deviation.
type QueryResponse struct {
	ID              string                   `json:"id,omitempty"`
	Action          Action                   `json:"action"`
	Values          []float64                `json:"values,omitempty"`
	WavelengthsNM   []float64                `json:"wavelengths_nm,omitempty"`
	CosTheta        []float64                `json:"cos_theta,omitempty"`
	Response        *gooptcore.BSDFResponse  `json:"response,omitempty"`
	Responses       []gooptcore.BSDFResponse `json:"responses,omitempty"`
	Scalars         map[string]float64       `json:"scalars,omitempty"`
	Color           []float64                `json:"color,omitempty"`
	CSS             string                   `json:"css,omitempty"`
	Names           []string                 `json:"names,omitempty"`
	EnergyConserved bool                     `json:"energy_conserved"`
	Deviation       float64                  `json:"deviation"`
	Error           string                   `json:"error,omitempty"`
}

// QueryBatch is a set of queries processed together
type QueryBatch struct {
	BatchID   string    `json:"batch_id"`
	Timestamp time.Time `json:"timestamp"`
	Queries   []Query   `json:"queries"`
}

// WorkItem represents a single query task
type WorkItem struct {
	ID        int
	RequestID string
	BatchID   string
	Query     Query
	StartTime time.Time
	// Reply receives the result. A nil Reply sends it to the pool's shared
	// results channel.
	Reply chan<- WorkResult
}

// WorkResult contains the result of a query
type WorkResult struct {
	ID             int
	RequestID      string
	BatchID        string
	Response       QueryResponse
	ProcessingTime time.Duration
	Success        bool
}

// QueryTiming tracks performance metrics for individual queries
type QueryTiming struct {
	Index          int           `json:"index"`
	Action         Action        `json:"action"`
	ProcessingTime time.Duration `json:"processing_time_ns"`
	Success        bool          `json:"success"`
	Conserved      bool          `json:"energy_conserved"`
}

// BatchReport is the webhook payload sent when a batch finishes
type BatchReport struct {
	BatchID    string          `json:"batch_id"`
	Time       string          `json:"time"`
	Total      int             `json:"total"`
	Failures   int             `json:"failures"`
	Violations int             `json:"violations"`
	DurationMS float64         `json:"duration_ms"`
	Results    []QueryResponse `json:"results"`
	Timings    []QueryTiming   `json:"timings"`
}

// BufferSet contains reusable buffers to reduce allocations
type BufferSet struct {
	Wavelengths []float64
	Values      []float64
}

// Sanitized returns a copy of r with non-finite numbers, which JSON cannot
// carry, replaced by zero.
func (r QueryResponse) Sanitized() QueryResponse {
	r.Values = sanitizeFloats(r.Values)
	r.Color = sanitizeFloats(r.Color)
	r.Deviation = sanitizeFloat(r.Deviation)
	if len(r.Scalars) > 0 {
		s := make(map[string]float64, len(r.Scalars))
		for k, v := range r.Scalars {
			s[k] = sanitizeFloat(v)
		}
		r.Scalars = s
	}
	if r.Response != nil {
		resp := sanitizeBSDF(*r.Response)
		r.Response = &resp
	}
	if r.Responses != nil {
		out := make([]gooptcore.BSDFResponse, len(r.Responses))
		for i, resp := range r.Responses {
			out[i] = sanitizeBSDF(resp)
		}
		r.Responses = out
	}
	return r
}

// Sanitized returns a copy of b whose results are sanitized.
func (b BatchReport) Sanitized() BatchReport {
	results := make([]QueryResponse, len(b.Results))
	for i, r := range b.Results {
		results[i] = r.Sanitized()
	}
	b.Results = results
	return b
}

func sanitizeBSDF(r gooptcore.BSDFResponse) gooptcore.BSDFResponse {
	r.Reflectance = sanitizeFloat(r.Reflectance)
	r.Transmittance = sanitizeFloat(r.Transmittance)
	r.Absorption = sanitizeFloat(r.Absorption)
	return r
}

func sanitizeFloats(in []float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = sanitizeFloat(v)
	}
	return out
}

func sanitizeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
