// Package render turns evaluated materials into CSS values. Colours are
// always produced by the spectral pipeline; nothing here picks a colour by
// hand.
package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/kacperjurak/gooptcore"
	"github.com/kacperjurak/gooptcore/pkg/opterr"
	"github.com/kacperjurak/gooptcore/pkg/spectral"
)

// DefaultAngles are the incidence angles sampled for gradient stops.
var DefaultAngles = []float64{0, 30, 60, 80}

// Stop is the appearance of a material at one viewing angle.
type Stop struct {
	AngleDeg float64                `json:"angle_deg"`
	Color    spectral.RGB           `json:"color"`
	Opacity  float64                `json:"opacity"`
	Response gooptcore.BSDFResponse `json:"response"`
}

// EvaluatedMaterial is what a Renderer consumes.
type EvaluatedMaterial struct {
	Name  string         `json:"name"`
	Kind  gooptcore.Kind `json:"kind"`
	Stops []Stop         `json:"stops"`
}

// RenderContext controls sampling and output.
type RenderContext struct {
	// Illuminant defaults to D65.
	Illuminant spectral.Spectrum
	// Angles defaults to DefaultAngles.
	Angles []float64
	// DirectionDeg is the CSS gradient direction.
	DirectionDeg float64
	Evaluator    *gooptcore.Evaluator
}

func (rc RenderContext) angles() []float64 {
	if len(rc.Angles) == 0 {
		return DefaultAngles
	}
	return rc.Angles
}

// Evaluate runs m through the spectral pipeline at each angle of rc.
func Evaluate(name string, m gooptcore.Material, rc RenderContext) (EvaluatedMaterial, error) {
	if m == nil {
		return EvaluatedMaterial{}, fmt.Errorf("render %q: %w", name, opterr.ErrUnsupportedComposition)
	}
	out := EvaluatedMaterial{Name: name, Kind: m.Kind()}
	for _, angle := range rc.angles() {
		ctx, err := gooptcore.NewContext(angle, 550)
		if err != nil {
			return EvaluatedMaterial{}, err
		}
		p := &gooptcore.Pipeline{
			Stages:     []gooptcore.Stage{gooptcore.MaterialStage{Material: m}},
			Illuminant: rc.Illuminant,
			Context:    ctx,
			Evaluator:  rc.Evaluator,
		}
		res, err := p.Run()
		if err != nil {
			return EvaluatedMaterial{}, fmt.Errorf("render %q at %g°: %w", name, angle, err)
		}
		out.Stops = append(out.Stops, StopFrom(angle, res))
	}
	return out, nil
}

// FromResponse wraps a single response as a neutral stop.
func FromResponse(name string, r gooptcore.BSDFResponse) EvaluatedMaterial {
	v := spectral.EncodeSRGB(math.Min(1, math.Max(0, r.Reflectance)))
	return EvaluatedMaterial{
		Name:  name,
		Stops: []Stop{{Color: spectral.RGB{v, v, v}, Opacity: 1 - r.Transmittance, Response: r}},
	}
}

// StopFrom averages a pipeline result over its grid into one stop.
func StopFrom(angle float64, res gooptcore.PipelineResult) Stop {
	n := float64(len(res.Wavelengths))
	var r gooptcore.BSDFResponse
	for i := range res.Wavelengths {
		r.Reflectance += res.Reflectance[i] / n
		r.Transmittance += res.Transmittance[i] / n
		r.Absorption += res.Absorption[i] / n
	}
	return Stop{AngleDeg: angle, Color: res.SRGB, Opacity: 1 - r.Transmittance, Response: r}
}

// Renderer formats an evaluated material.
type Renderer interface {
	Render(m EvaluatedMaterial, rc RenderContext) (string, error)
}

// CSSRenderer writes an rgba() colour for one stop and a linear-gradient()
// from normal to grazing incidence otherwise.
type CSSRenderer struct{}

func (CSSRenderer) Render(m EvaluatedMaterial, rc RenderContext) (string, error) {
	if len(m.Stops) == 0 {
		return "", fmt.Errorf("render %q: no stops: %w", m.Name, opterr.ErrParameterOutOfRange)
	}
	for _, s := range m.Stops {
		if err := opterr.Finite("render "+m.Name, s.Color[0], s.Color[1], s.Color[2], s.Opacity); err != nil {
			return "", err
		}
	}
	if len(m.Stops) == 1 {
		return rgba(m.Stops[0]), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "linear-gradient(%gdeg", rc.DirectionDeg)
	last := len(m.Stops) - 1
	for i, s := range m.Stops {
		fmt.Fprintf(&b, ", %s %.1f%%", rgba(s), 100*float64(i)/float64(last))
	}
	b.WriteString(")")
	return b.String(), nil
}

func rgba(s Stop) string {
	c := s.Color.Clamp().Bytes()
	a := math.Min(1, math.Max(0, s.Opacity))
	return fmt.Sprintf("rgba(%d, %d, %d, %.3f)", c[0], c[1], c[2], a)
}
