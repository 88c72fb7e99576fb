package gooptcore

import (
	"fmt"
	"sort"

	"github.com/kacperjurak/gooptcore/pkg/cior"
	"github.com/kacperjurak/gooptcore/pkg/dispersion"
	"github.com/kacperjurak/gooptcore/pkg/opterr"
	"github.com/kacperjurak/gooptcore/pkg/scattering"
	"github.com/kacperjurak/gooptcore/pkg/thinfilm"
)

func dielectricPreset(name string, roughness float64) func() (Material, error) {
	return func() (Material, error) {
		m, err := dispersion.Preset(name)
		if err != nil {
			return nil, err
		}
		return NewDispersiveDielectric(m, roughness)
	}
}

func conductorPreset(name string, roughness float64) func() (Material, error) {
	return func() (Material, error) {
		ior, err := cior.Preset(name)
		if err != nil {
			return nil, err
		}
		c := Conductor{IOR: ior, Roughness: roughness}
		if d, ok := cior.DrudePreset(name); ok {
			c.Drude = &d
		}
		return c, c.Validate()
	}
}

func coatingPreset(name string) func() (Material, error) {
	return func() (Material, error) {
		c, err := thinfilm.Preset(name)
		if err != nil {
			return nil, err
		}
		t := FromCoating(c)
		return t, t.Validate()
	}
}

func subsurfacePreset(radiusUM float64, particle cior.ComplexIOR, medium float64, albedo [3]float64, mfpMM float64) func() (Material, error) {
	return func() (Material, error) {
		p, err := scattering.NewParams(radiusUM, 550, particle, medium)
		if err != nil {
			return nil, err
		}
		return NewSubsurface(p, albedo, mfpMM)
	}
}

var materialPresets = map[string]func() (Material, error){
	"glass":         dielectricPreset("crown-glass", 0),
	"frosted-glass": dielectricPreset("crown-glass", 0.6),
	"flint-glass":   dielectricPreset("flint-glass", 0),
	"fused-silica":  dielectricPreset("fused-silica", 0),
	"sapphire":      dielectricPreset("sapphire", 0),
	"diamond":       dielectricPreset("diamond", 0),
	"water":         dielectricPreset("water", 0),

	"gold":             conductorPreset("gold", 0),
	"silver":           conductorPreset("silver", 0),
	"copper":           conductorPreset("copper", 0),
	"aluminum":         conductorPreset("aluminum", 0),
	"brushed-aluminum": conductorPreset("aluminum", 0.4),
	"iron":             conductorPreset("iron", 0.2),
	"platinum":         conductorPreset("platinum", 0),
	"titanium":         conductorPreset("titanium", 0.1),
	"chromium":         conductorPreset("chromium", 0),
	"nickel":           conductorPreset("nickel", 0),

	"soap-bubble":  coatingPreset("soap-bubble"),
	"oil-slick":    coatingPreset("oil-slick"),
	"ar-coating":   coatingPreset("ar-coating"),
	"broadband-ar": coatingPreset("broadband-ar"),
	"morpho":       coatingPreset("morpho"),
	"beetle-shell": coatingPreset("beetle-shell"),
	"nacre":        coatingPreset("nacre"),
	"bragg-mirror": coatingPreset("bragg-mirror"),

	"paper": func() (Material, error) { return NewLambertian(0.82, 0.83, 0.80) },
	"chalk": func() (Material, error) { return NewLambertian(0.93, 0.93, 0.91) },

	"milk":   subsurfacePreset(0.5, cior.ComplexIOR{N: 1.46}, 1.33, [3]float64{0.9995, 0.9993, 0.999}, 0.4),
	"skin":   subsurfacePreset(0.3, cior.ComplexIOR{N: 1.44}, 1.40, [3]float64{0.97, 0.85, 0.75}, 0.8),
	"marble": subsurfacePreset(1.0, cior.ComplexIOR{N: 1.66}, 1.50, [3]float64{0.999, 0.998, 0.996}, 2.2),

	"clear-coat-paint": func() (Material, error) {
		coat, err := NewDielectric(1.5, 0)
		if err != nil {
			return nil, err
		}
		base, err := NewLambertian(0.6, 0.08, 0.06)
		if err != nil {
			return nil, err
		}
		return NewLayered(coat, base)
	},
	"lacquered-gold": func() (Material, error) {
		coat, err := NewDielectric(1.5, 0)
		if err != nil {
			return nil, err
		}
		return NewLayered(coat, Conductor{IOR: cior.Gold()})
	},
}

// Preset returns a named material.
func Preset(name string) (Material, error) {
	f, ok := materialPresets[name]
	if !ok {
		return nil, fmt.Errorf("unknown material preset %q: %w", name, opterr.ErrParameterOutOfRange)
	}
	return f()
}

// PresetNames lists the material presets in order.
func PresetNames() []string {
	names := make([]string, 0, len(materialPresets))
	for n := range materialPresets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
