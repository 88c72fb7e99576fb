package processing

import (
	"fmt"

	"github.com/kacperjurak/gooptcore"
	"github.com/kacperjurak/gooptcore/pkg/cior"
	"github.com/kacperjurak/gooptcore/pkg/dispersion"
	"github.com/kacperjurak/gooptcore/pkg/models"
	"github.com/kacperjurak/gooptcore/pkg/scattering"
	"github.com/kacperjurak/gooptcore/pkg/thinfilm"
)

// BuildMaterial turns an inline description into a validated material.
func BuildMaterial(s models.MaterialSpec) (gooptcore.Material, error) {
	if s.Preset != "" {
		return gooptcore.Preset(s.Preset)
	}
	var (
		m   gooptcore.Material
		err error
	)
	switch s.Kind {
	case gooptcore.KindDielectric:
		m, err = dielectric(s)
	case gooptcore.KindConductor:
		m, err = conductor(s)
	case gooptcore.KindThinFilm:
		m, err = thinFilm(s)
	case gooptcore.KindLambertian:
		var a [3]float64
		if a, err = albedo(s.Albedo); err == nil {
			m, err = gooptcore.NewLambertian(a[0], a[1], a[2])
		}
	case gooptcore.KindSubsurface:
		m, err = subsurface(s)
	case gooptcore.KindLayered:
		m, err = layered(s)
	default:
		return nil, fmt.Errorf("material kind %q: %w", s.Kind, gooptcore.ErrUnsupportedComposition)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func dielectric(s models.MaterialSpec) (gooptcore.Material, error) {
	if s.Dispersion != "" {
		model, err := dispersion.Preset(s.Dispersion)
		if err != nil {
			return nil, err
		}
		return gooptcore.NewDispersiveDielectric(model, s.Roughness)
	}
	return gooptcore.NewDielectric(s.IOR, s.Roughness)
}

func conductor(s models.MaterialSpec) (gooptcore.Material, error) {
	var ior cior.SpectralComplexIOR
	switch {
	case s.Metal != "":
		var err error
		if ior, err = cior.Preset(s.Metal); err != nil {
			return nil, err
		}
	case s.RGB != nil:
		ior = *s.RGB
	default:
		return nil, fmt.Errorf("conductor needs metal or rgb_ior: %w", gooptcore.ErrParameterOutOfRange)
	}
	c, err := gooptcore.NewConductor(ior, s.Roughness)
	if err != nil {
		return nil, err
	}
	if d, ok := cior.DrudePreset(s.Metal); ok {
		c.Drude = &d
	}
	return c, nil
}

func thinFilm(s models.MaterialSpec) (gooptcore.Material, error) {
	if s.Coating != "" {
		c, err := thinfilm.Preset(s.Coating)
		if err != nil {
			return nil, err
		}
		return gooptcore.FromCoating(c), nil
	}
	// A free-standing film sits in air.
	sub := cior.ComplexIOR{N: 1}
	if s.Substrate != nil {
		sub = *s.Substrate
	}
	return gooptcore.NewThinFilm(s.FilmIOR, s.ThicknessNM, sub)
}

func subsurface(s models.MaterialSpec) (gooptcore.Material, error) {
	if s.Particle == nil {
		return nil, fmt.Errorf("subsurface needs a particle index: %w", gooptcore.ErrParameterOutOfRange)
	}
	a, err := albedo(s.Albedo)
	if err != nil {
		return nil, err
	}
	p, err := scattering.NewParams(s.RadiusUM, 550, *s.Particle, s.MediumIOR)
	if err != nil {
		return nil, err
	}
	m, err := gooptcore.NewSubsurface(p, a, s.MeanFreePathMM)
	if err != nil {
		return nil, err
	}
	m.ThicknessMM = s.SlabMM
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func layered(s models.MaterialSpec) (gooptcore.Material, error) {
	layers := make([]gooptcore.Material, len(s.Layers))
	for i, l := range s.Layers {
		m, err := BuildMaterial(l)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layers[i] = m
	}
	return gooptcore.NewLayered(layers...)
}

// albedo accepts one grey value or three channel values.
func albedo(v []float64) ([3]float64, error) {
	switch len(v) {
	case 1:
		return [3]float64{v[0], v[0], v[0]}, nil
	case 3:
		return [3]float64{v[0], v[1], v[2]}, nil
	}
	return [3]float64{}, fmt.Errorf("albedo needs 1 or 3 values, got %d: %w", len(v), gooptcore.ErrParameterOutOfRange)
}
