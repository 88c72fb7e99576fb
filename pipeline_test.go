package gooptcore

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/gooptcore/pkg/cior"
	"github.com/kacperjurak/gooptcore/pkg/scattering"
	"github.com/kacperjurak/gooptcore/pkg/spectral"
)

func TestPipelineColourRoundTrip(t *testing.T) {
	illum := spectral.D65()
	up, err := spectral.NewUpsampler(illum)
	require.NoError(t, err)
	white := spectral.WhitePoint(illum)

	for _, encoded := range []spectral.RGB{
		{0.5, 0.5, 0.5},
		{0.6, 0.45, 0.3},
		{0.3, 0.5, 0.4},
	} {
		p := NewPipeline(ReflectorStage{Reflectance: up.FromSRGB(encoded)})
		res, err := p.Run()
		require.NoError(t, err)

		dE := spectral.DeltaE76(
			spectral.XYZToLab(spectral.LinearSRGBToXYZ(encoded.Decode()), white),
			spectral.XYZToLab(res.XYZ, white),
		)
		assert.Less(t, dE, 2.0, "colour %v came back as %v", encoded, res.SRGB)
		assert.Len(t, res.Reflectance, spectral.VisibleSamples)
	}
}

func TestPipelineStacksStages(t *testing.T) {
	coat, err := NewDielectric(1.5, 0)
	require.NoError(t, err)
	p := NewPipeline(
		MaterialStage{Material: coat},
		AbsorberStage{Coefficient: spectral.Constant(1), ThicknessMM: 0.5},
		ReflectorStage{Reflectance: spectral.Constant(0.8)},
	)
	res, err := p.Run()
	require.NoError(t, err)

	tr := math.Exp(-0.5)
	for i := range res.Wavelengths {
		assert.InDelta(t, 0.04+0.96*tr*0.8, res.Reflectance[i], 1e-3)
		assert.Equal(t, 0.0, res.Transmittance[i])
	}

	d, err := p.VerifyEnergyConservation()
	require.NoError(t, err)
	assert.Less(t, d, DefaultEpsilon)
}

func TestParticleStageScattersBlue(t *testing.T) {
	haze, err := scattering.NewParams(0.01, 550, cior.ComplexIOR{N: 1.5}, 1)
	require.NoError(t, err)
	p := NewPipeline(ParticleStage{Particles: haze, OpticalDepth550: 0.3})
	res, err := p.Run()
	require.NoError(t, err)

	first, last := 0, len(res.Wavelengths)-1
	assert.Greater(t, res.Reflectance[first], 2*res.Reflectance[last])
	assert.Less(t, res.Transmittance[first], res.Transmittance[last])
	// Rayleigh scattering splits evenly and a real index absorbs nothing.
	for i := range res.Wavelengths {
		assert.InDelta(t, 0.0, res.Absorption[i], 1e-12)
	}
	assert.Less(t, res.MaxDeviation(), DefaultEpsilon)
	assert.Greater(t, res.SRGB[2], res.SRGB[0])
}

func TestPipelineErrors(t *testing.T) {
	_, err := NewPipeline().Run()
	assert.True(t, errors.Is(err, ErrUnsupportedComposition))

	_, err = NewPipeline(ReflectorStage{Reflectance: spectral.Constant(1.5)}).Run()
	assert.True(t, errors.Is(err, ErrParameterOutOfRange))

	_, err = NewPipeline(MaterialStage{Material: Layered{}}).Run()
	assert.True(t, errors.Is(err, ErrUnsupportedComposition))

	p := &Pipeline{
		Stages:      []Stage{ReflectorStage{Reflectance: spectral.Constant(0.5)}},
		Wavelengths: []float64{300, 400},
	}
	_, err = p.Run()
	assert.True(t, errors.Is(err, ErrParameterOutOfRange))
}

func TestPipelineZeroContextIsNormalIncidence(t *testing.T) {
	glass, err := NewDielectric(1.5, 0)
	require.NoError(t, err)
	p := &Pipeline{Stages: []Stage{MaterialStage{Material: glass}}}
	res, err := p.Run()
	require.NoError(t, err)
	assert.InDelta(t, 0.04, res.Reflectance[0], 1e-12)
}
