package scattering

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/gooptcore/pkg/cior"
	"github.com/kacperjurak/gooptcore/pkg/opterr"
)

func TestHenyeyGreensteinNormalised(t *testing.T) {
	for g := -0.9; g <= 0.9+1e-9; g += 0.1 {
		p, err := HG(g)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, IntegratePhase(p), 0.01, "g=%.1f", g)
		assert.NoError(t, CheckNormalised(p, 0.01))
		assert.InDelta(t, g, MeanCosine(p), 0.01, "g=%.1f", g)
	}
}

func TestHGRejectsDegenerateAsymmetry(t *testing.T) {
	for _, g := range []float64{-1, 1, 1.5, math.NaN()} {
		_, err := HG(g)
		assert.True(t, errors.Is(err, opterr.ErrParameterOutOfRange), "g=%v", g)
	}
}

func TestDoubleHG(t *testing.T) {
	p, err := DoubleHG(0.8, -0.3, 0.7)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, IntegratePhase(p), 0.01)
	assert.InDelta(t, DoubleHGAsymmetry(0.8, -0.3, 0.7), MeanCosine(p), 0.01)

	_, err = DoubleHG(0.8, -0.3, 1.2)
	assert.True(t, errors.Is(err, opterr.ErrParameterOutOfRange))
}

func TestRayleighPhase(t *testing.T) {
	assert.InDelta(t, 1.0, IntegratePhase(RayleighPhase), 1e-9)
	assert.InDelta(t, 0.0, MeanCosine(RayleighPhase), 1e-9)
	assert.InDelta(t, RayleighPhase(1), RayleighPhase(-1), 1e-15)
	assert.Greater(t, RayleighPhase(1), RayleighPhase(0))
}

func TestRayleighIntensityIsBlueHeavy(t *testing.T) {
	rgb := RayleighIntensityRGB(0.3)
	assert.Greater(t, rgb[2], rgb[1])
	assert.Greater(t, rgb[1], rgb[0])
	assert.InDelta(t, RayleighPhase(0.3), rgb[1], 1e-15)
}

func TestMieApproachesRayleighForSmallSpheres(t *testing.T) {
	m := complex(1.5, 0)
	x := 0.05
	mie, err := Mie(x, m)
	require.NoError(t, err)
	ray := Rayleigh(x, m)
	assert.InEpsilon(t, ray.Sca, mie.Sca, 0.01)
	assert.InDelta(t, 0, mie.G, 0.01)
	assert.InDelta(t, 0, mie.Abs, 1e-12)
}

func TestMieLargeSphereExtinctionParadox(t *testing.T) {
	e, err := Mie(100, complex(1.33, 0))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, e.Ext, 0.2)
	assert.InDelta(t, e.Ext, e.Sca, 1e-6)
	assert.Greater(t, e.G, 0.7)
	assert.Less(t, e.G, 0.95)
}

func TestMieAbsorbingSphere(t *testing.T) {
	e, err := Mie(5, complex(1.5, 0.1))
	require.NoError(t, err)
	assert.Greater(t, e.Abs, 0.0)
	assert.Greater(t, e.Ext, e.Sca)
	assert.Less(t, e.Albedo(), 1.0)
}

func TestMieRejectsBadInput(t *testing.T) {
	_, err := Mie(0, 1.5)
	assert.True(t, errors.Is(err, opterr.ErrParameterOutOfRange))
	_, err = Mie(1, complex(1.5, -0.1))
	assert.True(t, errors.Is(err, opterr.ErrParameterOutOfRange))
}

func TestSizeParameterRouting(t *testing.T) {
	water := cior.ComplexIOR{N: 1.33}

	p, err := NewParams(0.5, 500, cior.ComplexIOR{N: 1.5}, 1.33)
	require.NoError(t, err)
	assert.InDelta(t, 2*math.Pi*500*1.33/500, p.SizeParameter(), 1e-12)
	assert.Equal(t, RegimeMie, p.Regime())

	small, err := NewParams(0.01, 550, water, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, small.MediumIOR)
	assert.Equal(t, RegimeRayleigh, small.Regime())
	assert.Equal(t, "rayleigh", small.Regime().String())

	e, err := small.Efficiencies(nil)
	require.NoError(t, err)
	assert.Equal(t, Rayleigh(small.SizeParameter(), small.RelativeIOR()), e)

	e, err = p.Efficiencies(nil)
	require.NoError(t, err)
	want, err := Mie(p.SizeParameter(), p.RelativeIOR())
	require.NoError(t, err)
	assert.Equal(t, want, e)
}

type countingSource struct{ calls int }

func (c *countingSource) Efficiencies(x float64, m complex128) (Efficiencies, error) {
	c.calls++
	return Efficiencies{Ext: 2, Sca: 2, G: 0.5}, nil
}

func TestEfficienciesUsesSuppliedSourceOnlyForMie(t *testing.T) {
	src := &countingSource{}
	small, _ := NewParams(0.01, 550, cior.ComplexIOR{N: 1.5}, 1)
	_, err := small.Efficiencies(src)
	require.NoError(t, err)
	assert.Equal(t, 0, src.calls)

	big, _ := NewParams(2, 550, cior.ComplexIOR{N: 1.5}, 1)
	e, err := big.Efficiencies(src)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 0.5, e.G)
}

func TestParamsValidate(t *testing.T) {
	_, err := NewParams(-1, 550, cior.ComplexIOR{N: 1.5}, 1)
	assert.True(t, errors.Is(err, opterr.ErrParameterOutOfRange))
	_, err = NewParams(1, 0, cior.ComplexIOR{N: 1.5}, 1)
	assert.True(t, errors.Is(err, opterr.ErrParameterOutOfRange))
	_, err = NewParams(1, 550, cior.ComplexIOR{N: 1.5, K: -1}, 1)
	assert.True(t, errors.Is(err, opterr.ErrParameterOutOfRange))
}

func TestPhaseMatchesRegime(t *testing.T) {
	small, _ := NewParams(0.01, 550, cior.ComplexIOR{N: 1.5}, 1)
	assert.InDelta(t, RayleighPhase(0.2), small.Phase(Efficiencies{})(0.2), 1e-15)

	big, _ := NewParams(2, 550, cior.ComplexIOR{N: 1.5}, 1)
	p := big.Phase(Efficiencies{G: 0.85})
	assert.InDelta(t, 1.0, IntegratePhase(p), 0.01)
}
