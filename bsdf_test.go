package gooptcore

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/gooptcore/pkg/cior"
	"github.com/kacperjurak/gooptcore/pkg/fresnel"
	"github.com/kacperjurak/gooptcore/pkg/lut"
	"github.com/kacperjurak/gooptcore/pkg/scattering"
	"github.com/kacperjurak/gooptcore/pkg/thinfilm"
)

func mustContext(t *testing.T, angleDeg, wavelengthNM float64) EvaluationContext {
	t.Helper()
	ctx, err := NewContext(angleDeg, wavelengthNM)
	require.NoError(t, err)
	return ctx
}

func TestEveryPresetConservesEnergy(t *testing.T) {
	kinds := map[Kind]bool{}
	for _, policy := range []LayeredPolicy{LayeredPolicySingleBounce, LayeredPolicyMultiBounce} {
		e := NewEvaluator(WithLayeredPolicy(policy))
		for _, name := range PresetNames() {
			m, err := Preset(name)
			require.NoError(t, err, name)
			kinds[m.Kind()] = true
			for angle := 0.0; angle < 90; angle += 1 {
				for _, wl := range []float64{400, 550, 700} {
					ctx := mustContext(t, angle, wl)
					raw, err := e.evaluate(m, ctx)
					require.NoError(t, err, "%s at %v° %v nm", name, angle, wl)
					for _, v := range raw.Array() {
						require.GreaterOrEqual(t, v, 0.0, "%s at %v° %v nm: %+v", name, angle, wl, raw)
						require.LessOrEqual(t, v, 1.0, "%s at %v° %v nm: %+v", name, angle, wl, raw)
					}
					d := raw.Diagnose(DefaultEpsilon)
					require.True(t, d.Conserved, "%s (%s) at %v° %v nm: %+v", name, policy, angle, wl, d)

					resp, err := e.Evaluate(m, ctx)
					require.NoError(t, err)
					require.Equal(t, raw, resp)
				}
			}
		}
	}
	for _, k := range []Kind{KindDielectric, KindConductor, KindThinFilm, KindLayered, KindLambertian, KindSubsurface} {
		assert.True(t, kinds[k], "no preset of kind %s", k)
	}
}

func TestDielectricAtNormalIncidence(t *testing.T) {
	glass, err := NewDielectric(1.5, 0)
	require.NoError(t, err)

	resp, err := Evaluate(glass, mustContext(t, 0, 550))
	require.NoError(t, err)
	assert.InDelta(t, 0.04, resp.Reflectance, 1e-12)
	assert.InDelta(t, 0.96, resp.Transmittance, 1e-12)
	assert.InDelta(t, 0.0, resp.Absorption, 1e-12)
}

func TestDielectricBrewsterAndAmbient(t *testing.T) {
	glass, err := NewDielectric(1.5, 0)
	require.NoError(t, err)

	ctx := mustContext(t, fresnel.BrewsterAngle(1, 1.5)*180/math.Pi, 550).WithPolarization(fresnel.P)
	resp, err := Evaluate(glass, ctx)
	require.NoError(t, err)
	assert.Less(t, resp.Reflectance, 1e-12)

	inWater, err := mustContext(t, 0, 550).WithAmbient(1.33)
	require.NoError(t, err)
	resp, err = Evaluate(glass, inWater)
	require.NoError(t, err)
	assert.Less(t, resp.Reflectance, 0.01)
}

func TestDispersionChangesReflectance(t *testing.T) {
	m, err := Preset("diamond")
	require.NoError(t, err)
	blue, err := Evaluate(m, mustContext(t, 0, 420))
	require.NoError(t, err)
	red, err := Evaluate(m, mustContext(t, 0, 680))
	require.NoError(t, err)
	assert.Greater(t, blue.Reflectance, red.Reflectance)
}

func TestRoughnessRaisesNormalReflectance(t *testing.T) {
	smooth, err := NewDielectric(1.5, 0)
	require.NoError(t, err)
	rough, err := NewDielectric(1.5, 1)
	require.NoError(t, err)

	ctx := mustContext(t, 0, 550)
	rs, err := Evaluate(smooth, ctx)
	require.NoError(t, err)
	rr, err := Evaluate(rough, ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.092, rr.Reflectance, 0.005)
	assert.Greater(t, rr.Reflectance, rs.Reflectance)
}

func TestFresnelLUTMatchesClosedForm(t *testing.T) {
	glass, err := NewDielectric(1.33, 0)
	require.NoError(t, err)
	exact := NewEvaluator()
	tabled := NewEvaluator(WithCache(lut.New(lut.Options{})), WithFresnelLUT(true))

	for _, angle := range []float64{0, 20, 45, 70} {
		ctx := mustContext(t, angle, 550)
		a, err := exact.Evaluate(glass, ctx)
		require.NoError(t, err)
		b, err := tabled.Evaluate(glass, ctx)
		require.NoError(t, err)
		assert.InDelta(t, a.Reflectance, b.Reflectance, 5e-3, "angle %v", angle)
	}
	assert.Equal(t, int64(1), tabled.Cache().Stats().Builds)
}

func TestFresnelLUTLeavesDenserAmbientToClosedForm(t *testing.T) {
	air := Dielectric{IOR: 1.0}
	exact := NewEvaluator()
	tabled := NewEvaluator(WithCache(lut.New(lut.Options{})), WithFresnelLUT(true))

	// Critical angle for 1.5 -> 1.0 is about 41.8°.
	for _, angle := range []float64{0, 30, 40, 41, 41.5, 41.8, 42, 45, 60, 85} {
		ctx, err := mustContext(t, angle, 550).WithAmbient(1.5)
		require.NoError(t, err)
		a, err := exact.Evaluate(air, ctx)
		require.NoError(t, err)
		b, err := tabled.Evaluate(air, ctx)
		require.NoError(t, err)
		assert.InDelta(t, a.Reflectance, b.Reflectance, 1e-9, "angle %v", angle)
	}
	assert.Equal(t, int64(0), tabled.Cache().Stats().Builds)
}

func TestConductorIsOpaque(t *testing.T) {
	gold, err := NewConductor(cior.Gold(), 0)
	require.NoError(t, err)

	rgb, err := NewEvaluator().EvaluateRGB(gold, mustContext(t, 0, 550))
	require.NoError(t, err)
	for _, r := range rgb {
		assert.Equal(t, 0.0, r.Transmittance)
		assert.InDelta(t, 1.0, r.Reflectance+r.Absorption, 1e-12)
	}
	assert.InDelta(t, 0.96, rgb[0].Reflectance, 0.02)
	assert.Greater(t, rgb[0].Reflectance, rgb[2].Reflectance)
}

func TestRGBModeAveragesSamples(t *testing.T) {
	gold, err := NewConductor(cior.Gold(), 0)
	require.NoError(t, err)
	e := NewEvaluator()
	ctx := mustContext(t, 20, 700).WithMode(ModeRGB)

	samples, err := e.EvaluateRGB(gold, ctx)
	require.NoError(t, err)
	var want BSDFResponse
	for _, r := range samples {
		want.Reflectance += r.Reflectance / 3
		want.Absorption += r.Absorption / 3
	}

	got, err := e.Evaluate(gold, ctx)
	require.NoError(t, err)
	assert.InDelta(t, want.Reflectance, got.Reflectance, 1e-12)
	assert.InDelta(t, want.Absorption, got.Absorption, 1e-12)
	assert.Equal(t, []float64{650, 550, 450}, ctx.Samples())

	single, err := e.Evaluate(gold, ctx.WithMode(ModeSpectral))
	require.NoError(t, err)
	assert.NotEqual(t, single.Reflectance, got.Reflectance)

	mode, err := ParseMode("RGB")
	require.NoError(t, err)
	assert.Equal(t, ModeRGB, mode)
	_, err = ParseMode("cmyk")
	assert.True(t, errors.Is(err, ErrParameterOutOfRange))
}

func TestConductorFollowsTemperature(t *testing.T) {
	m, err := Preset("gold")
	require.NoError(t, err)
	base := mustContext(t, 0, 650)

	cold, err := base.WithTemperature(293)
	require.NoError(t, err)
	hot, err := base.WithTemperature(1200)
	require.NoError(t, err)

	rc, err := Evaluate(m, cold)
	require.NoError(t, err)
	rh, err := Evaluate(m, hot)
	require.NoError(t, err)
	assert.Less(t, rh.Reflectance, rc.Reflectance)
	assert.Greater(t, rh.Absorption, rc.Absorption)

	_, err = base.WithTemperature(-5)
	assert.True(t, errors.Is(err, ErrParameterOutOfRange))
}

func TestThinFilmOnAbsorbingSubstrateTransmitsNothing(t *testing.T) {
	tf, err := NewThinFilm(1.38, 100, cior.ComplexIOR{N: 0.27, K: 2.86})
	require.NoError(t, err)
	resp, err := Evaluate(tf, mustContext(t, 30, 550))
	require.NoError(t, err)
	assert.Equal(t, 0.0, resp.Transmittance)
	assert.Greater(t, resp.Absorption, 0.0)
}

func TestThinFilmARBeatsBareGlass(t *testing.T) {
	ar, err := Preset("ar-coating")
	require.NoError(t, err)
	bare, err := NewDielectric(1.52, 0)
	require.NoError(t, err)

	ctx := mustContext(t, 0, 550)
	ra, err := Evaluate(ar, ctx)
	require.NoError(t, err)
	rb, err := Evaluate(bare, ctx)
	require.NoError(t, err)
	assert.Less(t, ra.Reflectance, rb.Reflectance/3)
}

func TestThinFilmMultilayerUsesTransferMatrix(t *testing.T) {
	stack, err := thinfilm.BraggMirror(2.4, 1.46, 550, 8)
	require.NoError(t, err)
	m := ThinFilm{Stack: stack, Substrate: cior.ComplexIOR{N: 1.52}}
	resp, err := Evaluate(m, mustContext(t, 0, 550))
	require.NoError(t, err)
	assert.Greater(t, resp.Reflectance, 0.99)
}

func TestLambertianFollowsAlbedo(t *testing.T) {
	l, err := NewLambertian(0.8, 0.5, 0.2)
	require.NoError(t, err)
	for wl, want := range map[float64]float64{650: 0.8, 550: 0.5, 450: 0.2, 600: 0.65, 400: 0.2, 750: 0.8} {
		resp, err := Evaluate(l, mustContext(t, 60, wl))
		require.NoError(t, err)
		assert.InDelta(t, want, resp.Reflectance, 1e-12, "%v nm", wl)
		assert.InDelta(t, 1-want, resp.Absorption, 1e-12)
	}
}

func TestSubsurface(t *testing.T) {
	particles, err := scattering.NewParams(0.5, 550, cior.ComplexIOR{N: 1.46}, 1.33)
	require.NoError(t, err)

	white, err := NewSubsurface(particles, [3]float64{0.9999, 0.9999, 0.9999}, 0.5)
	require.NoError(t, err)
	dark, err := NewSubsurface(particles, [3]float64{0.9, 0.9, 0.9}, 0.5)
	require.NoError(t, err)

	ctx := mustContext(t, 0, 550)
	rw, err := Evaluate(white, ctx)
	require.NoError(t, err)
	rd, err := Evaluate(dark, ctx)
	require.NoError(t, err)
	assert.Greater(t, rw.Reflectance, 0.5)
	assert.Less(t, rd.Reflectance, rw.Reflectance)
	assert.Equal(t, 0.0, rw.Transmittance)

	slab := white
	slab.ThicknessMM = 0.2
	rs, err := Evaluate(slab, ctx)
	require.NoError(t, err)
	assert.Greater(t, rs.Transmittance, 0.0)
	assert.Less(t, rs.Reflectance, rw.Reflectance)
	assert.True(t, rs.Conserves(DefaultEpsilon))

	exact, err := NewEvaluator(WithExactMie(true)).Evaluate(white, ctx)
	require.NoError(t, err)
	assert.InDelta(t, exact.Reflectance, rw.Reflectance, 0.01)
}

func TestDiffuseReflectanceLimits(t *testing.T) {
	assert.InDelta(t, 1.0, diffuseReflectance(1, 1.33), 1e-12)
	assert.Equal(t, 0.0, diffuseReflectance(0, 1.33))
	assert.Less(t, diffuseReflectance(0.9, 1.33), diffuseReflectance(0.99, 1.33))
}

func TestEvaluateValidates(t *testing.T) {
	_, err := NewDielectric(0.9, 0)
	assert.True(t, errors.Is(err, ErrParameterOutOfRange))
	_, err = NewLambertian(1.2, 0, 0)
	assert.True(t, errors.Is(err, ErrParameterOutOfRange))

	_, err = NewContext(95, 550)
	assert.True(t, errors.Is(err, ErrParameterOutOfRange))
	_, err = NewContext(10, 200)
	assert.True(t, errors.Is(err, ErrParameterOutOfRange))

	// Invalid struct literals are caught at evaluation.
	_, err = Evaluate(Dielectric{IOR: 0.5}, mustContext(t, 0, 550))
	assert.True(t, errors.Is(err, ErrParameterOutOfRange))
	_, err = Evaluate(nil, mustContext(t, 0, 550))
	assert.True(t, errors.Is(err, ErrUnsupportedComposition))
}

func TestGrazingIncidence(t *testing.T) {
	ctx := mustContext(t, 90, 550)
	assert.Equal(t, 0.0, ctx.CosTheta)
	for _, name := range []string{"glass", "soap-bubble", "milk"} {
		m, err := Preset(name)
		require.NoError(t, err)
		resp, err := Evaluate(m, ctx)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, resp.Reflectance, 1e-12, name)
	}
}

func TestDiagnostic(t *testing.T) {
	ok := BSDFResponse{0.2, 0.3, 0.5}.Diagnose(DefaultEpsilon)
	assert.True(t, ok.Conserved)
	assert.NoError(t, ok.Err())

	bad := BSDFResponse{0.5, 0.5, 0.5}.Diagnose(DefaultEpsilon)
	assert.False(t, bad.Conserved)
	assert.InDelta(t, 0.5, bad.Deviation, 1e-12)
	assert.True(t, errors.Is(bad.Err(), ErrEnergyConservation))
}

func TestNewResponseKeepsExcess(t *testing.T) {
	over := newResponse(0.7, 0.5)
	assert.Equal(t, 0.0, over.Absorption)
	d := over.Diagnose(DefaultEpsilon)
	assert.False(t, d.Conserved)
	assert.InDelta(t, 0.2, d.Deviation, 1e-12)

	negative := newResponse(-0.1, 0.5)
	assert.InDelta(t, 1.0, negative.Sum(), 1e-12)
	d = negative.Diagnose(DefaultEpsilon)
	assert.False(t, d.Conserved)
	assert.InDelta(t, 0.1, d.Deviation, 1e-12)

	noisy := newResponse(1+1e-14, -1e-14)
	assert.Equal(t, BSDFResponse{Reflectance: 1}, noisy)
	assert.True(t, noisy.Diagnose(DefaultEpsilon).Conserved)
}
