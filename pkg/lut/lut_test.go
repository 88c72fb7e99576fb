package lut

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/gooptcore/pkg/fresnel"
	"github.com/kacperjurak/gooptcore/pkg/opterr"
	"github.com/kacperjurak/gooptcore/pkg/scattering"
)

func TestTable1D(t *testing.T) {
	tab, err := NewTable1D(math.Sin, 0, math.Pi, 101)
	require.NoError(t, err)

	assert.Equal(t, 101, tab.Resolution())
	assert.InDelta(t, 1.0, tab.At(math.Pi/2), 1e-12)
	assert.InDelta(t, math.Sin(1.234), tab.At(1.234), 2e-4)
	assert.Greater(t, tab.MaxError(), 0.0)
	assert.Less(t, tab.MaxError(), 2e-4)

	// Clamped outside the range.
	assert.InDelta(t, 0.0, tab.At(-1), 1e-12)
	assert.InDelta(t, 0.0, tab.At(10), 1e-12)
}

func TestTable1DValidates(t *testing.T) {
	_, err := NewTable1D(math.Sin, 0, 1, 1)
	assert.True(t, errors.Is(err, opterr.ErrParameterOutOfRange))
	_, err = NewTable1D(math.Sin, 1, 1, 10)
	assert.True(t, errors.Is(err, opterr.ErrParameterOutOfRange))
	_, err = NewTable1D(func(float64) float64 { return math.NaN() }, 0, 1, 10)
	assert.True(t, errors.Is(err, opterr.ErrNumericalInstability))
}

func TestTable2D(t *testing.T) {
	f := func(x, y float64) float64 { return x*x + 3*y }
	tab, err := NewTable2D(f, 0, 1, 51, -1, 1, 21)
	require.NoError(t, err)

	nx, ny := tab.Resolution()
	assert.Equal(t, 51, nx)
	assert.Equal(t, 21, ny)
	assert.InDelta(t, f(0.37, 0.21), tab.At(0.37, 0.21), 1e-3)
	assert.InDelta(t, f(1, 1), tab.At(1, 1), 1e-12)
	assert.InDelta(t, f(0, -1), tab.At(-5, -5), 1e-12)
	assert.Less(t, tab.MaxError(), 1e-3)
}

func TestSignatureQuantises(t *testing.T) {
	a := Signature{Kind: KindMie, Resolution: 10, Params: []float64{1.5, 0}}
	b := Signature{Kind: KindMie, Resolution: 10, Params: []float64{1.5 + 1e-9, 0}}
	c := Signature{Kind: KindMie, Resolution: 10, Params: []float64{1.51, 0}}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestCacheBuildsOnceUnderContention(t *testing.T) {
	c := New(Options{})
	const workers = 32

	tables := make([]*Table1D, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tab, err := c.BeerLambert()
			assert.NoError(t, err)
			tables[i] = tab
		}(i)
	}
	wg.Wait()

	for _, tab := range tables {
		assert.Same(t, tables[0], tab)
	}
	st := c.Stats()
	assert.Equal(t, int64(1), st.Builds)
	assert.Equal(t, int64(workers), st.Hits+st.Misses)
	assert.Equal(t, 1, st.Entries)
}

func TestCacheInvalidate(t *testing.T) {
	c := New(Options{BeerLambertSamples: 64})
	first, err := c.BeerLambert()
	require.NoError(t, err)
	_, err = c.HemisphericalFresnel()
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	c.Invalidate(KindBeerLambert)
	assert.Equal(t, 1, c.Len())

	second, err := c.BeerLambert()
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int64(3), c.Stats().Builds)

	// Tables handed out before invalidation keep working.
	assert.InDelta(t, math.Exp(-1), first.At(1), 1e-2)

	c.Reset()
	assert.Equal(t, 0, c.Len())
}

func TestTransmittance(t *testing.T) {
	c := New(Options{})
	got, err := c.Transmittance(2)
	require.NoError(t, err)
	assert.InDelta(t, math.Exp(-2), got, 1e-4)

	got, err = c.Transmittance(50)
	require.NoError(t, err)
	assert.Equal(t, math.Exp(-50), got)

	got, err = c.Transmittance(0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-12)
}

func TestDielectricFresnelTable(t *testing.T) {
	c := New(Options{})
	tab, err := c.DielectricFresnel(fresnel.Unpolarized)
	require.NoError(t, err)
	assert.InDelta(t, 0.04, tab.At(1, 1.5), 1e-3)
	for _, cos := range []float64{0.2, 0.5, 0.8} {
		assert.InDelta(t, fresnel.Dielectric(1, 1.33, cos, fresnel.Unpolarized), tab.At(cos, 1.33), 5e-3)
	}
	assert.LessOrEqual(t, tab.MaxError(), FresnelMaxError)

	for _, pol := range []fresnel.Polarization{fresnel.S, fresnel.P} {
		tab, err := c.DielectricFresnel(pol)
		require.NoError(t, err)
		assert.LessOrEqual(t, tab.MaxError(), FresnelMaxError, "polarization %v", pol)
	}
}

func TestFresnelCovers(t *testing.T) {
	assert.True(t, FresnelCovers(1.5))
	assert.True(t, FresnelCovers(4))
	assert.False(t, FresnelCovers(1/1.5))
	assert.False(t, FresnelCovers(1.01))
	assert.False(t, FresnelCovers(4.5))
}

func TestHemisphericalFresnelTable(t *testing.T) {
	c := New(Options{})
	tab, err := c.HemisphericalFresnel()
	require.NoError(t, err)
	assert.InDelta(t, 0.092, tab.At(1.5), 0.005)
	assert.Greater(t, tab.At(2.4), tab.At(1.5))
}

func TestMieSourceTracksExactSeries(t *testing.T) {
	c := New(Options{})
	src := c.MieSource()
	m := complex(1.5, 0.05)

	for _, x := range []float64{0.5, 1.7, 5.3, 20} {
		got, err := src.Efficiencies(x, m)
		require.NoError(t, err)
		want, err := scattering.Mie(x, m)
		require.NoError(t, err)
		assert.InDelta(t, want.Ext, got.Ext, 0.02, "x=%v", x)
		assert.InDelta(t, want.G, got.G, 0.02, "x=%v", x)
	}

	tab, err := c.Mie(m)
	require.NoError(t, err)
	assert.True(t, tab.Covers(1))
	assert.False(t, tab.Covers(500))
	assert.Less(t, tab.MaxError(), 0.05)

	// Outside the table the exact series is used.
	got, err := src.Efficiencies(500, m)
	require.NoError(t, err)
	want, err := scattering.Mie(500, m)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
