package lut

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	"golang.org/x/sync/singleflight"

	"github.com/kacperjurak/gooptcore/pkg/fresnel"
	"github.com/kacperjurak/gooptcore/pkg/scattering"
)

// Kind groups tables for invalidation.
type Kind string

const (
	KindFresnel     Kind = "fresnel"
	KindHemispheric Kind = "fresnel-hemispherical"
	KindBeerLambert Kind = "beer-lambert"
	KindMie         Kind = "mie"
)

const (
	keyQuantum          = 1e-6
	relativeIORLo       = 0.2
	relativeIORHi       = 4.0
	fresnelIORLo        = 1.1
	beerLambertMaxOD    = 30.0
	mieMaxSizeParameter = 200.0
)

// Options sets table resolutions. Zero values fall back to the defaults.
type Options struct {
	FresnelCosSamples  int `json:"fresnel_cos_samples"`
	FresnelIORSamples  int `json:"fresnel_ior_samples"`
	BeerLambertSamples int `json:"beer_lambert_samples"`
	MieSamples         int `json:"mie_samples"`
}

// DefaultOptions are the resolutions used by Default().
func DefaultOptions() Options {
	return Options{
		FresnelCosSamples:  128,
		FresnelIORSamples:  128,
		BeerLambertSamples: 512,
		MieSamples:         512,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FresnelCosSamples < 2 {
		o.FresnelCosSamples = d.FresnelCosSamples
	}
	if o.FresnelIORSamples < 2 {
		o.FresnelIORSamples = d.FresnelIORSamples
	}
	if o.BeerLambertSamples < 2 {
		o.BeerLambertSamples = d.BeerLambertSamples
	}
	if o.MieSamples < 2 {
		o.MieSamples = d.MieSamples
	}
	return o
}

// Signature identifies one table. Parameters are quantised so that nearly
// equal requests share a table.
type Signature struct {
	Kind       Kind
	Resolution int
	Params     []float64
}

// Key renders the signature as a map key.
func (s Signature) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%d", s.Kind, s.Resolution)
	for _, p := range s.Params {
		fmt.Fprintf(&b, "/%g", math.Round(p/keyQuantum)*keyQuantum)
	}
	return b.String()
}

// Stats counts cache traffic.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Builds  int64 `json:"builds"`
	Entries int   `json:"entries"`
}

// Cache builds each table at most once and hands out the same immutable
// table to every caller. The zero value is not usable; call New.
type Cache struct {
	opts   Options
	tables sync.Map
	group  singleflight.Group

	hits, misses, builds atomic.Int64
}

// New returns an empty cache.
func New(opts Options) *Cache {
	return &Cache{opts: opts.withDefaults()}
}

var (
	defaultOnce  sync.Once
	defaultCache *Cache
)

// Default is a process-wide cache for callers that do not manage their own.
func Default() *Cache {
	defaultOnce.Do(func() { defaultCache = New(DefaultOptions()) })
	return defaultCache
}

// Options returns the effective resolutions.
func (c *Cache) Options() Options { return c.opts }

func (c *Cache) get(sig Signature, build func() (any, error)) (any, error) {
	key := sig.Key()
	if v, ok := c.tables.Load(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.tables.Load(key); ok {
			return v, nil
		}
		v, err := build()
		if err != nil {
			return nil, err
		}
		c.builds.Add(1)
		c.tables.Store(key, v)
		glog.V(1).Infof("lut: built %s", key)
		return v, nil
	})
	return v, err
}

// FresnelMaxError bounds the interpolation error of a dielectric Fresnel
// table. Tables built coarser than that should not be served.
const FresnelMaxError = 5e-3

// FresnelCovers reports whether η = n2/n1 lies inside the dielectric Fresnel
// table. Below it the reflectance has a kink at the critical angle, and near
// index matching it drops steeply at grazing incidence.
func FresnelCovers(eta float64) bool {
	return eta >= fresnelIORLo && eta <= relativeIORHi
}

// DielectricFresnel is R(cosθ, η) for η = n2/n1 in [1.1, 4].
func (c *Cache) DielectricFresnel(pol fresnel.Polarization) (*Table2D, error) {
	sig := Signature{Kind: KindFresnel, Resolution: c.opts.FresnelCosSamples, Params: []float64{float64(pol), float64(c.opts.FresnelIORSamples)}}
	v, err := c.get(sig, func() (any, error) {
		tab, err := NewTable2D(func(cos, eta float64) float64 {
			return fresnel.Dielectric(1, eta, cos, pol)
		}, 0, 1, c.opts.FresnelCosSamples, fresnelIORLo, relativeIORHi, c.opts.FresnelIORSamples)
		if err != nil {
			return nil, err
		}
		if e := tab.MaxError(); e > FresnelMaxError {
			glog.Warningf("lut: fresnel table %dx%d off by %g, above %g", c.opts.FresnelCosSamples, c.opts.FresnelIORSamples, e, FresnelMaxError)
		}
		return tab, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table2D), nil
}

// HemisphericalFresnel is the cosine-weighted hemispherical average of the
// unpolarised dielectric reflectance as a function of η = n2/n1.
func (c *Cache) HemisphericalFresnel() (*Table1D, error) {
	sig := Signature{Kind: KindHemispheric, Resolution: c.opts.FresnelIORSamples}
	v, err := c.get(sig, func() (any, error) {
		return NewTable1D(func(eta float64) float64 {
			return fresnel.Hemispherical(func(cos float64) float64 {
				return fresnel.Dielectric(1, eta, cos, fresnel.Unpolarized)
			})
		}, relativeIORLo, relativeIORHi, c.opts.FresnelIORSamples)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table1D), nil
}

// BeerLambert tabulates exp(−τ) for optical depths τ in [0, 30].
func (c *Cache) BeerLambert() (*Table1D, error) {
	sig := Signature{Kind: KindBeerLambert, Resolution: c.opts.BeerLambertSamples}
	v, err := c.get(sig, func() (any, error) {
		return NewTable1D(func(tau float64) float64 { return math.Exp(-tau) }, 0, beerLambertMaxOD, c.opts.BeerLambertSamples)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table1D), nil
}

// Transmittance is exp(−τ) through the Beer-Lambert table. Depths past the
// table end are evaluated directly.
func (c *Cache) Transmittance(tau float64) (float64, error) {
	if tau < 0 || tau > beerLambertMaxOD {
		return math.Exp(-math.Max(0, tau)), nil
	}
	t, err := c.BeerLambert()
	if err != nil {
		return 0, err
	}
	return t.At(tau), nil
}

// MieTable holds efficiencies for one relative index over ln x.
type MieTable struct {
	M           complex128
	ext, sca, g *Table1D
	back        *Table1D
	lnLo, lnHi  float64
}

// Covers reports whether x lies inside the tabulated range.
func (t *MieTable) Covers(x float64) bool {
	lx := math.Log(x)
	return lx >= t.lnLo && lx <= t.lnHi
}

// Efficiencies interpolates the table.
func (t *MieTable) Efficiencies(x float64) scattering.Efficiencies {
	lx := math.Log(x)
	e := scattering.Efficiencies{
		Ext:  t.ext.At(lx),
		Sca:  t.sca.At(lx),
		Back: t.back.At(lx),
		G:    t.g.At(lx),
	}
	e.Sca = math.Min(e.Sca, e.Ext)
	e.Abs = math.Max(0, e.Ext-e.Sca)
	return e
}

// MaxError is the worst extinction interpolation error.
func (t *MieTable) MaxError() float64 { return t.ext.MaxError() }

// Mie returns the table for relative index m covering x from the Rayleigh
// limit to 200.
func (c *Cache) Mie(m complex128) (*MieTable, error) {
	sig := Signature{Kind: KindMie, Resolution: c.opts.MieSamples, Params: []float64{real(m), imag(m)}}
	v, err := c.get(sig, func() (any, error) {
		return buildMie(m, c.opts.MieSamples)
	})
	if err != nil {
		return nil, err
	}
	return v.(*MieTable), nil
}

func buildMie(m complex128, n int) (*MieTable, error) {
	lo, hi := math.Log(scattering.RayleighLimit), math.Log(mieMaxSizeParameter)
	// Evaluate the series once per node and serve the four tables from it.
	memo := map[float64]scattering.Efficiencies{}
	var firstErr error
	eval := func(lx float64) scattering.Efficiencies {
		if e, ok := memo[lx]; ok {
			return e
		}
		e, err := scattering.Mie(math.Exp(lx), m)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		memo[lx] = e
		return e
	}

	t := &MieTable{M: m, lnLo: lo, lnHi: hi}
	var err error
	if t.ext, err = NewTable1D(func(lx float64) float64 { return eval(lx).Ext }, lo, hi, n); err != nil {
		return nil, err
	}
	if t.sca, err = NewTable1D(func(lx float64) float64 { return eval(lx).Sca }, lo, hi, n); err != nil {
		return nil, err
	}
	if t.back, err = NewTable1D(func(lx float64) float64 { return eval(lx).Back }, lo, hi, n); err != nil {
		return nil, err
	}
	if t.g, err = NewTable1D(func(lx float64) float64 { return eval(lx).G }, lo, hi, n); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return t, nil
}

// MieSource adapts the cache to scattering.MieSource. Size parameters
// outside the table fall back to the exact series.
func (c *Cache) MieSource() scattering.MieSource { return mieSource{c} }

type mieSource struct{ c *Cache }

func (s mieSource) Efficiencies(x float64, m complex128) (scattering.Efficiencies, error) {
	t, err := s.c.Mie(m)
	if err != nil {
		return scattering.Efficiencies{}, err
	}
	if !t.Covers(x) {
		return scattering.Mie(x, m)
	}
	return t.Efficiencies(x), nil
}

// Invalidate drops every table of one kind. Tables already handed out stay
// valid; the next request rebuilds.
func (c *Cache) Invalidate(kind Kind) {
	prefix := string(kind) + "/"
	c.tables.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), prefix) {
			c.tables.Delete(k)
		}
		return true
	})
}

// Reset drops every table.
func (c *Cache) Reset() {
	c.tables.Range(func(k, _ any) bool {
		c.tables.Delete(k)
		return true
	})
}

// Len is the number of cached tables.
func (c *Cache) Len() int {
	n := 0
	c.tables.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Builds:  c.builds.Load(),
		Entries: c.Len(),
	}
}
