package gooptcore

import (
	"fmt"

	"github.com/kacperjurak/gooptcore/pkg/cior"
	"github.com/kacperjurak/gooptcore/pkg/dispersion"
	"github.com/kacperjurak/gooptcore/pkg/opterr"
	"github.com/kacperjurak/gooptcore/pkg/scattering"
	"github.com/kacperjurak/gooptcore/pkg/thinfilm"
)

// Kind names a material variant.
type Kind string

const (
	KindDielectric Kind = "dielectric"
	KindConductor  Kind = "conductor"
	KindThinFilm   Kind = "thin_film"
	KindLayered    Kind = "layered"
	KindLambertian Kind = "lambertian"
	KindSubsurface Kind = "subsurface"
)

// Material is the closed set of surface descriptions the evaluator knows.
// Only types in this package implement it.
type Material interface {
	Kind() Kind
	Validate() error
	material()
}

// Dielectric is a transparent interface. When Dispersion is set it
// overrides IOR at each wavelength.
type Dielectric struct {
	IOR        float64          `json:"ior"`
	Dispersion dispersion.Model `json:"-"`
	Roughness  float64          `json:"roughness"`
}

// NewDielectric validates ior ≥ 1 and roughness in [0,1].
func NewDielectric(ior, roughness float64) (Dielectric, error) {
	d := Dielectric{IOR: ior, Roughness: roughness}
	return d, d.Validate()
}

// NewDispersiveDielectric uses m for the index; IOR is set to n_d.
func NewDispersiveDielectric(m dispersion.Model, roughness float64) (Dielectric, error) {
	if m == nil {
		return Dielectric{}, opterr.OutOfRange("dispersion", 0, "non-nil")
	}
	d := Dielectric{IOR: m.IOR(dispersion.LineD), Dispersion: m, Roughness: roughness}
	return d, d.Validate()
}

func (Dielectric) Kind() Kind { return KindDielectric }
func (Dielectric) material()  {}

func (d Dielectric) Validate() error {
	if err := opterr.Between("ior", d.IOR, 1, 4); err != nil {
		return err
	}
	return opterr.Between("roughness", d.Roughness, 0, 1)
}

// IndexAt is the refractive index at a wavelength.
func (d Dielectric) IndexAt(wavelengthNM float64) float64 {
	if d.Dispersion != nil {
		return d.Dispersion.IOR(wavelengthNM)
	}
	return d.IOR
}

// Conductor is an opaque absorbing interface. Drude, when set, is used
// whenever the evaluation context carries a temperature.
type Conductor struct {
	IOR       cior.SpectralComplexIOR `json:"ior"`
	Roughness float64                 `json:"roughness"`
	Drude     *cior.DrudeParams       `json:"drude,omitempty"`
}

func NewConductor(ior cior.SpectralComplexIOR, roughness float64) (Conductor, error) {
	c := Conductor{IOR: ior, Roughness: roughness}
	return c, c.Validate()
}

func (Conductor) Kind() Kind { return KindConductor }
func (Conductor) material()  {}

func (c Conductor) Validate() error {
	if err := c.IOR.Validate(); err != nil {
		return err
	}
	if c.Drude != nil {
		if err := c.Drude.Validate(); err != nil {
			return err
		}
	}
	return opterr.Between("roughness", c.Roughness, 0, 1)
}

// ThinFilm is a coating stack on a substrate.
type ThinFilm struct {
	Stack     thinfilm.Stack  `json:"stack"`
	Substrate cior.ComplexIOR `json:"substrate"`
}

// NewThinFilm builds a single-layer film.
func NewThinFilm(filmIOR, thicknessNM float64, substrate cior.ComplexIOR) (ThinFilm, error) {
	s, err := thinfilm.NewStack(thinfilm.Layer{N: filmIOR, ThicknessNM: thicknessNM})
	if err != nil {
		return ThinFilm{}, err
	}
	t := ThinFilm{Stack: s, Substrate: substrate}
	return t, t.Validate()
}

// FromCoating wraps a named coating.
func FromCoating(c thinfilm.Coating) ThinFilm {
	return ThinFilm{Stack: c.Stack, Substrate: c.Substrate}
}

func (ThinFilm) Kind() Kind { return KindThinFilm }
func (ThinFilm) material()  {}

func (t ThinFilm) Validate() error {
	if err := t.Stack.Validate(); err != nil {
		return err
	}
	_, err := cior.NewComplexIOR(t.Substrate.N, t.Substrate.K)
	return err
}

// Layered stacks materials from top to bottom. Nesting Layered inside
// Layered is not supported.
type Layered struct {
	Layers []Material `json:"-"`
}

func NewLayered(layers ...Material) (Layered, error) {
	l := Layered{Layers: layers}
	return l, l.Validate()
}

func (Layered) Kind() Kind { return KindLayered }
func (Layered) material()  {}

func (l Layered) Validate() error {
	if len(l.Layers) == 0 {
		return fmt.Errorf("layered material has no layers: %w", opterr.ErrUnsupportedComposition)
	}
	for i, m := range l.Layers {
		if m == nil {
			return fmt.Errorf("layer %d is nil: %w", i, opterr.ErrUnsupportedComposition)
		}
		if m.Kind() == KindLayered {
			return fmt.Errorf("layer %d is itself layered: %w", i, opterr.ErrUnsupportedComposition)
		}
		if err := m.Validate(); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return nil
}

// Lambertian is an ideal diffuse reflector. Albedo is given at the red,
// green and blue sample wavelengths.
type Lambertian struct {
	Albedo [3]float64 `json:"albedo"`
}

func NewLambertian(r, g, b float64) (Lambertian, error) {
	l := Lambertian{Albedo: [3]float64{r, g, b}}
	return l, l.Validate()
}

func (Lambertian) Kind() Kind { return KindLambertian }
func (Lambertian) material()  {}

func (l Lambertian) Validate() error {
	for i, a := range l.Albedo {
		if err := opterr.Between(fmt.Sprintf("albedo[%d]", i), a, 0, 1); err != nil {
			return err
		}
	}
	return nil
}

// Subsurface is a scattering slab. Particles sets the phase asymmetry and
// the boundary index (Particles.MediumIOR); Albedo is the single
// scattering albedo at the red, green and blue sample wavelengths.
type Subsurface struct {
	Particles      scattering.Params `json:"particles"`
	Albedo         [3]float64        `json:"albedo"`
	MeanFreePathMM float64           `json:"mean_free_path_mm"`
	// ThicknessMM of zero is a semi-infinite slab.
	ThicknessMM float64 `json:"thickness_mm"`
}

func NewSubsurface(particles scattering.Params, albedo [3]float64, meanFreePathMM float64) (Subsurface, error) {
	s := Subsurface{Particles: particles, Albedo: albedo, MeanFreePathMM: meanFreePathMM}
	return s, s.Validate()
}

func (Subsurface) Kind() Kind { return KindSubsurface }
func (Subsurface) material()  {}

func (s Subsurface) Validate() error {
	if err := s.Particles.Validate(); err != nil {
		return err
	}
	if err := opterr.Between("medium_ior", s.Particles.MediumIOR, 1, 4); err != nil {
		return err
	}
	for i, a := range s.Albedo {
		if err := opterr.Between(fmt.Sprintf("albedo[%d]", i), a, 0, 1); err != nil {
			return err
		}
	}
	if err := opterr.Positive("mean_free_path_mm", s.MeanFreePathMM); err != nil {
		return err
	}
	return opterr.NonNegative("thickness_mm", s.ThicknessMM)
}

// rgbWavelengths are the red, green and blue sample points for RGB inputs.
var rgbWavelengths = [3]float64{650, 550, 450}

// rgbAt interpolates an RGB triplet over wavelength, holding the end values.
func rgbAt(v [3]float64, wavelengthNM float64) float64 {
	r, g, b := rgbWavelengths[0], rgbWavelengths[1], rgbWavelengths[2]
	switch {
	case wavelengthNM <= b:
		return v[2]
	case wavelengthNM <= g:
		return v[2] + (v[1]-v[2])*(wavelengthNM-b)/(g-b)
	case wavelengthNM <= r:
		return v[1] + (v[0]-v[1])*(wavelengthNM-g)/(r-g)
	}
	return v[0]
}
