package spectral

import "math"

// CIE 1931 2° standard observer, 380-780 nm at 10 nm.
const (
	cmfMinNM  = 380.0
	cmfStepNM = 10.0
)

var cieX = [...]float64{
	0.001368, 0.004243, 0.014310, 0.043510, 0.134380, 0.283900, 0.348280, 0.336200, 0.290800, 0.195360,
	0.095640, 0.032010, 0.004900, 0.009300, 0.063270, 0.165500, 0.290400, 0.433450, 0.594500, 0.762100,
	0.916300, 1.026300, 1.062200, 1.002600, 0.854450, 0.642400, 0.447900, 0.283500, 0.164900, 0.087400,
	0.046770, 0.022700, 0.011359, 0.005790, 0.002899, 0.001440, 0.000690, 0.000332, 0.000166, 0.000083,
	0.000042,
}

var cieY = [...]float64{
	0.000039, 0.000120, 0.000396, 0.001210, 0.004000, 0.011600, 0.023000, 0.038000, 0.060000, 0.090980,
	0.139020, 0.208020, 0.323000, 0.503000, 0.710000, 0.862000, 0.954000, 0.994950, 0.995000, 0.952000,
	0.870000, 0.757000, 0.631000, 0.503000, 0.381000, 0.265000, 0.175000, 0.107000, 0.061000, 0.032000,
	0.017000, 0.008210, 0.004102, 0.002091, 0.001047, 0.000520, 0.000249, 0.000120, 0.000060, 0.000030,
	0.000015,
}

var cieZ = [...]float64{
	0.006450, 0.020050, 0.067850, 0.207400, 0.645600, 1.385600, 1.747060, 1.772110, 1.669200, 1.287640,
	0.812950, 0.465180, 0.272000, 0.158200, 0.078250, 0.042160, 0.020300, 0.008750, 0.003900, 0.002100,
	0.001650, 0.001100, 0.000800, 0.000340, 0.000190, 0.000050, 0.000020, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0,
}

// CIE standard illuminant D65, relative power, 380-780 nm at 10 nm.
var d65 = [...]float64{
	49.9755, 54.6482, 82.7549, 91.486, 93.4318, 86.6823, 104.865, 117.008, 117.812, 114.861,
	115.923, 108.811, 109.354, 107.802, 104.790, 107.689, 104.405, 104.046, 100.0, 96.3342,
	95.788, 88.6856, 90.0062, 89.5991, 87.6987, 83.2886, 83.6992, 80.0268, 80.2146, 82.2778,
	78.2842, 69.7213, 71.6091, 74.349, 61.604, 69.8856, 75.087, 63.5927, 46.4182, 66.8054,
	63.3828,
}

// CMFWavelengths is the sample grid of the colour matching functions.
func CMFWavelengths() []float64 {
	return Grid(cmfMinNM, cmfMinNM+cmfStepNM*float64(len(cieY)-1), len(cieY))
}

// ColorMatching returns the x̄, ȳ, z̄ functions as signals.
func ColorMatching() (x, y, z Signal) {
	grid := CMFWavelengths()
	return MustSignal(grid, cieX[:]), MustSignal(grid, cieY[:]), MustSignal(grid, cieZ[:])
}

// D65 is the CIE daylight illuminant.
func D65() Signal {
	return MustSignal(CMFWavelengths(), d65[:])
}

// IlluminantE is the equal-energy illuminant.
func IlluminantE() Signal {
	return Sample(Constant(100), CMFWavelengths())
}

// IlluminantA is the CIE incandescent illuminant, normalised to 100 at 560 nm.
func IlluminantA() Signal {
	const c2 = 1.435e7
	return Sample(Func(func(wl float64) float64 {
		return 100 * math.Pow(560/wl, 5) * math.Expm1(c2/(2848*560)) / math.Expm1(c2/(2848*wl))
	}), CMFWavelengths())
}

// Blackbody samples Planck's law at temperature kelvin, normalised to 100 at
// 560 nm.
func Blackbody(kelvin float64) Signal {
	const c2 = 1.4388e7 // nm·K
	planck := func(wl float64) float64 {
		return 1 / (math.Pow(wl, 5) * math.Expm1(c2/(wl*kelvin)))
	}
	ref := planck(560)
	return Sample(Func(func(wl float64) float64 {
		return 100 * planck(wl) / ref
	}), CMFWavelengths())
}

// Illuminant looks up a named illuminant ("d65", "a" or "e"). The empty name
// means D65.
func Illuminant(name string) (Signal, bool) {
	switch name {
	case "", "d65", "D65":
		return D65(), true
	case "a", "A":
		return IlluminantA(), true
	case "e", "E":
		return IlluminantE(), true
	}
	return Signal{}, false
}
