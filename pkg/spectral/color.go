package spectral

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// XYZ is a CIE 1931 tristimulus value with Y of a perfect white equal to 1.
type XYZ [3]float64

// RGB is an RGB triple in [0,1]. Whether it is linear or gamma encoded
// depends on where it came from.
type RGB [3]float64

// Lab is a CIELAB colour.
type Lab [3]float64

var (
	xyzToSRGB = mgl64.Mat3FromRows(
		mgl64.Vec3{3.2404542, -1.5371385, -0.4985314},
		mgl64.Vec3{-0.9692660, 1.8760108, 0.0415560},
		mgl64.Vec3{0.0556434, -0.2040259, 1.0572252},
	)
	srgbToXYZ = xyzToSRGB.Inv()
)

// Integrate computes the XYZ of a reflectance (or transmittance) spectrum lit
// by illum, normalised so that a perfect reflector has Y = 1.
func Integrate(reflectance, illum Spectrum) XYZ {
	var x, y, z, norm float64
	for i := range cieY {
		wl := cmfMinNM + cmfStepNM*float64(i)
		s := illum.At(wl)
		r := reflectance.At(wl)
		x += r * s * cieX[i]
		y += r * s * cieY[i]
		z += r * s * cieZ[i]
		norm += s * cieY[i]
	}
	if norm == 0 {
		return XYZ{}
	}
	return XYZ{x / norm, y / norm, z / norm}
}

// WhitePoint is the XYZ of a perfect reflector under illum.
func WhitePoint(illum Spectrum) XYZ {
	return Integrate(Constant(1), illum)
}

// XYZToLinearSRGB converts to linear sRGB primaries without clamping.
func XYZToLinearSRGB(c XYZ) RGB {
	v := xyzToSRGB.Mul3x1(mgl64.Vec3(c))
	return RGB(v)
}

// LinearSRGBToXYZ is the inverse of XYZToLinearSRGB.
func LinearSRGBToXYZ(c RGB) XYZ {
	v := srgbToXYZ.Mul3x1(mgl64.Vec3(c))
	return XYZ(v)
}

// EncodeSRGB applies the sRGB transfer curve to a linear component.
func EncodeSRGB(v float64) float64 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

// DecodeSRGB removes the sRGB transfer curve.
func DecodeSRGB(v float64) float64 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

// Clamp limits every component to [0,1].
func (c RGB) Clamp() RGB {
	for i := range c {
		c[i] = math.Min(1, math.Max(0, c[i]))
	}
	return c
}

// Encode gamma-encodes a linear triple and clamps it.
func (c RGB) Encode() RGB {
	c = c.Clamp()
	for i := range c {
		c[i] = EncodeSRGB(c[i])
	}
	return c
}

// Decode linearises a gamma-encoded triple.
func (c RGB) Decode() RGB {
	for i := range c {
		c[i] = DecodeSRGB(c[i])
	}
	return c
}

// Bytes quantises an encoded triple to 8 bits per channel.
func (c RGB) Bytes() [3]uint8 {
	c = c.Clamp()
	return [3]uint8{
		uint8(math.Round(c[0] * 255)),
		uint8(math.Round(c[1] * 255)),
		uint8(math.Round(c[2] * 255)),
	}
}

// XYZToLab converts relative to the given white.
func XYZToLab(c, white XYZ) Lab {
	f := func(t float64) float64 {
		const delta = 6.0 / 29.0
		if t > delta*delta*delta {
			return math.Cbrt(t)
		}
		return t/(3*delta*delta) + 4.0/29.0
	}
	fx := f(c[0] / white[0])
	fy := f(c[1] / white[1])
	fz := f(c[2] / white[2])
	return Lab{116*fy - 16, 500 * (fx - fy), 200 * (fy - fz)}
}

// DeltaE76 is the Euclidean distance in CIELAB.
func DeltaE76(a, b Lab) float64 {
	return math.Sqrt((a[0]-b[0])*(a[0]-b[0]) + (a[1]-b[1])*(a[1]-b[1]) + (a[2]-b[2])*(a[2]-b[2]))
}

// ToSRGB is the usual end of a spectral evaluation: integrate, convert and
// gamma encode.
func ToSRGB(reflectance, illum Spectrum) RGB {
	return XYZToLinearSRGB(Integrate(reflectance, illum)).Encode()
}
