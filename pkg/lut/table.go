// Package lut builds fixed-resolution lookup tables for the expensive parts
// of material evaluation and caches them behind an explicit handle.
package lut

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/kacperjurak/gooptcore/pkg/opterr"
	"github.com/kacperjurak/gooptcore/pkg/spectral"
)

// Table1D samples f on a uniform grid and interpolates linearly. Inputs
// outside [Lo, Hi] are clamped.
type Table1D struct {
	Lo, Hi   float64
	values   []float64
	pl       interp.PiecewiseLinear
	maxError float64
}

// NewTable1D samples f at n points. MaxError is measured against f at the
// midpoint of every cell.
func NewTable1D(f func(float64) float64, lo, hi float64, n int) (*Table1D, error) {
	if n < 2 {
		return nil, fmt.Errorf("table needs at least 2 samples, got %d: %w", n, opterr.ErrParameterOutOfRange)
	}
	if !(hi > lo) {
		return nil, fmt.Errorf("table range [%g, %g] is empty: %w", lo, hi, opterr.ErrParameterOutOfRange)
	}
	xs := spectral.Grid(lo, hi, n)
	ys := make([]float64, n)
	for i, x := range xs {
		ys[i] = f(x)
	}
	if err := opterr.Finite("table", ys...); err != nil {
		return nil, err
	}

	t := &Table1D{Lo: lo, Hi: hi, values: ys}
	if err := t.pl.Fit(xs, ys); err != nil {
		return nil, err
	}
	for i := 0; i < n-1; i++ {
		mid := 0.5 * (xs[i] + xs[i+1])
		t.maxError = math.Max(t.maxError, math.Abs(f(mid)-t.pl.Predict(mid)))
	}
	return t, nil
}

// At interpolates the table.
func (t *Table1D) At(x float64) float64 {
	return t.pl.Predict(x)
}

// MaxError is the largest interpolation error observed at build time.
func (t *Table1D) MaxError() float64 { return t.maxError }

// Resolution is the number of samples.
func (t *Table1D) Resolution() int { return len(t.values) }

// Table2D samples f on a uniform nx×ny grid and interpolates bilinearly.
type Table2D struct {
	XLo, XHi, YLo, YHi float64
	nx, ny             int
	values             []float64
	maxError           float64
}

// NewTable2D samples f(x, y) and measures the error at every cell centre.
func NewTable2D(f func(x, y float64) float64, xlo, xhi float64, nx int, ylo, yhi float64, ny int) (*Table2D, error) {
	if nx < 2 || ny < 2 {
		return nil, fmt.Errorf("table needs at least 2x2 samples, got %dx%d: %w", nx, ny, opterr.ErrParameterOutOfRange)
	}
	if !(xhi > xlo) || !(yhi > ylo) {
		return nil, fmt.Errorf("table range is empty: %w", opterr.ErrParameterOutOfRange)
	}
	t := &Table2D{XLo: xlo, XHi: xhi, YLo: ylo, YHi: yhi, nx: nx, ny: ny, values: make([]float64, nx*ny)}
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			t.values[i*ny+j] = f(t.x(float64(i)), t.y(float64(j)))
		}
	}
	if err := opterr.Finite("table", t.values...); err != nil {
		return nil, err
	}
	for i := 0; i < nx-1; i++ {
		for j := 0; j < ny-1; j++ {
			x, y := t.x(float64(i)+0.5), t.y(float64(j)+0.5)
			t.maxError = math.Max(t.maxError, math.Abs(f(x, y)-t.At(x, y)))
		}
	}
	return t, nil
}

func (t *Table2D) x(i float64) float64 { return t.XLo + (t.XHi-t.XLo)*i/float64(t.nx-1) }
func (t *Table2D) y(j float64) float64 { return t.YLo + (t.YHi-t.YLo)*j/float64(t.ny-1) }

// cell maps v in [lo, hi] onto a cell index and fractional offset.
func cell(v, lo, hi float64, n int) (int, float64) {
	u := (v - lo) / (hi - lo) * float64(n-1)
	if !(u > 0) {
		return 0, 0
	}
	if u >= float64(n-1) {
		return n - 2, 1
	}
	i := int(u)
	return i, u - float64(i)
}

// At interpolates bilinearly, clamping to the table range.
func (t *Table2D) At(x, y float64) float64 {
	i, fx := cell(x, t.XLo, t.XHi, t.nx)
	j, fy := cell(y, t.YLo, t.YHi, t.ny)
	v00 := t.values[i*t.ny+j]
	v01 := t.values[i*t.ny+j+1]
	v10 := t.values[(i+1)*t.ny+j]
	v11 := t.values[(i+1)*t.ny+j+1]
	return (1-fx)*((1-fy)*v00+fy*v01) + fx*((1-fy)*v10+fy*v11)
}

func (t *Table2D) MaxError() float64 { return t.maxError }

// Resolution returns the grid size.
func (t *Table2D) Resolution() (int, int) { return t.nx, t.ny }
