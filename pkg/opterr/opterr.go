// Package opterr holds the error kinds shared by every optics package.
package opterr

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrParameterOutOfRange is returned when an input lies outside its physical domain.
	ErrParameterOutOfRange = errors.New("parameter out of range")
	// ErrEnergyConservation marks a response whose R+T+A drifted from 1.
	ErrEnergyConservation = errors.New("energy conservation violation")
	// ErrNumericalInstability is returned when a computation produced NaN or Inf.
	ErrNumericalInstability = errors.New("numerical instability")
	// ErrUnsupportedComposition is returned for material trees outside the supported set.
	ErrUnsupportedComposition = errors.New("unsupported composition")
)

// OutOfRange builds a wrapped ErrParameterOutOfRange naming the offending parameter.
func OutOfRange(name string, value float64, constraint string) error {
	return fmt.Errorf("%s=%g must be %s: %w", name, value, constraint, ErrParameterOutOfRange)
}

// Finite reports ErrNumericalInstability if any value is NaN or infinite.
func Finite(where string, values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s produced %g: %w", where, v, ErrNumericalInstability)
		}
	}
	return nil
}

// Positive checks v > 0 and finite.
func Positive(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return OutOfRange(name, v, "finite and > 0")
	}
	return nil
}

// NonNegative checks v >= 0 and finite.
func NonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return OutOfRange(name, v, "finite and >= 0")
	}
	return nil
}

// Between checks lo <= v <= hi.
func Between(name string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return OutOfRange(name, v, fmt.Sprintf("in [%g, %g]", lo, hi))
	}
	return nil
}
