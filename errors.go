package gooptcore

import "github.com/kacperjurak/gooptcore/pkg/opterr"

// Error kinds returned by the engine. Test with errors.Is.
var (
	ErrParameterOutOfRange    = opterr.ErrParameterOutOfRange
	ErrEnergyConservation     = opterr.ErrEnergyConservation
	ErrNumericalInstability   = opterr.ErrNumericalInstability
	ErrUnsupportedComposition = opterr.ErrUnsupportedComposition
)
