// Package exposure converts a signed monetary delta into a rounded
// signed/absolute magnitude under an explicit rounding contract. Exactly
// one rounding mode exists in v1; asking for anything else is a hard
// rejection, not a fallback.
package exposure

import (
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/complykit/reconcore/internal/model"
)

// Mode names a rounding mode.
type Mode string

// ModeHalfUp rounds halves away from zero: 0.555 at quantum 0.01 becomes
// 0.56, and -0.555 becomes -0.56.
const ModeHalfUp Mode = "half_up"

// Configuration errors.
var (
	ErrUnsupportedMode = eris.New("exposure: unsupported rounding mode")
	ErrInvalidQuantum  = eris.New("exposure: quantum must be a positive power of ten")
)

// quantum exponents accepted; covers sub-cent through large-unit rounding.
const maxQuantumExp = 12

// Compute rounds signedDelta to the given quantum and returns the signed
// and absolute magnitudes together with the contract that produced them.
func Compute(signedDelta decimal.Decimal, mode Mode, quantum decimal.Decimal) (model.ExposureResult, error) {
	if mode != ModeHalfUp {
		return model.ExposureResult{}, eris.Wrapf(ErrUnsupportedMode, "%q", mode)
	}
	exp, ok := quantumExponent(quantum)
	if !ok {
		return model.ExposureResult{}, eris.Wrapf(ErrInvalidQuantum, "%s", quantum)
	}

	signed := signedDelta.Round(-exp)
	return model.ExposureResult{
		Signed:   signed,
		Absolute: signed.Abs(),
		Mode:     string(mode),
		Quantum:  quantum,
	}, nil
}

// quantumExponent reports e such that quantum == 10^e, when one exists.
func quantumExponent(quantum decimal.Decimal) (int32, bool) {
	if !quantum.IsPositive() {
		return 0, false
	}
	for e := int32(-maxQuantumExp); e <= maxQuantumExp; e++ {
		if quantum.Equal(decimal.New(1, e)) {
			return e, true
		}
	}
	return 0, false
}
