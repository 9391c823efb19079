// Package classify maps one discrepancy to exactly one member of the
// closed typology enumeration through an ordered rule chain. The chain is
// total over well-formed input: every discrepancy lands in exactly one
// typology, and the two documented missing-signal cases raise typed errors
// instead of guessing.
package classify

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/complykit/reconcore/internal/model"
)

// Finding kinds with rule-chain significance. Other kinds are legal and
// simply fall through to the amount- and sign-based rules.
const (
	KindPartial   = "partial"
	KindExact     = "exact"
	KindTolerance = "tolerance"
)

// Classification errors. Both are totality requirements: a discrepancy
// without these signals cannot be placed in exactly one category.
var (
	ErrMissingKind       = eris.New("classify: finding kind is required")
	ErrMissingDifference = eris.New("classify: signed difference is required")
)

// Evidence carries the precomputed signals the rule chain reads. The
// signed difference is always taken from here, never recomputed; the date
// delta is preferred when present, otherwise derived from the timestamps.
type Evidence struct {
	LeftAmount       *decimal.Decimal `json:"left_amount,omitempty"`
	RightAmount      *decimal.Decimal `json:"right_amount,omitempty"`
	SignedDifference *decimal.Decimal `json:"signed_difference,omitempty"`
	DateDeltaDays    *float64         `json:"date_delta_days,omitempty"`
	LeftDate         *time.Time       `json:"left_date,omitempty"`
	RightDates       []time.Time      `json:"right_dates,omitempty"`
}

// Input is one discrepancy to classify.
type Input struct {
	Kind     string   `json:"kind"`
	Evidence Evidence `json:"evidence"`
}

// Result pairs the typology with a human-readable rationale naming the
// rule that fired.
type Result struct {
	Typology  model.Typology `json:"typology"`
	Rationale string         `json:"rationale"`
}

// Classify applies the rule chain in strict order, first match wins:
//
//  1. partial kind → partial_settlement_residual, overriding every other
//     signal.
//  2. exact/tolerance kind whose absolute date delta exceeds the supplied
//     timing threshold → timing_mismatch. When several counterpart dates
//     exist, the first is used.
//  3. exactly one side zero, the other strictly positive →
//     unmatched_invoice (left zero) or unmatched_payment (right zero).
//  4. sign of the pre-converted signed difference → overpayment (negative)
//     or underpayment (positive).
//  5. zero difference with no timing signal → unmatched_payment. The v1
//     enumeration has no neutral member; this fallback is preserved
//     deliberately.
func Classify(in Input, timingThresholdDays *float64) (Result, error) {
	if in.Kind == "" {
		return Result{}, ErrMissingKind
	}

	// Rule 1: partial settlement wins unconditionally.
	if in.Kind == KindPartial {
		return Result{
			Typology:  model.TypologyPartialSettlementResidual,
			Rationale: "finding kind is partial; residual from a partial settlement",
		}, nil
	}

	// Rule 2: timing mismatch on matched findings.
	if timingThresholdDays != nil && (in.Kind == KindExact || in.Kind == KindTolerance) {
		if delta, ok := dateDelta(in.Evidence); ok && delta > *timingThresholdDays {
			return Result{
				Typology: model.TypologyTimingMismatch,
				Rationale: fmt.Sprintf("date delta %.1f days exceeds threshold %.1f days",
					delta, *timingThresholdDays),
			}, nil
		}
	}

	// Rule 3: one side absent (zero amount), the other strictly positive.
	if in.Evidence.LeftAmount != nil && in.Evidence.RightAmount != nil {
		l, r := *in.Evidence.LeftAmount, *in.Evidence.RightAmount
		switch {
		case l.IsZero() && r.IsPositive():
			return Result{
				Typology:  model.TypologyUnmatchedInvoice,
				Rationale: "no invoice-side amount against a positive payment",
			}, nil
		case r.IsZero() && l.IsPositive():
			return Result{
				Typology:  model.TypologyUnmatchedPayment,
				Rationale: "no payment-side amount against a positive invoice",
			}, nil
		}
	}

	// Rules 4 and 5 need the precomputed signed difference.
	if in.Evidence.SignedDifference == nil {
		return Result{}, ErrMissingDifference
	}

	switch in.Evidence.SignedDifference.Sign() {
	case -1:
		return Result{
			Typology:  model.TypologyOverpayment,
			Rationale: "signed difference is negative",
		}, nil
	case 1:
		return Result{
			Typology:  model.TypologyUnderpayment,
			Rationale: "signed difference is positive",
		}, nil
	default:
		// Rule 5: documented fallback for a zero difference.
		return Result{
			Typology:  model.TypologyUnmatchedPayment,
			Rationale: "zero difference with no timing signal; v1 fallback",
		}, nil
	}
}

// dateDelta returns the absolute day delta between the two sides. A
// precomputed delta in evidence takes precedence; otherwise it is derived
// from the left date and the first counterpart date.
func dateDelta(ev Evidence) (float64, bool) {
	if ev.DateDeltaDays != nil {
		d := *ev.DateDeltaDays
		if d < 0 {
			d = -d
		}
		return d, true
	}
	if ev.LeftDate == nil || len(ev.RightDates) == 0 {
		return 0, false
	}
	d := ev.RightDates[0].Sub(*ev.LeftDate).Hours() / 24
	if d < 0 {
		d = -d
	}
	return d, true
}
