package model

// Typology is one member of the closed classification-outcome enumeration.
// The set is fixed for v1; there is deliberately no neutral member, so a
// zero-difference discrepancy falls back to TypologyUnmatchedPayment (see
// the classifier's rule chain).
type Typology string

const (
	TypologyOverpayment               Typology = "overpayment"
	TypologyPartialSettlementResidual Typology = "partial_settlement_residual"
	TypologyTimingMismatch            Typology = "timing_mismatch"
	TypologyUnderpayment              Typology = "underpayment"
	TypologyUnmatchedInvoice          Typology = "unmatched_invoice"
	TypologyUnmatchedPayment          Typology = "unmatched_payment"
)

// Typologies returns the closed enumeration in lexical order.
func Typologies() []Typology {
	return []Typology{
		TypologyOverpayment,
		TypologyPartialSettlementResidual,
		TypologyTimingMismatch,
		TypologyUnderpayment,
		TypologyUnmatchedInvoice,
		TypologyUnmatchedPayment,
	}
}

// Valid reports whether t is a member of the closed enumeration.
func (t Typology) Valid() bool {
	switch t {
	case TypologyOverpayment, TypologyPartialSettlementResidual,
		TypologyTimingMismatch, TypologyUnderpayment,
		TypologyUnmatchedInvoice, TypologyUnmatchedPayment:
		return true
	}
	return false
}
