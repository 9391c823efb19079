package model

import "github.com/shopspring/decimal"

// RecordKind identifies which side of a reconciliation a record belongs to.
type RecordKind string

const (
	RecordKindEstimate RecordKind = "estimate"
	RecordKindActual   RecordKind = "actual"
)

// Valid reports whether k is one of the two closed record kinds.
func (k RecordKind) Valid() bool {
	return k == RecordKindEstimate || k == RecordKindActual
}

// Record is one immutable line item bound to a data snapshot. Identity holds
// the canonical field→value pairs used for alignment; every configured
// identity field must be present and non-empty. Cost fields are optional:
// which ones are required depends on the configured cost basis, and records
// missing them are tallied as incomplete rather than defaulted.
type Record struct {
	ScopeID    string            `json:"scope_id"`
	Kind       RecordKind        `json:"kind"`
	RecordID   string            `json:"record_id"`
	Identity   map[string]string `json:"identity"`
	Quantity   *decimal.Decimal  `json:"quantity,omitempty"`
	UnitCost   *decimal.Decimal  `json:"unit_cost,omitempty"`
	TotalCost  *decimal.Decimal  `json:"total_cost,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}
