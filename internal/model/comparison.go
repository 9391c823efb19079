package model

import "github.com/shopspring/decimal"

// ComparisonMatch is one aligned key present on both sides, with exact
// per-side totals and the signed delta (right − left). Incomplete counts
// tally records that could not contribute a usable cost under the
// configured cost basis; they are excluded from the totals.
type ComparisonMatch struct {
	Key             string          `json:"key"`
	Left            []Record        `json:"left"`
	Right           []Record        `json:"right"`
	LeftTotal       decimal.Decimal `json:"left_total"`
	RightTotal      decimal.Decimal `json:"right_total"`
	Delta           decimal.Decimal `json:"delta"`
	LeftIncomplete  int             `json:"left_incomplete"`
	RightIncomplete int             `json:"right_incomplete"`
}

// BreakdownRow is an independent aggregation of the union of both inputs
// over a second field set. Rows exist for every breakdown key, even when
// only one side contributes records.
type BreakdownRow struct {
	Key             string          `json:"key"`
	LeftTotal       decimal.Decimal `json:"left_total"`
	RightTotal      decimal.Decimal `json:"right_total"`
	LeftIncomplete  int             `json:"left_incomplete"`
	RightIncomplete int             `json:"right_incomplete"`
}

// ComparisonResult is the full output of one alignment pass. Matches,
// unmatched lists and breakdown rows are sorted lexically by key so the
// result is byte-for-byte reproducible. The configuration used is echoed
// back so downstream consumers never have to guess the alignment basis.
type ComparisonResult struct {
	ScopeID         string            `json:"scope_id"`
	IdentityFields  []string          `json:"identity_fields"`
	CostBasis       string            `json:"cost_basis"`
	BreakdownFields []string          `json:"breakdown_fields,omitempty"`
	Matches         []ComparisonMatch `json:"matches"`
	UnmatchedLeft   []Record          `json:"unmatched_left"`
	UnmatchedRight  []Record          `json:"unmatched_right"`
	Breakdown       []BreakdownRow    `json:"breakdown,omitempty"`
}
