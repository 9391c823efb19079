package model

import "github.com/shopspring/decimal"

// ExposureResult is a rounded signed/absolute monetary magnitude together
// with the rounding contract that produced it.
type ExposureResult struct {
	Signed   decimal.Decimal `json:"signed"`
	Absolute decimal.Decimal `json:"absolute"`
	Mode     string          `json:"mode"`
	Quantum  decimal.Decimal `json:"quantum"`
}

// RollupRow is the per-typology aggregate: how many findings landed in the
// category and the sum of their absolute exposures.
type RollupRow struct {
	Typology         Typology        `json:"typology"`
	Count            int             `json:"count"`
	TotalExposureAbs decimal.Decimal `json:"total_exposure_abs"`
}

// Rollups holds per-typology rows in lexical typology order plus grand
// totals. Conservation holds by construction: row counts sum to
// TotalFindings and row totals sum to TotalExposureAbs.
type Rollups struct {
	Rows             []RollupRow     `json:"rows"`
	TotalFindings    int             `json:"total_findings"`
	TotalExposureAbs decimal.Decimal `json:"total_exposure_abs"`
}
