// Package compare aligns two immutable record collections by identity key
// and computes exact monetary deltas. It performs no interpretation: no
// severity, no good/bad judgment, only alignment and arithmetic. All
// iteration happens in lexical key order so output is reproducible
// byte-for-byte.
package compare

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/complykit/reconcore/internal/model"
)

// CostBasis selects how a record's effective cost is derived.
type CostBasis string

const (
	// CostBasisTotal uses the total-cost field only.
	CostBasisTotal CostBasis = "total"
	// CostBasisQuantityUnit computes quantity × unit cost.
	CostBasisQuantityUnit CostBasis = "quantity_unit"
	// CostBasisPreferTotal uses total cost when present, falling back to
	// quantity × unit cost.
	CostBasisPreferTotal CostBasis = "prefer_total"
)

// Valid reports whether b is a recognized cost basis.
func (b CostBasis) Valid() bool {
	return b == CostBasisTotal || b == CostBasisQuantityUnit || b == CostBasisPreferTotal
}

// Config controls one alignment pass. IdentityFields is the ordered field
// set records are grouped by; BreakdownFields optionally requests an
// independent aggregation over a second field set (lexical field order).
type Config struct {
	IdentityFields  []string  `json:"identity_fields"`
	CostBasis       CostBasis `json:"cost_basis"`
	BreakdownFields []string  `json:"breakdown_fields,omitempty"`
}

// Validation errors raised before any work happens.
var (
	ErrMissingScopeID         = eris.New("compare: scope id is required")
	ErrNoIdentityFields       = eris.New("compare: identity fields must be non-empty")
	ErrInvalidCostBasis       = eris.New("compare: invalid cost basis")
	ErrDatasetVersionMismatch = eris.New("compare: record scope id does not match dataset scope")
	ErrWrongRecordKind        = eris.New("compare: record kind does not match its side")
	ErrIdentityMissingFields  = eris.New("compare: record missing identity fields")
	ErrBreakdownMissingFields = eris.New("compare: record missing breakdown fields")
)

// Compare aligns left (estimate) and right (actual) records by identity
// key. Keys present on both sides become matches with exact per-side sums
// and delta = right − left; one-sided keys populate the unmatched lists
// with the full original records.
func Compare(scopeID string, left, right []model.Record, cfg Config) (*model.ComparisonResult, error) {
	if scopeID == "" {
		return nil, ErrMissingScopeID
	}
	if len(cfg.IdentityFields) == 0 {
		return nil, ErrNoIdentityFields
	}
	if !cfg.CostBasis.Valid() {
		return nil, eris.Wrapf(ErrInvalidCostBasis, "%q", cfg.CostBasis)
	}
	if err := validateSide(scopeID, left, model.RecordKindEstimate); err != nil {
		return nil, err
	}
	if err := validateSide(scopeID, right, model.RecordKindActual); err != nil {
		return nil, err
	}

	leftGroups, err := groupByKey(left, cfg.IdentityFields, ErrIdentityMissingFields)
	if err != nil {
		return nil, err
	}
	rightGroups, err := groupByKey(right, cfg.IdentityFields, ErrIdentityMissingFields)
	if err != nil {
		return nil, err
	}

	result := &model.ComparisonResult{
		ScopeID:        scopeID,
		IdentityFields: append([]string(nil), cfg.IdentityFields...),
		CostBasis:      string(cfg.CostBasis),
		Matches:        []model.ComparisonMatch{},
		UnmatchedLeft:  []model.Record{},
		UnmatchedRight: []model.Record{},
	}

	for _, key := range sortedKeys(leftGroups, rightGroups) {
		lg, onLeft := leftGroups[key]
		rg, onRight := rightGroups[key]

		switch {
		case onLeft && onRight:
			leftTotal, leftIncomplete := sumCosts(lg, cfg.CostBasis)
			rightTotal, rightIncomplete := sumCosts(rg, cfg.CostBasis)
			result.Matches = append(result.Matches, model.ComparisonMatch{
				Key:             key,
				Left:            lg,
				Right:           rg,
				LeftTotal:       leftTotal,
				RightTotal:      rightTotal,
				Delta:           rightTotal.Sub(leftTotal),
				LeftIncomplete:  leftIncomplete,
				RightIncomplete: rightIncomplete,
			})
		case onLeft:
			result.UnmatchedLeft = append(result.UnmatchedLeft, lg...)
		default:
			result.UnmatchedRight = append(result.UnmatchedRight, rg...)
		}
	}

	if len(cfg.BreakdownFields) > 0 {
		breakdownFields := append([]string(nil), cfg.BreakdownFields...)
		sort.Strings(breakdownFields)
		result.BreakdownFields = breakdownFields

		rows, err := breakdown(left, right, breakdownFields, cfg.CostBasis)
		if err != nil {
			return nil, err
		}
		result.Breakdown = rows
	}

	return result, nil
}

// EffectiveCost derives a record's cost under the given basis. The second
// return is false when the record lacks the fields the basis needs; such
// records are counted as incomplete, never defaulted to zero.
func EffectiveCost(r model.Record, basis CostBasis) (decimal.Decimal, bool) {
	switch basis {
	case CostBasisTotal:
		if r.TotalCost != nil {
			return *r.TotalCost, true
		}
	case CostBasisQuantityUnit:
		if r.Quantity != nil && r.UnitCost != nil {
			return r.Quantity.Mul(*r.UnitCost), true
		}
	case CostBasisPreferTotal:
		if r.TotalCost != nil {
			return *r.TotalCost, true
		}
		if r.Quantity != nil && r.UnitCost != nil {
			return r.Quantity.Mul(*r.UnitCost), true
		}
	}
	return decimal.Zero, false
}

// MatchKey builds the canonical "field=value" key for a record over the
// given field order. Missing or empty fields are returned by name.
func MatchKey(r model.Record, fields []string) (string, []string) {
	var missing []string
	pairs := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := r.Identity[f]
		if !ok || v == "" {
			missing = append(missing, f)
			continue
		}
		pairs = append(pairs, f+"="+v)
	}
	if len(missing) > 0 {
		return "", missing
	}
	return strings.Join(pairs, "|"), nil
}

func validateSide(scopeID string, records []model.Record, want model.RecordKind) error {
	for _, r := range records {
		if r.ScopeID != scopeID {
			return eris.Wrapf(ErrDatasetVersionMismatch,
				"record %s has scope %q, want %q", r.RecordID, r.ScopeID, scopeID)
		}
		if r.Kind != want {
			return eris.Wrapf(ErrWrongRecordKind,
				"record %s has kind %q, want %q", r.RecordID, r.Kind, want)
		}
	}
	return nil
}

func groupByKey(records []model.Record, fields []string, missingErr error) (map[string][]model.Record, error) {
	groups := make(map[string][]model.Record)
	for _, r := range records {
		key, missing := MatchKey(r, fields)
		if len(missing) > 0 {
			sort.Strings(missing)
			return nil, eris.Wrapf(missingErr,
				"record %s: %s", r.RecordID, strings.Join(missing, ", "))
		}
		groups[key] = append(groups[key], r)
	}
	return groups, nil
}

func sumCosts(records []model.Record, basis CostBasis) (decimal.Decimal, int) {
	total := decimal.Zero
	incomplete := 0
	for _, r := range records {
		cost, ok := EffectiveCost(r, basis)
		if !ok {
			incomplete++
			continue
		}
		total = total.Add(cost)
	}
	return total, incomplete
}

func breakdown(left, right []model.Record, fields []string, basis CostBasis) ([]model.BreakdownRow, error) {
	leftGroups, err := groupByKey(left, fields, ErrBreakdownMissingFields)
	if err != nil {
		return nil, err
	}
	rightGroups, err := groupByKey(right, fields, ErrBreakdownMissingFields)
	if err != nil {
		return nil, err
	}

	rows := []model.BreakdownRow{}
	for _, key := range sortedKeys(leftGroups, rightGroups) {
		leftTotal, leftIncomplete := sumCosts(leftGroups[key], basis)
		rightTotal, rightIncomplete := sumCosts(rightGroups[key], basis)
		rows = append(rows, model.BreakdownRow{
			Key:             key,
			LeftTotal:       leftTotal,
			RightTotal:      rightTotal,
			LeftIncomplete:  leftIncomplete,
			RightIncomplete: rightIncomplete,
		})
	}
	return rows, nil
}

func sortedKeys(a, b map[string][]model.Record) []string {
	seen := make(map[string]bool, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
