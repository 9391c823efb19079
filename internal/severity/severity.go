// Package severity buckets percentage deviations into ordered severity
// levels and builds deterministic variance reports from comparison output.
// Unmatched actual-side records bypass thresholding entirely: they are
// scope creep, a terminal category of their own.
package severity

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/complykit/reconcore/internal/compare"
	"github.com/complykit/reconcore/internal/model"
)

// Level is an ordered severity bucket. LevelScopeCreep sits outside the
// threshold ordering; it is assigned only to unmatched actual-side keys.
type Level string

const (
	LevelWithinTolerance Level = "within_tolerance"
	LevelMinor           Level = "minor"
	LevelModerate        Level = "moderate"
	LevelMajor           Level = "major"
	LevelCritical        Level = "critical"
	LevelScopeCreep      Level = "scope_creep"
)

// Direction reports which way a variance points.
type Direction string

const (
	DirectionOver     Direction = "over"
	DirectionUnder    Direction = "under"
	DirectionOnBudget Direction = "on_budget"
)

// Thresholds holds the inclusive upper bound (in percent) of each level
// below critical. Anything above Major is critical.
type Thresholds struct {
	WithinTolerance decimal.Decimal `json:"within_tolerance"`
	Minor           decimal.Decimal `json:"minor"`
	Moderate        decimal.Decimal `json:"moderate"`
	Major           decimal.Decimal `json:"major"`
}

// ErrUnorderedThresholds is raised when the upper bounds do not strictly
// increase.
var ErrUnorderedThresholds = eris.New("severity: thresholds must be strictly increasing")

// DefaultThresholds returns the reference threshold set (percent).
func DefaultThresholds() Thresholds {
	return Thresholds{
		WithinTolerance: decimal.NewFromInt(5),
		Minor:           decimal.NewFromInt(10),
		Moderate:        decimal.NewFromInt(20),
		Major:           decimal.NewFromInt(35),
	}
}

// Validate checks the ordering invariant.
func (t Thresholds) Validate() error {
	if t.WithinTolerance.GreaterThanOrEqual(t.Minor) ||
		t.Minor.GreaterThanOrEqual(t.Moderate) ||
		t.Moderate.GreaterThanOrEqual(t.Major) {
		return ErrUnorderedThresholds
	}
	return nil
}

// Classify buckets an absolute percentage deviation. Each upper threshold
// is inclusive (≤).
func Classify(percentDeviation decimal.Decimal, t Thresholds) Level {
	pct := percentDeviation.Abs()
	switch {
	case pct.LessThanOrEqual(t.WithinTolerance):
		return LevelWithinTolerance
	case pct.LessThanOrEqual(t.Minor):
		return LevelMinor
	case pct.LessThanOrEqual(t.Moderate):
		return LevelModerate
	case pct.LessThanOrEqual(t.Major):
		return LevelMajor
	default:
		return LevelCritical
	}
}

// DirectionOf maps a signed amount to its budget direction.
func DirectionOf(amount decimal.Decimal) Direction {
	switch amount.Sign() {
	case 1:
		return DirectionOver
	case -1:
		return DirectionUnder
	default:
		return DirectionOnBudget
	}
}

// Entry is one variance report row.
type Entry struct {
	Key              string           `json:"key"`
	Estimated        decimal.Decimal  `json:"estimated"`
	Actual           decimal.Decimal  `json:"actual"`
	Variance         decimal.Decimal  `json:"variance"`
	PercentDeviation *decimal.Decimal `json:"percent_deviation,omitempty"`
	Level            Level            `json:"level"`
	Direction        Direction        `json:"direction"`
}

// Report is the severity view over one comparison, sorted by match key.
type Report struct {
	ScopeID string  `json:"scope_id"`
	Entries []Entry `json:"entries"`
}

// BuildReport derives one entry per matched key and one scope-creep entry
// per unmatched actual-side key. For matches, percent deviation is
// |variance| / estimated × 100; a zero estimate with a nonzero actual has
// no defined percentage and is classified critical outright.
func BuildReport(res *model.ComparisonResult, t Thresholds, basis compare.CostBasis) (*Report, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(res.Matches)+len(res.UnmatchedRight))
	for _, m := range res.Matches {
		entries = append(entries, matchEntry(m, t))
	}
	entries = append(entries, scopeCreepEntries(res, basis)...)

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return &Report{ScopeID: res.ScopeID, Entries: entries}, nil
}

func matchEntry(m model.ComparisonMatch, t Thresholds) Entry {
	e := Entry{
		Key:       m.Key,
		Estimated: m.LeftTotal,
		Actual:    m.RightTotal,
		Variance:  m.Delta,
		Direction: DirectionOf(m.Delta),
	}
	if m.LeftTotal.IsZero() {
		if m.Delta.IsZero() {
			e.Level = LevelWithinTolerance
		} else {
			e.Level = LevelCritical
		}
		return e
	}
	pct := m.Delta.Abs().Div(m.LeftTotal.Abs()).Mul(decimal.NewFromInt(100))
	e.PercentDeviation = &pct
	e.Level = Classify(pct, t)
	return e
}

func scopeCreepEntries(res *model.ComparisonResult, basis compare.CostBasis) []Entry {
	totals := map[string]decimal.Decimal{}
	var keys []string
	for _, r := range res.UnmatchedRight {
		// Identity fields were validated during comparison, so the key
		// derivation cannot fail here.
		key, _ := compare.MatchKey(r, res.IdentityFields)
		if _, ok := totals[key]; !ok {
			keys = append(keys, key)
			totals[key] = decimal.Zero
		}
		if cost, ok := compare.EffectiveCost(r, basis); ok {
			totals[key] = totals[key].Add(cost)
		}
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		actual := totals[key]
		entries = append(entries, Entry{
			Key:       key,
			Estimated: decimal.Zero,
			Actual:    actual,
			Variance:  actual,
			Level:     LevelScopeCreep,
			Direction: DirectionOf(actual),
		})
	}
	return entries
}
