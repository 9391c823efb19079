package severity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complykit/reconcore/internal/compare"
	"github.com/complykit/reconcore/internal/model"
)

func pct(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestClassify_BoundaryInclusive(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		pct  string
		want Level
	}{
		{"0", LevelWithinTolerance},
		{"5", LevelWithinTolerance}, // inclusive upper bound
		{"5.01", LevelMinor},
		{"10", LevelMinor},
		{"10.01", LevelModerate},
		{"20", LevelModerate},
		{"20.01", LevelMajor},
		{"35", LevelMajor},
		{"35.01", LevelCritical},
		{"400", LevelCritical},
		{"-7", LevelMinor}, // sign is irrelevant to severity
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(pct(tt.pct), th), "pct=%s", tt.pct)
	}
}

func TestDirectionOf(t *testing.T) {
	assert.Equal(t, DirectionOver, DirectionOf(pct("3")))
	assert.Equal(t, DirectionUnder, DirectionOf(pct("-3")))
	assert.Equal(t, DirectionOnBudget, DirectionOf(decimal.Zero))
}

func TestThresholds_Validate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())

	bad := Thresholds{
		WithinTolerance: pct("10"),
		Minor:           pct("10"),
		Moderate:        pct("20"),
		Major:           pct("35"),
	}
	require.ErrorIs(t, bad.Validate(), ErrUnorderedThresholds)
}

func buildComparison(t *testing.T, left, right []model.Record) *model.ComparisonResult {
	t.Helper()
	res, err := compare.Compare("s1", left, right,
		compare.Config{IdentityFields: []string{"item_code"}, CostBasis: compare.CostBasisTotal})
	require.NoError(t, err)
	return res
}

func record(kind model.RecordKind, id, code, total string) model.Record {
	r := model.Record{
		ScopeID:  "s1",
		Kind:     kind,
		RecordID: id,
		Identity: map[string]string{"item_code": code},
	}
	if total != "" {
		d := decimal.RequireFromString(total)
		r.TotalCost = &d
	}
	return r
}

func TestBuildReport_MatchEntry(t *testing.T) {
	res := buildComparison(t,
		[]model.Record{record(model.RecordKindEstimate, "e1", "A", "100")},
		[]model.Record{record(model.RecordKindActual, "a1", "A", "108")},
	)

	rep, err := BuildReport(res, DefaultThresholds(), compare.CostBasisTotal)
	require.NoError(t, err)

	require.Len(t, rep.Entries, 1)
	e := rep.Entries[0]
	assert.Equal(t, "item_code=A", e.Key)
	assert.True(t, e.Variance.Equal(pct("8")))
	require.NotNil(t, e.PercentDeviation)
	assert.True(t, e.PercentDeviation.Equal(pct("8")))
	assert.Equal(t, LevelMinor, e.Level)
	assert.Equal(t, DirectionOver, e.Direction)
}

func TestBuildReport_ScopeCreep(t *testing.T) {
	// The actual-only key Z gets estimated 0, actual 5, variance 5.
	res := buildComparison(t,
		[]model.Record{record(model.RecordKindEstimate, "e1", "A", "20")},
		[]model.Record{
			record(model.RecordKindActual, "a1", "A", "25"),
			record(model.RecordKindActual, "a2", "Z", "5"),
		},
	)

	rep, err := BuildReport(res, DefaultThresholds(), compare.CostBasisTotal)
	require.NoError(t, err)

	require.Len(t, rep.Entries, 2)
	creep := rep.Entries[1]
	assert.Equal(t, "item_code=Z", creep.Key)
	assert.Equal(t, LevelScopeCreep, creep.Level)
	assert.True(t, creep.Estimated.IsZero())
	assert.True(t, creep.Actual.Equal(pct("5")))
	assert.True(t, creep.Variance.Equal(pct("5")))
	assert.Nil(t, creep.PercentDeviation)
}

func TestBuildReport_SortedByKey(t *testing.T) {
	res := buildComparison(t,
		[]model.Record{
			record(model.RecordKindEstimate, "e1", "C", "10"),
			record(model.RecordKindEstimate, "e2", "A", "10"),
		},
		[]model.Record{
			record(model.RecordKindActual, "a1", "C", "10"),
			record(model.RecordKindActual, "a2", "A", "10"),
			record(model.RecordKindActual, "a3", "B", "1"),
		},
	)

	rep, err := BuildReport(res, DefaultThresholds(), compare.CostBasisTotal)
	require.NoError(t, err)

	require.Len(t, rep.Entries, 3)
	assert.Equal(t, "item_code=A", rep.Entries[0].Key)
	assert.Equal(t, "item_code=B", rep.Entries[1].Key)
	assert.Equal(t, "item_code=C", rep.Entries[2].Key)
	assert.Equal(t, LevelScopeCreep, rep.Entries[1].Level)
}

func TestBuildReport_ZeroEstimateNonzeroActualIsCritical(t *testing.T) {
	res := buildComparison(t,
		[]model.Record{record(model.RecordKindEstimate, "e1", "A", "0")},
		[]model.Record{record(model.RecordKindActual, "a1", "A", "50")},
	)

	rep, err := BuildReport(res, DefaultThresholds(), compare.CostBasisTotal)
	require.NoError(t, err)

	require.Len(t, rep.Entries, 1)
	assert.Equal(t, LevelCritical, rep.Entries[0].Level)
	assert.Nil(t, rep.Entries[0].PercentDeviation)
}
