package rollup

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complykit/reconcore/internal/model"
)

func item(ty model.Typology, abs string) Item {
	a := decimal.RequireFromString(abs)
	return Item{
		Typology: ty,
		Exposure: model.ExposureResult{Signed: a, Absolute: a, Mode: "half_up"},
	}
}

func TestRollUp_GroupsAndTotals(t *testing.T) {
	items := []Item{
		item(model.TypologyOverpayment, "10.00"),
		item(model.TypologyOverpayment, "2.50"),
		item(model.TypologyUnderpayment, "5.00"),
		item(model.TypologyTimingMismatch, "0.00"),
	}

	got := RollUp(items)

	require.Len(t, got.Rows, 3)
	// Lexical typology order.
	assert.Equal(t, model.TypologyOverpayment, got.Rows[0].Typology)
	assert.Equal(t, model.TypologyTimingMismatch, got.Rows[1].Typology)
	assert.Equal(t, model.TypologyUnderpayment, got.Rows[2].Typology)

	assert.Equal(t, 2, got.Rows[0].Count)
	assert.True(t, got.Rows[0].TotalExposureAbs.Equal(decimal.RequireFromString("12.50")))
}

func TestRollUp_Conservation(t *testing.T) {
	items := []Item{
		item(model.TypologyOverpayment, "1.11"),
		item(model.TypologyUnderpayment, "2.22"),
		item(model.TypologyUnmatchedInvoice, "3.33"),
		item(model.TypologyUnmatchedInvoice, "4.44"),
	}

	got := RollUp(items)

	countSum := 0
	totalSum := decimal.Zero
	for _, row := range got.Rows {
		countSum += row.Count
		totalSum = totalSum.Add(row.TotalExposureAbs)
	}
	assert.Equal(t, got.TotalFindings, countSum)
	assert.True(t, got.TotalExposureAbs.Equal(totalSum))
	assert.Equal(t, 4, got.TotalFindings)
	assert.True(t, got.TotalExposureAbs.Equal(decimal.RequireFromString("11.10")))
}

func TestRollUp_Empty(t *testing.T) {
	got := RollUp(nil)
	assert.Empty(t, got.Rows)
	assert.Zero(t, got.TotalFindings)
	assert.True(t, got.TotalExposureAbs.IsZero())
}

func TestRollUp_Deterministic(t *testing.T) {
	items := []Item{
		item(model.TypologyUnmatchedPayment, "1"),
		item(model.TypologyOverpayment, "2"),
		item(model.TypologyUnmatchedPayment, "3"),
	}
	assert.Equal(t, RollUp(items), RollUp(items))
}
