// Package rollup aggregates classified, exposure-bearing items per
// typology. It is pure bookkeeping: classification and exposure are taken
// as given, never re-derived.
package rollup

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/complykit/reconcore/internal/model"
)

// Item is one classified finding with its computed exposure.
type Item struct {
	Typology model.Typology       `json:"typology"`
	Exposure model.ExposureResult `json:"exposure"`
}

// RollUp groups items by typology in lexical order, summing counts and
// absolute exposures, and computes grand totals. Conservation holds by
// construction: the grand totals are the sums of the rows.
func RollUp(items []Item) model.Rollups {
	counts := map[model.Typology]int{}
	totals := map[model.Typology]decimal.Decimal{}
	var typologies []model.Typology

	for _, it := range items {
		if _, seen := counts[it.Typology]; !seen {
			typologies = append(typologies, it.Typology)
			totals[it.Typology] = decimal.Zero
		}
		counts[it.Typology]++
		totals[it.Typology] = totals[it.Typology].Add(it.Exposure.Absolute)
	}

	sort.Slice(typologies, func(i, j int) bool { return typologies[i] < typologies[j] })

	out := model.Rollups{
		Rows:             make([]model.RollupRow, 0, len(typologies)),
		TotalExposureAbs: decimal.Zero,
	}
	for _, ty := range typologies {
		out.Rows = append(out.Rows, model.RollupRow{
			Typology:         ty,
			Count:            counts[ty],
			TotalExposureAbs: totals[ty],
		})
		out.TotalFindings += counts[ty]
		out.TotalExposureAbs = out.TotalExposureAbs.Add(totals[ty])
	}
	return out
}
