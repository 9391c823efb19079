package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/complykit/reconcore/internal/compare"
	"github.com/complykit/reconcore/internal/model"
	"github.com/complykit/reconcore/internal/severity"
)

var (
	varianceScope   string
	varianceLeft    string
	varianceRight   string
	varianceMapping string
	varianceSheet   string
)

// varianceCmd is the dry-run surface: it grades variances without touching
// the ledger.
var varianceCmd = &cobra.Command{
	Use:   "variance",
	Short: "Grade variances for one scope without writing the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("reconcile"); err != nil {
			return err
		}

		left, err := loadRecords(varianceLeft, varianceScope, varianceMapping, varianceSheet, model.RecordKindEstimate)
		if err != nil {
			return err
		}
		right, err := loadRecords(varianceRight, varianceScope, varianceMapping, varianceSheet, model.RecordKindActual)
		if err != nil {
			return err
		}

		basis := compare.CostBasis(cfg.Reconcile.CostBasis)
		res, err := compare.Compare(varianceScope, left, right, compare.Config{
			IdentityFields:  cfg.Reconcile.IdentityFields,
			CostBasis:       basis,
			BreakdownFields: cfg.Reconcile.BreakdownFields,
		})
		if err != nil {
			return eris.Wrap(err, "compare")
		}

		report, err := severity.BuildReport(res, cfg.Thresholds(), basis)
		if err != nil {
			return eris.Wrap(err, "build variance report")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Comparison *model.ComparisonResult `json:"comparison"`
			Variance   *severity.Report        `json:"variance"`
		}{res, report})
	},
}

func init() {
	varianceCmd.Flags().StringVar(&varianceScope, "scope", "", "scope id binding both record sets (required)")
	varianceCmd.Flags().StringVar(&varianceLeft, "left", "", "estimate records file (required)")
	varianceCmd.Flags().StringVar(&varianceRight, "right", "", "actual records file (required)")
	varianceCmd.Flags().StringVar(&varianceMapping, "mapping", "", "YAML column mapping for tabular inputs")
	varianceCmd.Flags().StringVar(&varianceSheet, "sheet", "", "worksheet name for xlsx inputs")
	_ = varianceCmd.MarkFlagRequired("scope")
	_ = varianceCmd.MarkFlagRequired("left")
	_ = varianceCmd.MarkFlagRequired("right")
	rootCmd.AddCommand(varianceCmd)
}
