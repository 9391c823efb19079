package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/complykit/reconcore/internal/engine"
	"github.com/complykit/reconcore/internal/model"
)

var (
	reconcileScope   string
	reconcileLeft    string
	reconcileRight   string
	reconcileMapping string
	reconcileSheet   string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile one scope and write findings to the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("reconcile"); err != nil {
			return err
		}

		st, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate ledger")
		}

		left, err := loadRecords(reconcileLeft, reconcileScope, reconcileMapping, reconcileSheet, model.RecordKindEstimate)
		if err != nil {
			return err
		}
		right, err := loadRecords(reconcileRight, reconcileScope, reconcileMapping, reconcileSheet, model.RecordKindActual)
		if err != nil {
			return err
		}

		in, err := buildEngineInput(reconcileScope, left, right)
		if err != nil {
			return err
		}

		result, err := engine.Run(ctx, st, in)
		if err != nil {
			return eris.Wrap(err, "reconcile run")
		}

		zap.L().Info("reconcile complete",
			zap.String("scope_id", reconcileScope),
			zap.Int("findings", len(result.Findings)),
			zap.String("total_exposure_abs", result.Rollups.TotalExposureAbs.String()),
		)

		// Print result JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileScope, "scope", "", "scope id binding both record sets (required)")
	reconcileCmd.Flags().StringVar(&reconcileLeft, "left", "", "estimate records file: .json, .csv, or .xlsx (required)")
	reconcileCmd.Flags().StringVar(&reconcileRight, "right", "", "actual records file: .json, .csv, or .xlsx (required)")
	reconcileCmd.Flags().StringVar(&reconcileMapping, "mapping", "", "YAML column mapping for tabular inputs")
	reconcileCmd.Flags().StringVar(&reconcileSheet, "sheet", "", "worksheet name for xlsx inputs")
	_ = reconcileCmd.MarkFlagRequired("scope")
	_ = reconcileCmd.MarkFlagRequired("left")
	_ = reconcileCmd.MarkFlagRequired("right")
	rootCmd.AddCommand(reconcileCmd)
}
