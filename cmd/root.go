package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/complykit/reconcore/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "reconcore",
	Short: "Deterministic reconciliation and audit-ledger kernel",
	Long:  "Aligns estimate and actual cost records, grades variances, classifies discrepancies into a closed typology set, and writes idempotent evidence and findings to an append-only ledger.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
