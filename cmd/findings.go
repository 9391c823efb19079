package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/complykit/reconcore/internal/model"
)

var (
	findingsScope    string
	findingsModule   string
	findingsEvidence bool
)

var findingsCmd = &cobra.Command{
	Use:   "findings",
	Short: "List ledger findings for a scope and module",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate ledger")
		}

		moduleID := findingsModule
		if moduleID == "" {
			moduleID = cfg.Reconcile.ModuleID
		}

		findings, err := st.ListFindings(ctx, findingsScope, moduleID)
		if err != nil {
			return eris.Wrap(err, "list findings")
		}

		out := struct {
			Findings []model.Finding  `json:"findings"`
			Evidence []model.Evidence `json:"evidence,omitempty"`
		}{Findings: findings}

		if findingsEvidence {
			evidence, err := st.ListEvidence(ctx, findingsScope, moduleID)
			if err != nil {
				return eris.Wrap(err, "list evidence")
			}
			out.Evidence = evidence
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	findingsCmd.Flags().StringVar(&findingsScope, "scope", "", "scope id (required)")
	findingsCmd.Flags().StringVar(&findingsModule, "module", "", "module id (defaults to reconcile.module_id)")
	findingsCmd.Flags().BoolVar(&findingsEvidence, "evidence", false, "include linked evidence rows")
	_ = findingsCmd.MarkFlagRequired("scope")
	rootCmd.AddCommand(findingsCmd)
}
