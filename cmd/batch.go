package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/complykit/reconcore/internal/engine"
	"github.com/complykit/reconcore/internal/ledger"
	"github.com/complykit/reconcore/internal/model"
)

var batchManifest string

// batchScope is one entry in the batch manifest.
type batchScope struct {
	ScopeID string `yaml:"scope_id"`
	Left    string `yaml:"left"`
	Right   string `yaml:"right"`
	Mapping string `yaml:"mapping,omitempty"`
	Sheet   string `yaml:"sheet,omitempty"`
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Reconcile many scopes concurrently from a manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		scopes, err := loadManifest(batchManifest)
		if err != nil {
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

		return processBatch(ctx, st, scopes, cfg.Batch.MaxConcurrentScopes)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchManifest, "manifest", "", "YAML manifest listing scopes to reconcile (required)")
	_ = batchCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(batchCmd)
}

func loadManifest(path string) ([]batchScope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read manifest %s", path)
	}

	var wrapper struct {
		Scopes []batchScope `yaml:"scopes"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "parse manifest")
	}
	for i, s := range wrapper.Scopes {
		if s.ScopeID == "" || s.Left == "" || s.Right == "" {
			return nil, eris.Errorf("manifest entry %d needs scope_id, left, and right", i)
		}
	}
	return wrapper.Scopes, nil
}

// processBatch reconciles scopes concurrently. Individual scope failures are
// logged and counted; they do not abort the batch.
func processBatch(ctx context.Context, st ledger.Store, scopes []batchScope, concurrency int) error {
	if len(scopes) == 0 {
		zap.L().Info("manifest has no scopes")
		return nil
	}

	zap.L().Info("processing batch",
		zap.Int("scopes", len(scopes)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, scope := range scopes {
		g.Go(func() error {
			log := zap.L().With(zap.String("scope_id", scope.ScopeID))

			result, err := runScope(gctx, st, scope)
			if err != nil {
				failed.Add(1)
				log.Error("scope reconciliation failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("scope reconciled",
				zap.Int("findings", len(result.Findings)),
				zap.String("total_exposure_abs", result.Rollups.TotalExposureAbs.String()),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

func runScope(ctx context.Context, st ledger.Store, scope batchScope) (*engine.Result, error) {
	left, err := loadRecords(scope.Left, scope.ScopeID, scope.Mapping, scope.Sheet, model.RecordKindEstimate)
	if err != nil {
		return nil, err
	}
	right, err := loadRecords(scope.Right, scope.ScopeID, scope.Mapping, scope.Sheet, model.RecordKindActual)
	if err != nil {
		return nil, err
	}

	in, err := buildEngineInput(scope.ScopeID, left, right)
	if err != nil {
		return nil, err
	}
	return engine.Run(ctx, st, in)
}
