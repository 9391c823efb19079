package main

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/complykit/reconcore/internal/compare"
	"github.com/complykit/reconcore/internal/engine"
	"github.com/complykit/reconcore/internal/ingest"
	"github.com/complykit/reconcore/internal/model"
)

// loadRecords reads one side of a reconciliation. The format comes from the
// file extension; CSV and XLSX sources need a column mapping.
func loadRecords(path, scopeID, mappingPath, sheet string, kind model.RecordKind) ([]model.Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ingest.LoadJSON(path, scopeID, kind)
	case ".csv":
		m, err := loadMapping(mappingPath)
		if err != nil {
			return nil, err
		}
		return ingest.LoadCSV(path, scopeID, kind, m)
	case ".xlsx":
		m, err := loadMapping(mappingPath)
		if err != nil {
			return nil, err
		}
		return ingest.LoadXLSX(path, scopeID, kind, m, ingest.XLSXOptions{SheetName: sheet})
	default:
		return nil, eris.Errorf("unsupported input format: %s", path)
	}
}

func loadMapping(path string) (*ingest.Mapping, error) {
	if path == "" {
		return nil, eris.New("tabular inputs need --mapping")
	}
	return ingest.LoadMapping(path)
}

// buildEngineInput assembles an invocation from configuration and the two
// record sides.
func buildEngineInput(scopeID string, left, right []model.Record) (engine.Input, error) {
	quantum, err := cfg.Quantum()
	if err != nil {
		return engine.Input{}, err
	}
	timing := cfg.Classify.TimingThresholdDays

	return engine.Input{
		ScopeID:  scopeID,
		ModuleID: cfg.Reconcile.ModuleID,
		Left:     left,
		Right:    right,
		Compare: compare.Config{
			IdentityFields:  cfg.Reconcile.IdentityFields,
			CostBasis:       compare.CostBasis(cfg.Reconcile.CostBasis),
			BreakdownFields: cfg.Reconcile.BreakdownFields,
		},
		Thresholds:          cfg.Thresholds(),
		TimingThresholdDays: &timing,
		RoundingQuantum:     quantum,
	}, nil
}
