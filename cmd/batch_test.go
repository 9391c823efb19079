package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complykit/reconcore/internal/config"
	"github.com/complykit/reconcore/internal/ledger"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Reconcile.ModuleID = "recon"
	c.Reconcile.IdentityFields = []string{"project"}
	c.Reconcile.CostBasis = "prefer_total"
	c.Severity = config.SeverityConfig{WithinTolerance: 5, Minor: 10, Moderate: 20, Major: 35}
	c.Classify.TimingThresholdDays = 30
	c.Exposure.RoundingQuantum = "0.01"
	c.Batch.MaxConcurrentScopes = 4
	return c
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newBatchLedger(t *testing.T) ledger.Store {
	t.Helper()
	st, err := ledger.NewSQLite(filepath.Join(t.TempDir(), "batch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "manifest.yaml", `
scopes:
  - scope_id: scope-1
    left: estimates.json
    right: actuals.json
  - scope_id: scope-2
    left: est.csv
    right: act.csv
    mapping: map.yaml
`)

	scopes, err := loadManifest(path)
	require.NoError(t, err)
	require.Len(t, scopes, 2)
	assert.Equal(t, "scope-1", scopes[0].ScopeID)
	assert.Equal(t, "map.yaml", scopes[1].Mapping)
}

func TestLoadManifest_MissingFields(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "manifest.yaml", `
scopes:
  - scope_id: scope-1
    left: estimates.json
`)

	_, err := loadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 0")
}

func TestProcessBatch_MixedOutcomes(t *testing.T) {
	cfg = testConfig()
	st := newBatchLedger(t)
	dir := t.TempDir()

	left := writeTempFile(t, dir, "estimates.json",
		`[{"record_id":"e1","identity":{"project":"alpha"},"total_cost":"100.00"}]`)
	right := writeTempFile(t, dir, "actuals.json",
		`[{"record_id":"a1","identity":{"project":"alpha"},"total_cost":"110.00"}]`)

	scopes := []batchScope{
		{ScopeID: "scope-ok", Left: left, Right: right},
		// Missing files: fails, but must not abort the batch.
		{ScopeID: "scope-bad", Left: filepath.Join(dir, "nope.json"), Right: right},
	}

	err := processBatch(context.Background(), st, scopes, 2)
	require.NoError(t, err)

	findings, err := st.ListFindings(context.Background(), "scope-ok", "recon")
	require.NoError(t, err)
	assert.Len(t, findings, 1)

	none, err := st.ListFindings(context.Background(), "scope-bad", "recon")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestProcessBatch_Empty(t *testing.T) {
	cfg = testConfig()
	require.NoError(t, processBatch(context.Background(), newBatchLedger(t), nil, 2))
}

func TestLoadRecords_UnsupportedFormat(t *testing.T) {
	_, err := loadRecords("records.txt", "scope-1", "", "", "estimate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported input format")
}

func TestLoadRecords_TabularNeedsMapping(t *testing.T) {
	_, err := loadRecords("records.csv", "scope-1", "", "", "estimate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--mapping")
}

func TestBuildEngineInput(t *testing.T) {
	cfg = testConfig()

	in, err := buildEngineInput("scope-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "scope-1", in.ScopeID)
	assert.Equal(t, "recon", in.ModuleID)
	assert.Equal(t, []string{"project"}, in.Compare.IdentityFields)
	require.NotNil(t, in.TimingThresholdDays)
	assert.InDelta(t, 30.0, *in.TimingThresholdDays, 0.001)
	assert.Equal(t, "0.01", in.RoundingQuantum.String())
}
