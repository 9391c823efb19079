package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "reconcore.db", cfg.Store.Path)
	assert.Equal(t, "recon", cfg.Reconcile.ModuleID)
	assert.Equal(t, "prefer_total", cfg.Reconcile.CostBasis)
	assert.InDelta(t, 5.0, cfg.Severity.WithinTolerance, 0.001)
	assert.InDelta(t, 10.0, cfg.Severity.Minor, 0.001)
	assert.InDelta(t, 20.0, cfg.Severity.Moderate, 0.001)
	assert.InDelta(t, 35.0, cfg.Severity.Major, 0.001)
	assert.InDelta(t, 30.0, cfg.Classify.TimingThresholdDays, 0.001)
	assert.Equal(t, "0.01", cfg.Exposure.RoundingQuantum)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrentScopes)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/recon
reconcile:
  module_id: variance
  identity_fields: [project, phase]
log:
  level: debug
  format: console
batch:
  max_concurrent_scopes: 10
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "variance", cfg.Reconcile.ModuleID)
	assert.Equal(t, []string{"project", "phase"}, cfg.Reconcile.IdentityFields)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10, cfg.Batch.MaxConcurrentScopes)
	// Defaults still apply for unset values
	assert.Equal(t, "0.01", cfg.Exposure.RoundingQuantum)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("RECONCORE_STORE_DRIVER", "postgres")
	t.Setenv("RECONCORE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("RECONCORE_BATCH_MAX_CONCURRENT_SCOPES", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Batch.MaxConcurrentScopes)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "reconcore.db"
	cfg.Reconcile.IdentityFields = []string{"project"}
	cfg.Reconcile.CostBasis = "prefer_total"
	cfg.Severity = SeverityConfig{WithinTolerance: 5, Minor: 10, Moderate: 20, Major: 35}
	cfg.Classify.TimingThresholdDays = 30
	cfg.Exposure.RoundingQuantum = "0.01"
	cfg.Batch.MaxConcurrentScopes = 4
	return cfg
}

func TestValidateReconcile_OK(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("reconcile"))
}

func TestValidateReconcile_MissingIdentityFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Reconcile.IdentityFields = nil

	err := cfg.Validate("reconcile")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "identity_fields")
}

func TestValidatePostgres_NeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("reconcile")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url")
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("reconcile")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidateThresholdOrdering(t *testing.T) {
	cfg := validDefaults()
	cfg.Severity.Minor = 3 // below within_tolerance

	err := cfg.Validate("reconcile")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "strictly increasing")
}

func TestValidateBadQuantum(t *testing.T) {
	cfg := validDefaults()
	cfg.Exposure.RoundingQuantum = "a lot"

	err := cfg.Validate("reconcile")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rounding_quantum")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.MaxConcurrentScopes = 0
	err := cfg.Validate("batch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_scopes must be between 1 and 50")

	cfg.Batch.MaxConcurrentScopes = 51
	err = cfg.Validate("batch")
	assert.Error(t, err)

	cfg.Batch.MaxConcurrentScopes = 50
	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestQuantum(t *testing.T) {
	cfg := validDefaults()
	q, err := cfg.Quantum()
	require.NoError(t, err)
	assert.Equal(t, "0.01", q.String())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
