// Package config loads application configuration from file and environment
// and owns global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/complykit/reconcore/internal/compare"
	"github.com/complykit/reconcore/internal/severity"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Severity  SeverityConfig  `yaml:"severity" mapstructure:"severity"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Exposure  ExposureConfig  `yaml:"exposure" mapstructure:"exposure"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ReconcileConfig configures record alignment.
type ReconcileConfig struct {
	ModuleID        string   `yaml:"module_id" mapstructure:"module_id"`
	IdentityFields  []string `yaml:"identity_fields" mapstructure:"identity_fields"`
	CostBasis       string   `yaml:"cost_basis" mapstructure:"cost_basis"`
	BreakdownFields []string `yaml:"breakdown_fields" mapstructure:"breakdown_fields"`
}

// SeverityConfig holds the variance band edges in percent.
type SeverityConfig struct {
	WithinTolerance float64 `yaml:"within_tolerance" mapstructure:"within_tolerance"`
	Minor           float64 `yaml:"minor" mapstructure:"minor"`
	Moderate        float64 `yaml:"moderate" mapstructure:"moderate"`
	Major           float64 `yaml:"major" mapstructure:"major"`
}

// ClassifyConfig configures the typology rule chain.
type ClassifyConfig struct {
	TimingThresholdDays float64 `yaml:"timing_threshold_days" mapstructure:"timing_threshold_days"`
}

// ExposureConfig configures monetary rounding.
type ExposureConfig struct {
	RoundingQuantum string `yaml:"rounding_quantum" mapstructure:"rounding_quantum"`
}

// BatchConfig configures concurrent scope processing.
type BatchConfig struct {
	MaxConcurrentScopes int `yaml:"max_concurrent_scopes" mapstructure:"max_concurrent_scopes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECONCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "reconcore.db")
	v.SetDefault("reconcile.module_id", "recon")
	v.SetDefault("reconcile.cost_basis", "prefer_total")
	v.SetDefault("severity.within_tolerance", 5.0)
	v.SetDefault("severity.minor", 10.0)
	v.SetDefault("severity.moderate", 20.0)
	v.SetDefault("severity.major", 35.0)
	v.SetDefault("classify.timing_threshold_days", 30.0)
	v.SetDefault("exposure.rounding_quantum", "0.01")
	v.SetDefault("batch.max_concurrent_scopes", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given mode. "reconcile" covers
// single-scope runs; "batch" additionally checks concurrency bounds.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if len(c.Reconcile.IdentityFields) == 0 {
		problems = append(problems, "reconcile.identity_fields is required")
	}
	if !compare.CostBasis(c.Reconcile.CostBasis).Valid() {
		problems = append(problems, "reconcile.cost_basis must be total, quantity_unit, or prefer_total")
	}
	if err := c.Thresholds().Validate(); err != nil {
		problems = append(problems, "severity thresholds must be strictly increasing")
	}
	if c.Classify.TimingThresholdDays < 0 {
		problems = append(problems, "classify.timing_threshold_days must be >= 0")
	}
	if _, err := c.Quantum(); err != nil {
		problems = append(problems, "exposure.rounding_quantum must be a decimal")
	}

	switch mode {
	case "reconcile":
	case "batch":
		if c.Batch.MaxConcurrentScopes < 1 || c.Batch.MaxConcurrentScopes > 50 {
			problems = append(problems, "batch.max_concurrent_scopes must be between 1 and 50")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Thresholds converts the severity section into engine thresholds.
func (c *Config) Thresholds() severity.Thresholds {
	return severity.Thresholds{
		WithinTolerance: decimal.NewFromFloat(c.Severity.WithinTolerance),
		Minor:           decimal.NewFromFloat(c.Severity.Minor),
		Moderate:        decimal.NewFromFloat(c.Severity.Moderate),
		Major:           decimal.NewFromFloat(c.Severity.Major),
	}
}

// Quantum parses the configured rounding quantum.
func (c *Config) Quantum() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Exposure.RoundingQuantum)
	if err != nil {
		return decimal.Decimal{}, eris.Wrap(err, "config: parse rounding quantum")
	}
	return d, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
