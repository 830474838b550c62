// Package config loads engine configuration from config.yaml with
// environment variable overrides. Secrets must come from environment
// variables only (yaml:"-" fields).
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	enginesql "github.com/claimsight-ai/claimsight-engine/pkg/sql"
)

// Config holds all configuration for claimsight-engine.
// Environment variables always override YAML values.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Warehouse WarehouseConfig `yaml:"warehouse"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Registry  RegistryConfig  `yaml:"registry"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
}

// WarehouseConfig selects and connects the read-only claims warehouse.
type WarehouseConfig struct {
	// Dialect is "postgres" or "mssql".
	Dialect string `yaml:"dialect" env:"WAREHOUSE_DIALECT" env-default:"postgres"`

	Host     string `yaml:"host" env:"WAREHOUSE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"WAREHOUSE_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"WAREHOUSE_USER" env-default:"claimsight"`
	Password string `yaml:"-" env:"WAREHOUSE_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"WAREHOUSE_DATABASE" env-default:"claims"`
	SSLMode  string `yaml:"ssl_mode" env:"WAREHOUSE_SSLMODE" env-default:"disable"`
}

// ReasoningConfig points at the external reasoning service used for intent
// extraction. The engine sends it schema context and questions, never data.
type ReasoningConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"REASONING_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"REASONING_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"REASONING_MODEL" env-default:""`
	APIKey   string `yaml:"-" env:"REASONING_API_KEY"` // Secret - not in YAML
}

// RegistryConfig locates the schema and rule declarations.
type RegistryConfig struct {
	SchemaPath string `yaml:"schema_path" env:"REGISTRY_SCHEMA_PATH" env-default:"registry/schema.yaml"`
	RulesPath  string `yaml:"rules_path" env:"REGISTRY_RULES_PATH" env-default:"registry/rules.yaml"`
	NormsPath  string `yaml:"norms_path" env:"REGISTRY_NORMS_PATH" env-default:"registry/norms.yaml"`
}

// PipelineConfig holds product parameters of the question pipeline.
type PipelineConfig struct {
	// ConfidenceThreshold rejects intents below this extraction confidence.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"PIPELINE_CONFIDENCE_THRESHOLD" env-default:"0.6"`
}

// ExecutorConfig bounds plan execution.
type ExecutorConfig struct {
	StatementTimeout time.Duration `yaml:"statement_timeout" env:"EXECUTOR_STATEMENT_TIMEOUT" env-default:"30s"`
	MaxRows          int           `yaml:"max_rows" env:"EXECUTOR_MAX_ROWS" env-default:"10000"`
	MaxResultBytes   int           `yaml:"max_result_bytes" env:"EXECUTOR_MAX_RESULT_BYTES" env-default:"4194304"`
	MaxRetries       int           `yaml:"max_retries" env:"EXECUTOR_MAX_RETRIES" env-default:"3"`
}

// AnalyzerConfig holds the statistical parameters of finding derivation.
type AnalyzerConfig struct {
	// TrendTolerancePercent is the band within which a change reads as flat.
	TrendTolerancePercent float64 `yaml:"trend_tolerance_percent" env:"ANALYZER_TREND_TOLERANCE_PERCENT" env-default:"5.0"`
	// AnomalySigma flags values this many standard deviations from the norm.
	AnomalySigma float64 `yaml:"anomaly_sigma" env:"ANALYZER_ANOMALY_SIGMA" env-default:"2.0"`
}

// Load reads configuration from the given YAML file with environment
// variable overrides. The version parameter is injected at build time.
func Load(path, version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !enginesql.IsValidDialect(enginesql.Dialect(c.Warehouse.Dialect)) {
		return fmt.Errorf("warehouse.dialect must be postgres or mssql, got %q", c.Warehouse.Dialect)
	}
	if c.Pipeline.ConfidenceThreshold < 0 || c.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.confidence_threshold must be in [0,1], got %v", c.Pipeline.ConfidenceThreshold)
	}
	if c.Executor.MaxRows <= 0 {
		return fmt.Errorf("executor.max_rows must be positive, got %d", c.Executor.MaxRows)
	}
	if c.Analyzer.AnomalySigma <= 0 {
		return fmt.Errorf("analyzer.anomaly_sigma must be positive, got %v", c.Analyzer.AnomalySigma)
	}
	return nil
}

// ConnectionString renders the warehouse connection string for the
// configured dialect. Never log the result unsanitized.
func (w *WarehouseConfig) ConnectionString() string {
	if w.Dialect == string(enginesql.DialectMSSQL) {
		return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			w.User, w.Password, w.Host, w.Port, w.Database)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		w.Host, w.Port, w.User, w.Password, w.Database, w.SSLMode)
}
