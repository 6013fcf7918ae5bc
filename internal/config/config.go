// Package config provides unified configuration loading for the invoice engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the invoice engine.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Storage       StorageConfig       `yaml:"storage"`
	Rendering     RenderingConfig     `yaml:"rendering"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis settings for the run-lease store.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// StorageConfig holds filesystem locations for uploaded and transient files.
type StorageConfig struct {
	TempDir string `yaml:"temp_dir"`
}

// RenderingConfig holds PDF-to-image conversion settings.
type RenderingConfig struct {
	DPI     float64       `yaml:"dpi"`
	Quality int           `yaml:"quality"`
	Timeout time.Duration `yaml:"timeout"`
}

// ExtractionConfig holds AI extraction settings.
type ExtractionConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Circuit breaker distinct from per-stage retry: open after
	// BreakerThreshold failures inside BreakerWindow, then hold off
	// BreakerCooldown before allowing a probe.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerWindow    time.Duration `yaml:"breaker_window"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
}

// StagePolicy holds the retry budget for a single pipeline stage.
type StagePolicy struct {
	Attempts       int           `yaml:"attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Timeout        time.Duration `yaml:"timeout"`
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	LeaseTTL        time.Duration `yaml:"lease_ttl"`
	Concurrency     int           `yaml:"concurrency"`
	MaxErrorLength  int           `yaml:"max_error_length"`
	Render          StagePolicy   `yaml:"render"`
	Extract         StagePolicy   `yaml:"extract"`
	Persist         StagePolicy   `yaml:"persist"`
	Cleanup         StagePolicy   `yaml:"cleanup"`
	PollingInterval time.Duration `yaml:"polling_interval"`
	PollingBatch    int           `yaml:"polling_batch"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/invoice-engine.db",
				MaxOpenConns: 1,
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
		},
		Storage: StorageConfig{
			TempDir: "/tmp/invoice-engine",
		},
		Rendering: RenderingConfig{
			DPI:     150,
			Quality: 85,
			Timeout: 60 * time.Second,
		},
		Extraction: ExtractionConfig{
			BaseURL:          "https://api.openai.com/v1",
			Model:            "gpt-4o-2024-08-06",
			MaxTokens:        4096,
			RequestTimeout:   120 * time.Second,
			BreakerThreshold: 10,
			BreakerWindow:    5 * time.Minute,
			BreakerCooldown:  30 * time.Second,
		},
		Pipeline: PipelineConfig{
			LeaseTTL:       time.Hour,
			Concurrency:    4,
			MaxErrorLength: 500,
			Render: StagePolicy{
				Attempts:       3,
				InitialBackoff: 1 * time.Second,
				MaxBackoff:     10 * time.Second,
				Timeout:        60 * time.Second,
			},
			Extract: StagePolicy{
				Attempts:       3,
				InitialBackoff: 30 * time.Second,
				MaxBackoff:     120 * time.Second,
				Timeout:        300 * time.Second,
			},
			Persist: StagePolicy{
				Attempts:       3,
				InitialBackoff: 1 * time.Second,
				MaxBackoff:     10 * time.Second,
				Timeout:        30 * time.Second,
			},
			Cleanup: StagePolicy{
				Attempts:       1,
				InitialBackoff: 1 * time.Second,
				MaxBackoff:     1 * time.Second,
				Timeout:        30 * time.Second,
			},
			PollingInterval: 5 * time.Second,
			PollingBatch:    10,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Rendering.Quality < 1 || c.Rendering.Quality > 100 {
		return fmt.Errorf("rendering quality must be between 1 and 100, got %d", c.Rendering.Quality)
	}

	if c.Rendering.DPI <= 0 {
		return fmt.Errorf("rendering dpi must be positive, got %v", c.Rendering.DPI)
	}

	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline concurrency must be at least 1, got %d", c.Pipeline.Concurrency)
	}

	if c.Pipeline.LeaseTTL <= 0 {
		return fmt.Errorf("lease ttl must be positive, got %v", c.Pipeline.LeaseTTL)
	}

	if c.Pipeline.MaxErrorLength < 1 {
		return fmt.Errorf("max error length must be positive, got %d", c.Pipeline.MaxErrorLength)
	}

	for _, sp := range []struct {
		name   string
		policy StagePolicy
	}{
		{"render", c.Pipeline.Render},
		{"extract", c.Pipeline.Extract},
		{"persist", c.Pipeline.Persist},
		{"cleanup", c.Pipeline.Cleanup},
	} {
		if sp.policy.Attempts < 1 {
			return fmt.Errorf("%s stage attempts must be at least 1", sp.name)
		}
		if sp.policy.Timeout <= 0 {
			return fmt.Errorf("%s stage timeout must be positive", sp.name)
		}
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Extraction.APIKey = v
	}

	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Extraction.BaseURL = v
	}

	if v := os.Getenv("EXTRACTION_MODEL"); v != "" {
		cfg.Extraction.Model = v
	}

	if v := os.Getenv("TEMP_DIR"); v != "" {
		cfg.Storage.TempDir = v
	}

	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Concurrency = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
