package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all exchangekit configuration. Values load from an optional
// JSON file, then environment variables override file values.
type Config struct {
	Engine    EngineConfig    `json:"engine"`
	Retention RetentionConfig `json:"retention"`
	Sweep     SweepConfig     `json:"sweep"`
	Storage   StorageConfig   `json:"storage"`
	Logging   LoggingConfig   `json:"logging"`
}

type EngineConfig struct {
	// DecayRate is the per-hour exponential decay constant.
	DecayRate float64 `json:"decay_rate" env:"EXCHANGEKIT_ENGINE_DECAY_RATE"`
	// BalanceNorm is the normalization constant for the data sub-score.
	BalanceNorm float64 `json:"balance_norm" env:"EXCHANGEKIT_ENGINE_BALANCE_NORM"`
	// FrequencyWindow caps the inter-event interval history per relationship.
	FrequencyWindow int `json:"frequency_window" env:"EXCHANGEKIT_ENGINE_FREQUENCY_WINDOW"`
}

type RetentionConfig struct {
	HighValueThreshold   float64 `json:"high_value_threshold" env:"EXCHANGEKIT_RETENTION_HIGH_VALUE_THRESHOLD"`
	LowValueThreshold    float64 `json:"low_value_threshold" env:"EXCHANGEKIT_RETENTION_LOW_VALUE_THRESHOLD"`
	DetailRetentionDays  int     `json:"detail_retention_days" env:"EXCHANGEKIT_RETENTION_DETAIL_DAYS"`
	SummaryRetentionDays int     `json:"summary_retention_days" env:"EXCHANGEKIT_RETENTION_SUMMARY_DAYS"`
	ExemplarCap          int     `json:"exemplar_cap" env:"EXCHANGEKIT_RETENTION_EXEMPLAR_CAP"`
}

type SweepConfig struct {
	Enabled bool   `json:"enabled" env:"EXCHANGEKIT_SWEEP_ENABLED"`
	Cron    string `json:"cron" env:"EXCHANGEKIT_SWEEP_CRON"`
}

type StorageConfig struct {
	// Backend selects the store: "memory", "sqlite" or "redis".
	Backend string `json:"backend" env:"EXCHANGEKIT_STORAGE_BACKEND"`
	// Path is the sqlite database file (sqlite backend only).
	Path string `json:"path" env:"EXCHANGEKIT_STORAGE_PATH"`
	// RedisAddr is host:port for the redis backend.
	RedisAddr string `json:"redis_addr" env:"EXCHANGEKIT_STORAGE_REDIS_ADDR"`
	// RedisPrefix namespaces all keys written by the redis backend.
	RedisPrefix string `json:"redis_prefix" env:"EXCHANGEKIT_STORAGE_REDIS_PREFIX"`
}

type LoggingConfig struct {
	Level  string `json:"level" env:"EXCHANGEKIT_LOG_LEVEL"`
	Format string `json:"format" env:"EXCHANGEKIT_LOG_FORMAT"` // "text" or "json"
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			DecayRate:       0.1,
			BalanceNorm:     1000,
			FrequencyWindow: 64,
		},
		Retention: RetentionConfig{
			HighValueThreshold:   0.8,
			LowValueThreshold:    0.2,
			DetailRetentionDays:  7,
			SummaryRetentionDays: 90,
			ExemplarCap:          5,
		},
		Sweep: SweepConfig{
			Enabled: true,
			Cron:    "0 3 * * *", // daily at 03:00
		},
		Storage: StorageConfig{
			Backend:     "memory",
			Path:        "", // resolved by the caller when backend is sqlite
			RedisPrefix: "xk",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads path (if it exists), then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg as indented JSON.
func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate rejects configurations the engine would fail fast on anyway,
// so misconfiguration surfaces at load time.
func (c *Config) Validate() error {
	if c.Retention.LowValueThreshold >= c.Retention.HighValueThreshold {
		return fmt.Errorf("retention: low threshold %v must be below high threshold %v",
			c.Retention.LowValueThreshold, c.Retention.HighValueThreshold)
	}
	if c.Retention.DetailRetentionDays <= 0 || c.Retention.SummaryRetentionDays <= 0 {
		return fmt.Errorf("retention: periods must be positive")
	}
	if c.Retention.DetailRetentionDays >= c.Retention.SummaryRetentionDays {
		return fmt.Errorf("retention: detail period %dd must be below summary period %dd",
			c.Retention.DetailRetentionDays, c.Retention.SummaryRetentionDays)
	}
	switch c.Storage.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "redis" && c.Storage.RedisAddr == "" {
		return fmt.Errorf("storage: redis backend requires redis_addr")
	}
	return nil
}

// DetailRetentionPeriod returns the detail window as a duration.
func (c *Config) DetailRetentionPeriod() time.Duration {
	return time.Duration(c.Retention.DetailRetentionDays) * 24 * time.Hour
}

// SummaryRetentionPeriod returns the summary window as a duration.
func (c *Config) SummaryRetentionPeriod() time.Duration {
	return time.Duration(c.Retention.SummaryRetentionDays) * 24 * time.Hour
}
