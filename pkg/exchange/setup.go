package exchange

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mglynne/exchangekit/pkg/config"
	"github.com/mglynne/exchangekit/pkg/logging"
)

// NewEngineFromConfig wires a store, logger and engine from application
// configuration. Callers embedding the engine directly can use NewEngine
// with their own store instead.
func NewEngineFromConfig(cfg *config.Config, extra ...Dimension) (*Engine, error) {
	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	engineCfg := Config{
		DecayRate:       cfg.Engine.DecayRate,
		BalanceNorm:     cfg.Engine.BalanceNorm,
		FrequencyWindow: cfg.Engine.FrequencyWindow,
		ExtraDimensions: extra,
	}
	return NewEngine(engineCfg, store, logging.New(cfg.Logging)), nil
}

func openStore(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("sqlite backend requires storage.path")
		}
		return NewSQLiteStore(cfg.Path)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return NewRedisStore(client, RedisStoreConfig{Prefix: cfg.RedisPrefix}), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// PolicyFromConfig converts retention configuration into a validated policy.
func PolicyFromConfig(cfg *config.Config) (RetentionPolicy, error) {
	p := RetentionPolicy{
		HighValueThreshold:     cfg.Retention.HighValueThreshold,
		LowValueThreshold:      cfg.Retention.LowValueThreshold,
		DetailRetentionPeriod:  time.Duration(cfg.Retention.DetailRetentionDays) * 24 * time.Hour,
		SummaryRetentionPeriod: time.Duration(cfg.Retention.SummaryRetentionDays) * 24 * time.Hour,
		ExemplarCap:            cfg.Retention.ExemplarCap,
	}
	if err := p.Validate(); err != nil {
		return RetentionPolicy{}, err
	}
	return p, nil
}
