// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/example/crebito/internal/ledger"
)

// Config holds the server configuration.
type Config struct {
	ListenAddr   string
	DatabaseURL  string
	PoolMaxConns int32
	Strategy     ledger.Strategy
}

// Load reads configuration from environment variables, applying defaults
// sized for the reference deployment (5 accounts, pool of 20).
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("database_url", "postgres://admin:123@db:5432/rinha")
	v.SetDefault("pool_max_conns", 20)
	v.SetDefault("ledger_strategy", string(ledger.StrategyLock))
	v.AutomaticEnv()

	strategy, err := ledger.ParseStrategy(v.GetString("ledger_strategy"))
	if err != nil {
		return nil, fmt.Errorf("LEDGER_STRATEGY: %w", err)
	}

	cfg := &Config{
		ListenAddr:   v.GetString("listen_addr"),
		DatabaseURL:  v.GetString("database_url"),
		PoolMaxConns: v.GetInt32("pool_max_conns"),
		Strategy:     strategy,
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL must not be empty")
	}
	if cfg.PoolMaxConns < 1 {
		return nil, fmt.Errorf("POOL_MAX_CONNS must be positive, got %d", cfg.PoolMaxConns)
	}
	return cfg, nil
}

// ProvisionedAccounts returns the fixed account universe with its per-account
// overdraft limits. Accounts are provisioned once and never deleted.
func ProvisionedAccounts() []ledger.ProvisionedAccount {
	return []ledger.ProvisionedAccount{
		{ID: 1, Limit: 100_000},
		{ID: 2, Limit: 80_000},
		{ID: 3, Limit: 1_000_000},
		{ID: 4, Limit: 10_000_000},
		{ID: 5, Limit: 500_000},
	}
}
