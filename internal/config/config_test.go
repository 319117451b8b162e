package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/crebito/internal/ledger"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "postgres://admin:123@db:5432/rinha", cfg.DatabaseURL)
	assert.Equal(t, int32(20), cfg.PoolMaxConns)
	assert.Equal(t, ledger.StrategyLock, cfg.Strategy)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/ledger")
	t.Setenv("POOL_MAX_CONNS", "40")
	t.Setenv("LEDGER_STRATEGY", "atomic")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "postgres://u:p@localhost:5432/ledger", cfg.DatabaseURL)
	assert.Equal(t, int32(40), cfg.PoolMaxConns)
	assert.Equal(t, ledger.StrategyAtomic, cfg.Strategy)
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	t.Setenv("LEDGER_STRATEGY", "hopeful")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEDGER_STRATEGY")
}

func TestLoadRejectsBadPoolSize(t *testing.T) {
	t.Setenv("POOL_MAX_CONNS", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestProvisionedAccounts(t *testing.T) {
	accounts := ProvisionedAccounts()
	require.Len(t, accounts, 5)

	limits := map[int]int64{1: 100_000, 2: 80_000, 3: 1_000_000, 4: 10_000_000, 5: 500_000}
	for _, a := range accounts {
		assert.Equal(t, limits[a.ID], a.Limit, "account %d", a.ID)
	}
}
