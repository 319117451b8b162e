package ledger

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests run against a real PostgreSQL when DATABASE_URL is set,
// exercising both write strategies against the same schema.

var integrationAccounts = []ProvisionedAccount{
	{ID: 1, Limit: 1000},
	{ID: 2, Limit: 500},
	{ID: 3, Limit: 100000},
	{ID: 4, Limit: 100000},
	{ID: 5, Limit: 100000},
}

func newIntegrationStore(t *testing.T, strategy Strategy) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))

	store := NewPostgresStore(pool, strategy, integrationAccounts)
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.Reset(ctx))
	return store
}

func integrationTxn(accountID int, kind string, amount int64, description string) Transaction {
	return Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

func forEachStrategy(t *testing.T, fn func(t *testing.T, store *PostgresStore)) {
	for _, strategy := range []Strategy{StrategyLock, StrategyAtomic} {
		t.Run(string(strategy), func(t *testing.T) {
			fn(t, newIntegrationStore(t, strategy))
		})
	}
}

func TestIntegrationDebitCreditSequence(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, store *PostgresStore) {
		ctx := context.Background()

		state, err := store.Apply(ctx, integrationTxn(1, KindDebit, 500, "rent"))
		require.NoError(t, err)
		assert.Equal(t, AccountState{Balance: -500, Limit: 1000}, state)

		_, err = store.Apply(ctx, integrationTxn(1, KindDebit, 600, "rent"))
		require.ErrorIs(t, err, ErrOverdraftRejected)

		state, err = store.Apply(ctx, integrationTxn(1, KindCredit, 600, "salary"))
		require.NoError(t, err)
		assert.Equal(t, AccountState{Balance: 100, Limit: 1000}, state)
	})
}

func TestIntegrationBoundaryDebitAccepted(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, store *PostgresStore) {
		ctx := context.Background()

		state, err := store.Apply(ctx, integrationTxn(2, KindDebit, 500, "all of it"))
		require.NoError(t, err)
		assert.Equal(t, int64(-500), state.Balance)

		_, err = store.Apply(ctx, integrationTxn(2, KindDebit, 1, "one more"))
		require.ErrorIs(t, err, ErrOverdraftRejected)
	})
}

func TestIntegrationConcurrentDebits(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, store *PostgresStore) {
		const n = 4
		amount := int64(1000/n + 1)

		results := make(chan error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Apply(context.Background(), integrationTxn(1, KindDebit, amount, "burst"))
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		accepted := 0
		for err := range results {
			if err == nil {
				accepted++
				continue
			}
			require.ErrorIs(t, err, ErrOverdraftRejected)
		}
		assert.LessOrEqual(t, accepted, n-1)

		st, err := store.Statement(context.Background(), 1)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, st.Balance, int64(-1000))
		assert.Equal(t, -amount*int64(accepted), st.Balance)
	})
}

func TestIntegrationStatementSnapshot(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, store *PostgresStore) {
		ctx := context.Background()

		var want int64
		for i := 1; i <= 12; i++ {
			_, err := store.Apply(ctx, integrationTxn(3, KindCredit, int64(i), "deposit"))
			require.NoError(t, err)
			want += int64(i)
		}

		st, err := store.Statement(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, want, st.Balance)
		require.Len(t, st.Recent, StatementLimit)
		assert.Equal(t, int64(12), st.Recent[0].Amount, "most recent first")
		assert.Equal(t, int64(3), st.Recent[9].Amount)
	})
}

func TestIntegrationResetRestoresProvisionedState(t *testing.T) {
	forEachStrategy(t, func(t *testing.T, store *PostgresStore) {
		ctx := context.Background()

		_, err := store.Apply(ctx, integrationTxn(4, KindDebit, 250, "spend"))
		require.NoError(t, err)

		require.NoError(t, store.Reset(ctx))

		for _, a := range integrationAccounts {
			st, err := store.Statement(ctx, a.ID)
			require.NoError(t, err)
			assert.Zero(t, st.Balance, "account %d", a.ID)
			assert.Equal(t, a.Limit, st.Limit, "account %d", a.ID)
		}
	})
}
