package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Strategy selects how the store serializes concurrent writers on the same
// account. Both strategies uphold the overdraft invariant; pick one at
// startup and keep it for the life of the process.
type Strategy string

const (
	// StrategyLock takes an exclusive row lock (SELECT ... FOR UPDATE) and
	// decides the outcome in application code while the lock is held.
	StrategyLock Strategy = "lock"
	// StrategyAtomic issues a single conditional UPDATE whose predicate
	// enforces the invariant; a zero-row update is an overdraft rejection.
	StrategyAtomic Strategy = "atomic"
)

// ParseStrategy validates a strategy name from configuration.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLock, StrategyAtomic:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown ledger strategy %q (want %q or %q)", s, StrategyLock, StrategyAtomic)
}

// opTimeout bounds every store round-trip. A request that cannot complete in
// time fails with StoreError and leaves no side effect.
const opTimeout = 5 * time.Second

// PostgresStore is the durable account store. All reads and writes go
// through Postgres; balances are never cached in-process.
type PostgresStore struct {
	pool        *pgxpool.Pool
	strategy    Strategy
	provisioned []ProvisionedAccount
}

// NewPostgresStore creates a store over the given pool using the given
// write strategy.
func NewPostgresStore(pool *pgxpool.Pool, strategy Strategy, provisioned []ProvisionedAccount) *PostgresStore {
	return &PostgresStore{pool: pool, strategy: strategy, provisioned: provisioned}
}

// One statement per entry; pgx's extended protocol does not accept
// multi-statement strings.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
	    id           INT PRIMARY KEY,
	    credit_limit BIGINT NOT NULL,
	    balance      BIGINT NOT NULL DEFAULT 0,
	    CONSTRAINT accounts_overdraft CHECK (balance >= -credit_limit)
	)`,
	`CREATE TABLE IF NOT EXISTS account_transactions (
	    id          UUID PRIMARY KEY,
	    seq         BIGSERIAL,
	    account_id  INT NOT NULL REFERENCES accounts (id),
	    amount      BIGINT NOT NULL,
	    kind        CHAR(1) NOT NULL,
	    description VARCHAR(10) NOT NULL,
	    created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS account_transactions_recent
	    ON account_transactions (account_id, seq DESC)`,
}

// EnsureSchema creates the tables and provisions the fixed accounts if they
// do not exist yet. Existing balances are left untouched.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return &StoreError{Op: "ensure schema", Err: err}
		}
	}
	for _, a := range s.provisioned {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO accounts (id, credit_limit, balance) VALUES ($1, $2, 0)
			 ON CONFLICT (id) DO NOTHING`,
			a.ID, a.Limit)
		if err != nil {
			return &StoreError{Op: "provision accounts", Err: err}
		}
	}
	return nil
}

// Apply commits a transaction and its balance effect as one atomic unit of
// work. See Strategy for the two serialization modes.
func (s *PostgresStore) Apply(ctx context.Context, txn Transaction) (AccountState, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if s.strategy == StrategyAtomic {
		return s.applyAtomic(ctx, txn)
	}
	return s.applyLocked(ctx, txn)
}

// applyLocked serializes writers on the account via an exclusive row lock.
// The lock is held from the read through commit, so the outcome is decided
// against a balance no concurrent writer can move.
func (s *PostgresStore) applyLocked(ctx context.Context, txn Transaction) (AccountState, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return AccountState{}, &StoreError{Op: "begin", Err: err}
	}
	defer tx.Rollback(ctx)

	var balance, limit int64
	err = tx.QueryRow(ctx,
		`SELECT balance, credit_limit FROM accounts WHERE id = $1 FOR UPDATE`,
		txn.AccountID).Scan(&balance, &limit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountState{}, ErrAccountNotFound
		}
		return AccountState{}, &StoreError{Op: "lock account row", Err: err}
	}

	next := balance + txn.Amount
	if txn.Kind == KindDebit {
		next = balance - txn.Amount
		if next < -limit {
			// Rollback via the deferred call; no partial writes.
			return AccountState{}, ErrOverdraftRejected
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = $1 WHERE id = $2`,
		next, txn.AccountID); err != nil {
		return AccountState{}, &StoreError{Op: "update balance", Err: err}
	}
	if err := s.insertTransaction(ctx, tx, txn); err != nil {
		return AccountState{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return AccountState{}, &StoreError{Op: "commit", Err: err}
	}
	return AccountState{Balance: next, Limit: limit}, nil
}

// applyAtomic folds the invariant check and the balance mutation into one
// conditional UPDATE. The predicate holds trivially for credits; for debits
// a zero-row update means the debit would cross -credit_limit. The row lock
// taken by the UPDATE itself keeps the transaction insert and the balance
// change in the same commit boundary.
func (s *PostgresStore) applyAtomic(ctx context.Context, txn Transaction) (AccountState, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return AccountState{}, &StoreError{Op: "begin", Err: err}
	}
	defer tx.Rollback(ctx)

	delta := txn.Amount
	if txn.Kind == KindDebit {
		delta = -txn.Amount
	}

	var balance, limit int64
	err = tx.QueryRow(ctx,
		`UPDATE accounts
		    SET balance = balance + $2
		  WHERE id = $1 AND balance + $2 >= -credit_limit
		 RETURNING balance, credit_limit`,
		txn.AccountID, delta).Scan(&balance, &limit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountState{}, s.classifyZeroUpdate(ctx, tx, txn.AccountID)
		}
		return AccountState{}, &StoreError{Op: "conditional update", Err: err}
	}

	if err := s.insertTransaction(ctx, tx, txn); err != nil {
		return AccountState{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return AccountState{}, &StoreError{Op: "commit", Err: err}
	}
	return AccountState{Balance: balance, Limit: limit}, nil
}

// classifyZeroUpdate distinguishes a rejected debit from a missing account
// after a conditional update matched no row.
func (s *PostgresStore) classifyZeroUpdate(ctx context.Context, tx pgx.Tx, accountID int) error {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`,
		accountID).Scan(&exists)
	if err != nil {
		return &StoreError{Op: "check account", Err: err}
	}
	if !exists {
		return ErrAccountNotFound
	}
	return ErrOverdraftRejected
}

func (s *PostgresStore) insertTransaction(ctx context.Context, tx pgx.Tx, txn Transaction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO account_transactions (id, account_id, amount, kind, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		txn.ID.String(), txn.AccountID, txn.Amount, txn.Kind, txn.Description, txn.CreatedAt)
	if err != nil {
		return &StoreError{Op: "insert transaction", Err: err}
	}
	return nil
}

// Statement reads the (balance, limit) pair and the most recent transactions
// under one REPEATABLE READ snapshot, so the returned balance and list can
// never mix pre- and post-commit state.
func (s *PostgresStore) Statement(ctx context.Context, accountID int) (*Statement, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, &StoreError{Op: "begin snapshot", Err: err}
	}
	defer tx.Rollback(ctx)

	st := &Statement{TakenAt: time.Now().UTC()}
	err = tx.QueryRow(ctx,
		`SELECT balance, credit_limit FROM accounts WHERE id = $1`,
		accountID).Scan(&st.Balance, &st.Limit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, &StoreError{Op: "read account", Err: err}
	}

	rows, err := tx.Query(ctx,
		`SELECT id::text, amount, kind, description, created_at
		   FROM account_transactions
		  WHERE account_id = $1
		  ORDER BY seq DESC
		  LIMIT $2`,
		accountID, StatementLimit)
	if err != nil {
		return nil, &StoreError{Op: "read transactions", Err: err}
	}
	defer rows.Close()

	st.Recent = make([]Transaction, 0, StatementLimit)
	for rows.Next() {
		t := Transaction{AccountID: accountID}
		var id string
		if err := rows.Scan(&id, &t.Amount, &t.Kind, &t.Description, &t.CreatedAt); err != nil {
			return nil, &StoreError{Op: "scan transaction", Err: err}
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, &StoreError{Op: "scan transaction", Err: err}
		}
		st.Recent = append(st.Recent, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "read transactions", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, &StoreError{Op: "end snapshot", Err: err}
	}
	return st, nil
}

// Reset restores every provisioned account to (balance=0, limit). History is
// append-only and kept.
func (s *PostgresStore) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &StoreError{Op: "begin reset", Err: err}
	}
	defer tx.Rollback(ctx)

	for _, a := range s.provisioned {
		_, err := tx.Exec(ctx,
			`INSERT INTO accounts (id, credit_limit, balance) VALUES ($1, $2, 0)
			 ON CONFLICT (id) DO UPDATE SET balance = 0, credit_limit = EXCLUDED.credit_limit`,
			a.ID, a.Limit)
		if err != nil {
			return &StoreError{Op: "reset account", Err: err}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return &StoreError{Op: "commit reset", Err: err}
	}
	return nil
}
