package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Engine is the high-level ledger API. It validates requests before touching
// shared state and delegates the atomic balance mutation to the Store.
type Engine struct {
	store       Store
	validate    *validator.Validate
	provisioned map[int]int64
}

// NewEngine creates an engine over the given store, restricted to the
// provisioned account universe.
func NewEngine(store Store, accounts []ProvisionedAccount) *Engine {
	provisioned := make(map[int]int64, len(accounts))
	for _, a := range accounts {
		provisioned[a.ID] = a.Limit
	}
	return &Engine{
		store:       store,
		validate:    validator.New(),
		provisioned: provisioned,
	}
}

// Apply validates and applies a debit or credit. On success it returns the
// authoritative post-commit (balance, limit) pair. A rejected request leaves
// the account byte-for-byte unchanged.
func (e *Engine) Apply(ctx context.Context, accountID int, req TransactionRequest) (AccountState, error) {
	if err := e.validate.Struct(req); err != nil {
		return AccountState{}, &ValidationError{Err: err}
	}
	if _, ok := e.provisioned[accountID]; !ok {
		return AccountState{}, ErrAccountNotFound
	}

	txn := Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      req.Amount,
		Kind:        req.Kind,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}

	state, err := e.store.Apply(ctx, txn)
	if err != nil {
		return AccountState{}, err
	}
	if state.Balance < -state.Limit {
		// Both store strategies make this unreachable; reaching it means the
		// serialization guarantee is broken.
		return AccountState{}, &StoreError{
			Op:  "apply",
			Err: fmt.Errorf("committed balance %d below -%d on account %d", state.Balance, state.Limit, accountID),
		}
	}
	return state, nil
}

// Statement returns a consistent snapshot of the account: current balance,
// limit, and its most recent transactions, newest first, capped at
// StatementLimit.
func (e *Engine) Statement(ctx context.Context, accountID int) (*Statement, error) {
	if _, ok := e.provisioned[accountID]; !ok {
		return nil, ErrAccountNotFound
	}
	return e.store.Statement(ctx, accountID)
}

// Reset restores every provisioned account to its initial (balance=0, limit)
// pair. Administrative; used to decouple successive benchmark windows.
// Transaction history is append-only and survives a reset.
func (e *Engine) Reset(ctx context.Context) error {
	return e.store.Reset(ctx)
}
