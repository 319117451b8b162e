// Package ledger implements the account ledger: balance mutation under the
// overdraft invariant (balance >= -limit) and consistent statement reads.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transaction kinds as they appear on the wire.
const (
	KindCredit = "c"
	KindDebit  = "d"
)

// StatementLimit caps how many transactions a statement returns.
const StatementLimit = 10

var (
	// ErrAccountNotFound indicates the account id is outside the provisioned range.
	ErrAccountNotFound = errors.New("account not found")
	// ErrOverdraftRejected indicates a debit that would push the balance below -limit.
	ErrOverdraftRejected = errors.New("debit would exceed credit limit")
)

// ValidationError wraps a request precondition failure. It is always detected
// before any store access.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "invalid transaction request: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// StoreError wraps a store-level fault (connection loss, timeout, failed
// commit). The request left no partial effect and is safe to retry.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("ledger store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ProvisionedAccount describes one of the fixed accounts the service
// operates on. Accounts are created at bootstrap and never deleted.
type ProvisionedAccount struct {
	ID    int
	Limit int64
}

// TransactionRequest is a debit or credit to apply to an account.
type TransactionRequest struct {
	Amount      int64  `json:"valor" validate:"required,gt=0"`
	Kind        string `json:"tipo" validate:"required,oneof=c d"`
	Description string `json:"descricao" validate:"required,min=1,max=10"`
}

// Delta returns the signed effect of the request on a balance.
func (r TransactionRequest) Delta() int64 {
	if r.Kind == KindDebit {
		return -r.Amount
	}
	return r.Amount
}

// Transaction is one committed ledger entry. History is append-only.
type Transaction struct {
	ID          uuid.UUID
	AccountID   int
	Amount      int64
	Kind        string
	Description string
	CreatedAt   time.Time
}

// AccountState is the authoritative (balance, limit) pair after a commit.
type AccountState struct {
	Balance int64
	Limit   int64
}

// Statement is a consistent snapshot of an account: the (balance, limit)
// pair and the most recent transactions, newest first, as of a single
// point in time. Recent never includes a transaction whose effect is not
// reflected in Balance.
type Statement struct {
	Balance int64
	Limit   int64
	TakenAt time.Time
	Recent  []Transaction
}

// Store is the durable account store. Apply must be atomic: the balance
// update and the transaction row share one commit boundary, and a rejected
// or failed request leaves no trace. Concurrent Apply calls on the same
// account are serialized at the store's commit boundary; calls on different
// accounts proceed in parallel.
type Store interface {
	Apply(ctx context.Context, txn Transaction) (AccountState, error)
	Statement(ctx context.Context, accountID int) (*Statement, error)
	Reset(ctx context.Context) error
}
