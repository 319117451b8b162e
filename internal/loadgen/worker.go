package loadgen

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"

	"github.com/example/crebito/internal/ledger"
)

// cyclePeriod is the length of the repeating operation mix. Each worker
// walks the cycle with its own counter; position 33 reads a statement, the
// rest is a debit-heavy blend with interleaved credits.
const cyclePeriod = 34

type opKind int

const (
	opDebit opKind = iota
	opCredit
	opStatement
)

// opAt maps a cycle position to the operation issued there.
func opAt(counter uint64) opKind {
	pos := counter % cyclePeriod
	switch {
	case pos%2 == 0 && pos != 22:
		return opDebit
	case pos%3 == 1 && pos != 22 && pos != 33:
		return opDebit
	case pos == 22 || pos%6 == 4 || pos%9 == 7:
		return opCredit
	case pos == 33:
		return opStatement
	default:
		return opDebit
	}
}

// Stats counts the outcomes of one worker's requests.
type Stats struct {
	Requests       uint64
	Debits         uint64
	RejectedDebits uint64
	Credits        uint64
	Statements     uint64
	Resets         uint64
}

func (s *Stats) merge(o Stats) {
	s.Requests += o.Requests
	s.Debits += o.Debits
	s.RejectedDebits += o.RejectedDebits
	s.Credits += o.Credits
	s.Statements += o.Statements
	s.Resets += o.Resets
}

// worker issues the cyclic workload. Its counter and rand source are owned
// exclusively by the worker, never shared.
type worker struct {
	id       int
	client   *Client
	accounts []int
	rng      *rand.Rand
	counter  uint64
	stats    Stats
}

func newWorker(id int, client *Client, accounts []int, seed int64) *worker {
	return &worker{
		id:       id,
		client:   client,
		accounts: accounts,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// step issues one operation and, at the start of each cycle, a reset that
// decouples successive measurement windows.
func (w *worker) step(ctx context.Context) error {
	var err error
	switch opAt(w.counter) {
	case opCredit:
		err = w.credit(ctx)
	case opStatement:
		err = w.statement(ctx)
	default:
		err = w.debit(ctx)
	}
	if err != nil {
		return err
	}

	if w.counter%cyclePeriod == 0 {
		if err := w.client.Reset(ctx); err != nil {
			return err
		}
		w.stats.Resets++
	}

	w.counter++
	w.stats.Requests++
	return nil
}

// debit treats 422 as the invariant correctly preventing an overdraft; a 200
// must still satisfy saldo >= -limite.
func (w *worker) debit(ctx context.Context) error {
	status, reply, err := w.client.Transaction(ctx, w.accountID(), ledger.KindDebit, w.amount(), w.description())
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		w.stats.Debits++
		return checkWithinLimit(reply.Saldo, reply.Limite)
	case http.StatusUnprocessableEntity:
		w.stats.Debits++
		w.stats.RejectedDebits++
		return nil
	default:
		return fmt.Errorf("debit: unexpected status %d", status)
	}
}

// credit can never violate the invariant, so anything but a 200 is a failure.
func (w *worker) credit(ctx context.Context) error {
	status, reply, err := w.client.Transaction(ctx, w.accountID(), ledger.KindCredit, w.amount(), w.description())
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("credit: unexpected status %d", status)
	}
	w.stats.Credits++
	return checkWithinLimit(reply.Saldo, reply.Limite)
}

// statement is a pure read; anything but a 200 is a failure.
func (w *worker) statement(ctx context.Context) error {
	status, reply, err := w.client.Statement(ctx, w.accountID())
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("statement: unexpected status %d", status)
	}
	w.stats.Statements++
	return checkWithinLimit(reply.Saldo.Total, reply.Saldo.Limite)
}

// checkWithinLimit is the load generator's independent copy of the overdraft
// invariant, applied to (balance, limit) pairs taken from response bodies.
func checkWithinLimit(balance, limit int64) error {
	if balance < -limit {
		return fmt.Errorf("overdraft invariant violated: balance %d below -%d", balance, limit)
	}
	return nil
}

const descriptionAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func (w *worker) accountID() int {
	return w.accounts[w.rng.Intn(len(w.accounts))]
}

func (w *worker) amount() int64 {
	return 1 + w.rng.Int63n(10000)
}

func (w *worker) description() string {
	b := make([]byte, 10)
	for i := range b {
		b[i] = descriptionAlphabet[w.rng.Intn(len(descriptionAlphabet))]
	}
	return string(b)
}
