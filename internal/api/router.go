// Package api exposes the ledger over the fixed HTTP surface.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/crebito/internal/ledger"
)

// Ledger is the engine surface the handlers call into.
type Ledger interface {
	Apply(ctx context.Context, accountID int, req ledger.TransactionRequest) (ledger.AccountState, error)
	Statement(ctx context.Context, accountID int) (*ledger.Statement, error)
	Reset(ctx context.Context) error
}

// Dependencies wires the router to its collaborators.
type Dependencies struct {
	Logger *slog.Logger
	Ledger Ledger
}

// NewRouter builds the HTTP handler tree.
func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(deps.Logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/clientes/{id}/transacoes", handleTransaction(deps))
	r.Get("/clientes/{id}/extrato", handleStatement(deps))
	r.Post("/reset", handleReset(deps))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})

	return r
}
