package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/crebito/internal/ledger"
)

type transactionResponse struct {
	Limite int64 `json:"limite"`
	Saldo  int64 `json:"saldo"`
}

type balanceInfo struct {
	Total       int64     `json:"total"`
	DataExtrato time.Time `json:"data_extrato"`
	Limite      int64     `json:"limite"`
}

type transactionInfo struct {
	Valor       int64     `json:"valor"`
	Tipo        string    `json:"tipo"`
	Descricao   string    `json:"descricao"`
	RealizadaEm time.Time `json:"realizada_em"`
}

type statementResponse struct {
	Saldo             balanceInfo       `json:"saldo"`
	UltimasTransacoes []transactionInfo `json:"ultimas_transacoes"`
}

func accountID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

func handleTransaction(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := accountID(r)
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		var req ledger.TransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			// Malformed body and wrong field types (fractional valor) land
			// here and are client faults, same as a failed precondition.
			writeError(w, http.StatusUnprocessableEntity, "invalid_payload")
			return
		}

		state, err := deps.Ledger.Apply(r.Context(), id, req)
		if err != nil {
			respondLedgerError(deps, w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, transactionResponse{
			Limite: state.Limit,
			Saldo:  state.Balance,
		})
	}
}

func handleStatement(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := accountID(r)
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}

		st, err := deps.Ledger.Statement(r.Context(), id)
		if err != nil {
			respondLedgerError(deps, w, r, err)
			return
		}

		resp := statementResponse{
			Saldo: balanceInfo{
				Total:       st.Balance,
				DataExtrato: st.TakenAt,
				Limite:      st.Limit,
			},
			UltimasTransacoes: make([]transactionInfo, 0, len(st.Recent)),
		}
		for _, t := range st.Recent {
			resp.UltimasTransacoes = append(resp.UltimasTransacoes, transactionInfo{
				Valor:       t.Amount,
				Tipo:        t.Kind,
				Descricao:   t.Description,
				RealizadaEm: t.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleReset(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Ledger.Reset(r.Context()); err != nil {
			respondLedgerError(deps, w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// respondLedgerError maps the ledger error taxonomy to status codes 1:1.
// Server faults never leak store-internal error text to the client.
func respondLedgerError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	var vErr *ledger.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusUnprocessableEntity, "invalid_transaction")
	case errors.Is(err, ledger.ErrOverdraftRejected):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_limit")
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	default:
		deps.Logger.Error("ledger request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}
