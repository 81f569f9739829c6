package services

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flashbots/nada-quickstart/ledger"
	"github.com/go-chi/chi/v5"
)

// ChainInfo describes the payment chain.
type ChainInfo struct {
	ChainID string `json:"chain_id"`
	Height  uint64 `json:"height"`
}

// SubmitTxResponse returns the hash of an accepted transaction.
type SubmitTxResponse struct {
	TxHash string `json:"tx_hash"`
}

// HTTPLedger exposes the devnet ledger over HTTP.
type HTTPLedger struct {
	ledger *ledger.Ledger
}

// NewHTTPLedger wraps l with HTTP handlers.
func NewHTTPLedger(l *ledger.Ledger) *HTTPLedger {
	return &HTTPLedger{ledger: l}
}

// RegisterRoutes registers the ledger routes.
func (h *HTTPLedger) RegisterRoutes(r chi.Router) {
	r.Get("/chain", h.handleChain)
	r.Get("/accounts/{address}", h.handleAccount)
	r.Post("/txs", h.handleSubmit)
	r.Get("/txs/{hash}", h.handleTransaction)
}

func ledgerStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrTxNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrBadSequence):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidSignature):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrWrongChain), errors.Is(err, ledger.ErrInvalidAddress):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *HTTPLedger) handleChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, &ChainInfo{ChainID: h.ledger.ChainID(), Height: h.ledger.Height()})
}

func (h *HTTPLedger) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.Account(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		http.Error(w, err.Error(), ledgerStatus(err))
		return
	}
	writeJSON(w, account)
}

func (h *HTTPLedger) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var stx ledger.SignedTransaction
	if err := json.NewDecoder(r.Body).Decode(&stx); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	hash, err := h.ledger.Submit(r.Context(), &stx)
	if err != nil {
		http.Error(w, err.Error(), ledgerStatus(err))
		return
	}
	writeJSON(w, &SubmitTxResponse{TxHash: hash})
}

func (h *HTTPLedger) handleTransaction(w http.ResponseWriter, r *http.Request) {
	rec, err := h.ledger.Transaction(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		http.Error(w, err.Error(), ledgerStatus(err))
		return
	}
	writeJSON(w, rec)
}
