package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/flashbots/nada-quickstart/cluster"
	"github.com/flashbots/nada-quickstart/crypto"
	"github.com/flashbots/nada-quickstart/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// HTTPCluster exposes a cluster over HTTP. Every POST body is a
// protocol.Signed request; the signer's user id is the caller identity.
type HTTPCluster struct {
	cluster *cluster.Cluster
}

// NewHTTPCluster wraps c with HTTP handlers.
func NewHTTPCluster(c *cluster.Cluster) *HTTPCluster {
	return &HTTPCluster{cluster: c}
}

// RegisterRoutes registers the cluster routes.
func (h *HTTPCluster) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))

		r.Get("/cluster", h.handleInfo)
		r.Post("/quote", h.handleQuote)
		r.Post("/programs", h.handleStoreProgram)
		r.Post("/values", h.handleStoreValues)
		r.Post("/values/retrieve", h.handleRetrieveValues)
		r.Post("/values/delete", h.handleDeleteValues)
		r.Post("/compute", h.handleCompute)
		r.Post("/compute/result", h.handleComputeResult)
	})
}

// decodeSigned reads a signed request and returns it with the signer's key.
func decodeSigned[T any](w http.ResponseWriter, r *http.Request) (*T, crypto.PublicKey, bool) {
	var signedReq protocol.Signed[T]
	if err := json.NewDecoder(r.Body).Decode(&signedReq); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, nil, false
	}

	req, signer, err := signedReq.Recover()
	if err != nil {
		http.Error(w, fmt.Errorf("invalid signature: %w", err).Error(), http.StatusForbidden)
		return nil, nil, false
	}
	return req, signer, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// clusterStatus maps cluster errors to HTTP status codes.
func clusterStatus(err error) int {
	switch {
	case errors.Is(err, cluster.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cluster.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, cluster.ErrPaymentInvalid):
		return http.StatusPaymentRequired
	case errors.Is(err, cluster.ErrReceiptReused):
		return http.StatusConflict
	case errors.Is(err, cluster.ErrQuoteExpired):
		return http.StatusGone
	case errors.Is(err, cluster.ErrInvalidRequest),
		errors.Is(err, cluster.ErrInvalidQuote),
		errors.Is(err, cluster.ErrOperationMismatch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *HTTPCluster) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.cluster.Info())
}

func (h *HTTPCluster) handleQuote(w http.ResponseWriter, r *http.Request) {
	req, _, ok := decodeSigned[protocol.QuoteRequest](w, r)
	if !ok {
		return
	}

	quote, err := h.cluster.RequestQuote(r.Context(), req.Operation)
	if err != nil {
		http.Error(w, err.Error(), clusterStatus(err))
		return
	}
	writeJSON(w, quote)
}

func (h *HTTPCluster) handleStoreProgram(w http.ResponseWriter, r *http.Request) {
	req, signer, ok := decodeSigned[protocol.StoreProgramRequest](w, r)
	if !ok {
		return
	}

	resp, err := h.cluster.StoreProgram(r.Context(), signer.UserID(), req)
	if err != nil {
		http.Error(w, err.Error(), clusterStatus(err))
		return
	}
	writeJSON(w, resp)
}

func (h *HTTPCluster) handleStoreValues(w http.ResponseWriter, r *http.Request) {
	req, signer, ok := decodeSigned[protocol.StoreValuesRequest](w, r)
	if !ok {
		return
	}

	resp, err := h.cluster.StoreValues(r.Context(), signer.UserID(), req)
	if err != nil {
		http.Error(w, err.Error(), clusterStatus(err))
		return
	}
	writeJSON(w, resp)
}

func (h *HTTPCluster) handleRetrieveValues(w http.ResponseWriter, r *http.Request) {
	req, signer, ok := decodeSigned[protocol.ValuesRequest](w, r)
	if !ok {
		return
	}

	resp, err := h.cluster.RetrieveValues(r.Context(), signer.UserID(), req.StoreID)
	if err != nil {
		http.Error(w, err.Error(), clusterStatus(err))
		return
	}
	writeJSON(w, resp)
}

func (h *HTTPCluster) handleDeleteValues(w http.ResponseWriter, r *http.Request) {
	req, signer, ok := decodeSigned[protocol.ValuesRequest](w, r)
	if !ok {
		return
	}

	if err := h.cluster.DeleteValues(r.Context(), signer.UserID(), req.StoreID); err != nil {
		http.Error(w, err.Error(), clusterStatus(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HTTPCluster) handleCompute(w http.ResponseWriter, r *http.Request) {
	req, signer, ok := decodeSigned[protocol.ComputeRequest](w, r)
	if !ok {
		return
	}

	resp, err := h.cluster.Compute(r.Context(), signer.UserID(), req)
	if err != nil {
		http.Error(w, err.Error(), clusterStatus(err))
		return
	}
	writeJSON(w, resp)
}

func (h *HTTPCluster) handleComputeResult(w http.ResponseWriter, r *http.Request) {
	req, signer, ok := decodeSigned[protocol.ComputeResultRequest](w, r)
	if !ok {
		return
	}

	resp, err := h.cluster.ComputeResult(r.Context(), signer, req)
	if err != nil {
		http.Error(w, err.Error(), clusterStatus(err))
		return
	}
	writeJSON(w, resp)
}
