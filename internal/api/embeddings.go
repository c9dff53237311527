package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/loradex/loradex/internal/recommend"
)

// EmbeddingHandler exposes embedding computation and index maintenance.
type EmbeddingHandler struct {
	svc *recommend.Service
}

// NewEmbeddingHandler creates an EmbeddingHandler.
func NewEmbeddingHandler(svc *recommend.Service) *EmbeddingHandler {
	return &EmbeddingHandler{svc: svc}
}

type computeRequest struct {
	ForceRecompute bool `json:"force_recompute"`
}

// ComputeOne handles POST /api/v1/embeddings/compute/{id}.
func (h *EmbeddingHandler) ComputeOne(w http.ResponseWriter, r *http.Request) {
	adapterID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid adapter ID")
		return
	}

	var req computeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
			return
		}
	}

	ok, err := h.svc.ComputeForLora(r.Context(), adapterID, req.ForceRecompute)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"adapter_id": adapterID, "computed": ok})
}

type computeBatchRequest struct {
	AdapterIDs     []int64 `json:"adapter_ids,omitempty"`
	ForceRecompute bool    `json:"force_recompute"`
	BatchSize      int     `json:"batch_size"`
}

// ComputeBatch handles POST /api/v1/embeddings/compute-batch.
func (h *EmbeddingHandler) ComputeBatch(w http.ResponseWriter, r *http.Request) {
	var req computeBatchRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
			return
		}
	}

	summary, err := h.svc.ComputeBatch(r.Context(), req.AdapterIDs, req.ForceRecompute, req.BatchSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type rebuildRequest struct {
	Force bool `json:"force"`
}

// Rebuild handles POST /api/v1/embeddings/rebuild.
func (h *EmbeddingHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
			return
		}
	}

	result, err := h.svc.RefreshIndexes(r.Context(), req.Force)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Status handles GET /api/v1/embeddings/status/{id}.
func (h *EmbeddingHandler) Status(w http.ResponseWriter, r *http.Request) {
	adapterID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid adapter ID")
		return
	}

	status, err := h.svc.EmbeddingStatusFor(r.Context(), adapterID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
