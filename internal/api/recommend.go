package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/loradex/loradex/internal/engine"
	"github.com/loradex/loradex/internal/recommend"
	"github.com/loradex/loradex/internal/trigger"
)

// RecommendHandler exposes the recommendation service operations.
type RecommendHandler struct {
	svc *recommend.Service
}

// NewRecommendHandler creates a RecommendHandler.
func NewRecommendHandler(svc *recommend.Service) *RecommendHandler {
	return &RecommendHandler{svc: svc}
}

type similarRequest struct {
	Limit               int             `json:"limit"`
	SimilarityThreshold float64         `json:"similarity_threshold"`
	Weights             *engine.Weights `json:"weights,omitempty"`
	DiversifyResults    *bool           `json:"diversify_results,omitempty"`
}

// Similar handles POST /api/v1/recommendations/similar/{id}.
func (h *RecommendHandler) Similar(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid adapter ID")
		return
	}

	req := similarRequest{Limit: 10}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
			return
		}
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	diversify := true
	if req.DiversifyResults != nil {
		diversify = *req.DiversifyResults
	}

	resp, err := h.svc.SimilarLoras(r.Context(), targetID, req.Limit, req.SimilarityThreshold, req.Weights, diversify)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type promptRequest struct {
	Prompt          string  `json:"prompt"`
	ActiveLoras     []int64 `json:"active_loras,omitempty"`
	Limit           int     `json:"limit"`
	StylePreference string  `json:"style_preference,omitempty"`
}

// Prompt handles POST /api/v1/recommendations/prompt.
func (h *RecommendHandler) Prompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "prompt is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	resp, err := h.svc.RecommendForPrompt(r.Context(), req.Prompt, req.ActiveLoras, req.Limit, req.StylePreference)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SearchTriggers handles GET /api/v1/recommendations/triggers?q=...&limit=N.
func (h *RecommendHandler) SearchTriggers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	candidates, err := h.svc.SearchTriggers(r.Context(), query, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if candidates == nil {
		candidates = []trigger.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": candidates})
}

// Feedback handles POST /api/v1/recommendations/feedback.
func (h *RecommendHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var in recommend.FeedbackInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if err := h.svc.RecordFeedback(r.Context(), in); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"recorded": true})
}

// Preference handles PUT /api/v1/recommendations/preferences.
func (h *RecommendHandler) Preference(w http.ResponseWriter, r *http.Request) {
	var in recommend.PreferenceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	pref, err := h.svc.UpdatePreference(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

// Stats handles GET /api/v1/recommendations/stats.
func (h *RecommendHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
