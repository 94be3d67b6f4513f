// Package svc exposes MemoryService and the analytics Service over HTTP,
// grounded on the teacher's internal/server package: JSON
// request/response structs decoded with encoding/json, one handler per
// route, zap request logging (internal/server/http_handler.go). Alongside
// it runs a grpc.Server built with a logging+recovery interceptor chain
// (cmd/server/main.go) that registers only the health and reflection
// services; the memory and analytics operations are not served over gRPC.
package svc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/antigravity/cogmem/internal/analytics"
	"github.com/antigravity/cogmem/internal/memory"
	"github.com/antigravity/cogmem/internal/workflow"
)

// HTTPHandler wraps MemoryService + analytics.Service for HTTP requests.
type HTTPHandler struct {
	Memory    *memory.MemoryService
	Analytics *analytics.Service
	Workflow  *workflow.Engine // optional; nil disables /analytics/source/workflow
	Logger    *zap.SugaredLogger
}

func NewHTTPHandler(mem *memory.MemoryService, an *analytics.Service, wf *workflow.Engine, logger *zap.SugaredLogger) *HTTPHandler {
	return &HTTPHandler{Memory: mem, Analytics: an, Workflow: wf, Logger: logger}
}

// Mux builds the full route table.
func (h *HTTPHandler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/memory/store", h.handleStore)
	mux.HandleFunc("/memory/search", h.handleSearch)
	mux.HandleFunc("/memory/statistics", h.handleStatistics)
	mux.HandleFunc("/memory/consolidate", h.handleConsolidate)
	mux.HandleFunc("/analytics/source", h.handleDataSourcing)
	mux.HandleFunc("/analytics/source/workflow", h.handleDataSourcingWorkflow)
	mux.HandleFunc("/analytics/query", h.handleDataQuery)
	mux.HandleFunc("/analytics/insights", h.handleInsights)
	return mux
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type storeRequest struct {
	Kind           string  `json:"kind"`
	UserID         string  `json:"user_id"`
	Dialog         string  `json:"dialog"`
	ImportanceHint float64 `json:"importance_hint"`
}

func (h *HTTPHandler) handleStore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req storeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Errorw("failed to decode store request", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	h.Logger.Infow("memory store request", "kind", req.Kind, "user_id", req.UserID)

	result := h.Memory.Store(r.Context(), memory.Kind(req.Kind), req.UserID, req.Dialog, req.ImportanceHint)
	writeJSON(w, http.StatusOK, result)
}

type searchRequest struct {
	UserID          string   `json:"user_id"`
	Text            string   `json:"text"`
	Kinds           []string `json:"kinds,omitempty"`
	TopK            int      `json:"top_k,omitempty"`
	Threshold       float64  `json:"threshold,omitempty"`
	ImportanceFloor *float64 `json:"importance_floor,omitempty"`
	ConfidenceFloor *float64 `json:"confidence_floor,omitempty"`
}

func (h *HTTPHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Errorw("failed to decode search request", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	kinds := make([]memory.Kind, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kinds = append(kinds, memory.Kind(k))
	}

	hits, err := h.Memory.SearchAll(r.Context(), memory.SearchQuery{
		UserID:          req.UserID,
		Text:            req.Text,
		Kinds:           kinds,
		TopK:            req.TopK,
		Threshold:       req.Threshold,
		ImportanceFloor: req.ImportanceFloor,
		ConfidenceFloor: req.ConfidenceFloor,
	})
	if err != nil {
		h.Logger.Errorw("search failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func (h *HTTPHandler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")

	stats, err := h.Memory.Statistics(r.Context(), userID)
	if err != nil {
		h.Logger.Errorw("statistics failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *HTTPHandler) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report := h.Memory.Consolidate(r.Context())
	writeJSON(w, http.StatusOK, report)
}

type sourcingRequest struct {
	Schema string `json:"schema"`
}

func (h *HTTPHandler) handleDataSourcing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sourcingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	result, err := h.Analytics.DataSourcing(ctx, req.Schema)
	if err != nil {
		h.Logger.Errorw("data sourcing failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDataSourcingWorkflow starts data sourcing as a long-running,
// independently-retried Temporal workflow rather than running it inline
// on the request goroutine (spec §4.B) — useful for schemas too large to
// discover within one HTTP request's timeout.
func (h *HTTPHandler) handleDataSourcingWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Workflow == nil {
		http.Error(w, "workflow engine not configured", http.StatusServiceUnavailable)
		return
	}

	var req sourcingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	exec, err := h.Workflow.StartDataSourcing(r.Context(), req.Schema)
	if err != nil {
		h.Logger.Errorw("failed to start data sourcing workflow", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, exec)
}

type queryRequest struct {
	Query string `json:"query"`
}

func (h *HTTPHandler) handleDataQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	result, err := h.Analytics.DataQuery(r.Context(), req.Query)
	if err != nil {
		h.Logger.Errorw("data query failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) handleInsights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Analytics.Insights())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
