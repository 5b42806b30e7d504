// Package api exposes the control/status contract over HTTP. The
// transport is a thin adapter: all state lives in the pipeline.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"netsentry/internal/model"
	"netsentry/internal/pipeline"
	"netsentry/internal/query"
)

const defaultAlertLimit = 100

// Handler holds the dependencies for the API handlers. querier is nil
// when no alert archive is configured.
type Handler struct {
	orchestrator *pipeline.Orchestrator
	querier      query.Querier
}

// NewRouter builds the HTTP router for the given orchestrator.
func NewRouter(orchestrator *pipeline.Orchestrator, opts ...Option) *mux.Router {
	h := &Handler{orchestrator: orchestrator}
	for _, opt := range opts {
		opt(h)
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/detection/start", h.startDetection).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/detection/stop", h.stopDetection).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/alerts", h.recentAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/alerts/history", h.alertHistory).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/alerts/sources", h.topSources).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/threshold", h.setThreshold).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// Option customizes the handler set.
type Option func(*Handler)

// WithQuerier enables the alert-history endpoints backed by the archive.
func WithQuerier(q query.Querier) Option {
	return func(h *Handler) { h.querier = q }
}

func (h *Handler) startDetection(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.Start(); err != nil {
		http.Error(w, fmt.Sprintf("failed to start detection: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"running": true})
}

func (h *Handler) stopDetection(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.Stop()
	writeJSON(w, map[string]any{"running": false})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.orchestrator.Status())
}

// alertResponse is the wire form of an alert for API consumers.
type alertResponse struct {
	Timestamp         time.Time `json:"timestamp"`
	ID                string    `json:"id"`
	Severity          string    `json:"severity"`
	AttackType        string    `json:"attack_type"`
	Confidence        float64   `json:"confidence"`
	SourceIP          string    `json:"source_ip"`
	DestinationIP     string    `json:"destination_ip"`
	DestinationPort   uint16    `json:"destination_port"`
	Protocol          string    `json:"protocol"`
	Description       string    `json:"description"`
	RecommendedAction string    `json:"recommended_action"`
}

func (h *Handler) recentAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	alerts := h.orchestrator.Alerts().RecentAlerts(limit)
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toResponse(a))
	}
	writeJSON(w, out)
}

func (h *Handler) alertHistory(w http.ResponseWriter, r *http.Request) {
	if h.querier == nil {
		http.Error(w, "alert archive is not configured", http.StatusServiceUnavailable)
		return
	}
	var req query.HistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return
	}
	rows, err := h.querier.AlertHistory(r.Context(), &req)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query alert history: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (h *Handler) topSources(w http.ResponseWriter, r *http.Request) {
	if h.querier == nil {
		http.Error(w, "alert archive is not configured", http.StatusServiceUnavailable)
		return
	}
	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		since = parsed
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	summaries, err := h.querier.TopSources(r.Context(), since, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query top sources: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, summaries)
}

func (h *Handler) setThreshold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Threshold float64 `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		http.Error(w, "threshold must be in [0,1]", http.StatusBadRequest)
		return
	}
	h.orchestrator.SetThreshold(req.Threshold)
	writeJSON(w, map[string]any{"threshold": req.Threshold})
}

func toResponse(a *model.Alert) alertResponse {
	return alertResponse{
		Timestamp:         a.Timestamp,
		ID:                a.ID,
		Severity:          a.Severity,
		AttackType:        a.AttackType,
		Confidence:        a.Confidence,
		SourceIP:          a.SourceIP,
		DestinationIP:     a.DestinationIP,
		DestinationPort:   a.FlowKey.DstPort,
		Protocol:          a.FlowKey.Protocol,
		Description:       a.Description,
		RecommendedAction: a.RecommendedAction,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
	}
}
