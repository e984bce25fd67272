package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/w3bsuki/strike-ab/internal/bucketing"
	"github.com/w3bsuki/strike-ab/internal/catalog"
	"github.com/w3bsuki/strike-ab/internal/ledger"
	"github.com/w3bsuki/strike-ab/internal/report"
	"github.com/w3bsuki/strike-ab/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	exps, err := s.engine.Catalog().List(r.Context())
	if err != nil {
		s.logger.Error("health check failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(exps),
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

// ExperimentSummary is the public view of a running experiment. Variant
// configs are only revealed through assignment.
type ExperimentSummary struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Variants []string `json:"variants"`
	Primary  string   `json:"primary_metric"`
}

func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	exps, err := s.engine.ListActiveExperiments(r.Context())
	if err != nil {
		s.logger.Error("failed to list experiments", "error", err)
		http.Error(w, "Failed to fetch experiments", http.StatusInternalServerError)
		return
	}

	// Return empty array instead of null
	response := make([]ExperimentSummary, 0, len(exps))
	for _, exp := range exps {
		ids := make([]string, len(exp.Variants))
		for i, v := range exp.Variants {
			ids[i] = v.ID
		}
		response = append(response, ExperimentSummary{
			ID:       exp.ID,
			Name:     exp.Name,
			Variants: ids,
			Primary:  exp.Metrics.Primary,
		})
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleGetVariant(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := ledger.Identity{
		UserID:    strings.TrimSpace(q.Get("user_id")),
		SessionID: strings.TrimSpace(q.Get("session_id")),
	}
	attrs := bucketing.Attributes{
		Device:   q.Get("device"),
		Country:  q.Get("country"),
		Segments: splitList(q["segment"]),
	}

	d := s.engine.GetVariant(r.Context(), chi.URLParam(r, "id"), id, attrs)
	if d == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ConversionRequest is the body of a conversion report.
type ConversionRequest struct {
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Value     *float64       `json:"value"`
	Metadata  map[string]any `json:"metadata"`
}

func (s *Server) handleTrackConversion(w http.ResponseWriter, r *http.Request) {
	var req ConversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	id := ledger.Identity{
		UserID:    strings.TrimSpace(req.UserID),
		SessionID: strings.TrimSpace(req.SessionID),
	}
	if id.Key() == "" {
		http.Error(w, "Missing user_id or session_id", http.StatusBadRequest)
		return
	}

	// Unassigned identities are a silent no-op
	s.engine.TrackConversion(r.Context(), chi.URLParam(r, "id"), id, ledger.Conversion{
		Value:    req.Value,
		Metadata: req.Metadata,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	exps, err := s.engine.Catalog().List(r.Context())
	if err != nil {
		s.logger.Error("failed to list experiments", "error", err)
		http.Error(w, "Failed to fetch experiments", http.StatusInternalServerError)
		return
	}
	if exps == nil {
		exps = []*store.Experiment{}
	}
	writeJSON(w, http.StatusOK, exps)
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var def store.Experiment
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	id, err := s.engine.Catalog().Create(r.Context(), &def)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.engine.Catalog().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.engine.GetAnalysis(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = report.FormatJSON
	}

	var contentType string
	switch format {
	case report.FormatJSON:
	case report.FormatCSV:
		contentType = "text/csv"
	case report.FormatXLSX:
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		http.Error(w, "Invalid format: must be json, csv or xlsx", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	snap, err := s.engine.ExportSnapshot(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if format == report.FormatJSON {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"."+format))
	if err := report.Write(w, format, []*report.Snapshot{snap}); err != nil {
		s.logger.Error("export failed", "experiment_id", id, "error", err)
	}
}

type statusRequest struct {
	Status store.Status `json:"status"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if !req.Status.Valid() {
		http.Error(w, fmt.Sprintf("Invalid status %q", req.Status), http.StatusBadRequest)
		return
	}

	exp, err := s.engine.Catalog().SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Experiment not found", http.StatusNotFound)
	case errors.Is(err, store.ErrAlreadyExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, catalog.ErrInvalidStateTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, catalog.ErrInvalidDefinition):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("request failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// splitList flattens repeated and comma-separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
