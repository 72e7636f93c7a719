package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/part-configurator/internal/config"
	"github.com/terra-clan/part-configurator/internal/configuration"
	"github.com/terra-clan/part-configurator/internal/exporter"
	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/session"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondServiceError maps service sentinels onto HTTP statuses. Anything
// unrecognised is logged and reported as an internal error.
func respondServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, configuration.ErrConfigurationNotFound),
		errors.Is(err, exporter.ErrExportNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, session.ErrUnknownParameter),
		errors.Is(err, session.ErrMarkupNotAllowed),
		errors.Is(err, configuration.ErrInvalidConfiguration),
		errors.Is(err, exporter.ErrInvalidFormat),
		errors.Is(err, exporter.ErrInvalidStatus):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		slog.Error("failed to "+action, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// decodeJSON reads the request body into v, answering 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// idParam parses the numeric {id} URL parameter
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// pageParams reads skip and limit query parameters
func pageParams(w http.ResponseWriter, r *http.Request) (models.Page, bool) {
	var page models.Page
	q := r.URL.Query()

	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "validation_error", "skip must be a non-negative integer")
			return page, false
		}
		page.Skip = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "validation_error", "limit must be a positive integer")
			return page, false
		}
		page.Limit = n
	}
	return page, true
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": config.ServiceName,
		"version": config.Version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Health.Check(r.Context())
	if !report.Ready() {
		for name, status := range report.Checks {
			if status != "ok" {
				slog.Warn("readiness check failed", "check", name, "error", status)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		if err := json.NewEncoder(w).Encode(apiResponse{
			Data:  report,
			Error: &apiError{Code: "not_ready", Message: "service not ready"},
		}); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
		return
	}

	respondJSON(w, http.StatusOK, report)
}
