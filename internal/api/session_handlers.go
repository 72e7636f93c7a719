package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/session"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.SchemaID != "" {
		if _, ok := s.deps.Schemas.Get(req.SchemaID); !ok {
			respondError(w, http.StatusNotFound, "not_found", "schema not found: "+req.SchemaID)
			return
		}
	}

	state, err := s.deps.Sessions.Create(r.Context(), req.SchemaID, req.Values)
	if err != nil {
		respondServiceError(w, err, "create session")
		return
	}

	respondJSON(w, http.StatusCreated, state)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "get session")
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err, "delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetValues(w http.ResponseWriter, r *http.Request) {
	var req models.SetValuesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.respondState(w, "set values")(s.deps.Sessions.SetValues(r.Context(), chi.URLParam(r, "id"), req.Values))
}

func (s *Server) handleClearValue(w http.ResponseWriter, r *http.Request) {
	s.respondState(w, "clear value")(s.deps.Sessions.ClearValue(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "key")))
}

func (s *Server) handleSelectStep(w http.ResponseWriter, r *http.Request) {
	var req models.SelectStepRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.respondState(w, "select step")(s.deps.Sessions.SelectStep(r.Context(), chi.URLParam(r, "id"), req.Index))
}

func (s *Server) handleNextStep(w http.ResponseWriter, r *http.Request) {
	s.respondState(w, "advance step")(s.deps.Sessions.NextStep(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	s.respondState(w, "reset session")(s.deps.Sessions.Reset(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) handleSwitchSchema(w http.ResponseWriter, r *http.Request) {
	var req models.SwitchSchemaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SchemaID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "schema_id is required")
		return
	}
	s.respondState(w, "switch schema")(s.deps.Sessions.SwitchSchema(r.Context(), chi.URLParam(r, "id"), req.SchemaID))
}

func (s *Server) handleApplySession(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Configurations.Apply(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "apply session")
		return
	}

	if client := ClientFromContext(r.Context()); client != nil {
		slog.Info("session applied by api client", "client", client.Name, "configuration_id", result.ConfigurationID)
	}

	respondJSON(w, http.StatusCreated, result)
}

// respondState writes the session state returned by a manager operation
func (s *Server) respondState(w http.ResponseWriter, action string) func(*session.State, error) {
	return func(state *session.State, err error) {
		if err != nil {
			respondServiceError(w, err, action)
			return
		}
		respondJSON(w, http.StatusOK, state)
	}
}
