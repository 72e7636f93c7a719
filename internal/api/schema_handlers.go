package api

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/validation"
)

// ValidateRequest carries a form to check against a schema
type ValidateRequest struct {
	Values models.FormState `json:"values"`
}

// ValidateResponse is the per-step validation outcome of a form
type ValidateResponse struct {
	SchemaID string                           `json:"schema_id"`
	Steps    map[string]validation.StepResult `json:"steps"`
	Complete bool                             `json:"complete"`
}

func (s *Server) schema(w http.ResponseWriter, r *http.Request) (*models.Schema, bool) {
	id := chi.URLParam(r, "id")
	schema, ok := s.deps.Schemas.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "schema not found: "+id)
		return nil, false
	}
	return schema, true
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Schemas.Summaries())
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	schema, ok := s.schema(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, schema)
}

func (s *Server) handleInspectModel(w http.ResponseWriter, r *http.Request) {
	schema, ok := s.schema(w, r)
	if !ok {
		return
	}
	if schema.ModelPath == "" {
		respondError(w, http.StatusNotFound, "not_found", "schema has no model")
		return
	}
	if !s.deps.Resolver.Enabled() {
		respondError(w, http.StatusNotFound, "not_found", "model assets are not configured")
		return
	}

	info, err := s.deps.Resolver.Inspect(schema.ModelPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			respondError(w, http.StatusNotFound, "not_found", "model asset not found")
			return
		}
		respondError(w, http.StatusUnprocessableEntity, "invalid_model", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	schema, ok := s.schema(w, r)
	if !ok {
		return
	}

	var req ValidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Values == nil {
		req.Values = models.FormState{}
	}

	respondJSON(w, http.StatusOK, ValidateResponse{
		SchemaID: schema.ID,
		Steps:    validation.ValidateForm(req.Values, schema),
		Complete: validation.AllComplete(req.Values, schema),
	})
}

func (s *Server) handleScale(w http.ResponseWriter, r *http.Request) {
	schema, ok := s.schema(w, r)
	if !ok {
		return
	}

	var req ValidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	respondJSON(w, http.StatusOK, s.deps.Resolver.Payload(schema, req.Values))
}
