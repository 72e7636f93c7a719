package api

import (
	"net/http"

	"github.com/terra-clan/part-configurator/internal/models"
)

// Configuration handlers

func (s *Server) handleCreateConfiguration(w http.ResponseWriter, r *http.Request) {
	var req models.CreateConfigurationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := s.deps.Configurations.Create(r.Context(), &req)
	if err != nil {
		respondServiceError(w, err, "create configuration")
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListConfigurations(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParams(w, r)
	if !ok {
		return
	}

	list, err := s.deps.Configurations.List(r.Context(), page)
	if err != nil {
		respondServiceError(w, err, "list configurations")
		return
	}
	if list == nil {
		list = []*models.Configuration{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	c, err := s.deps.Configurations.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "get configuration")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateConfiguration(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req models.UpdateConfigurationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := s.deps.Configurations.Update(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, err, "update configuration")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteConfiguration(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := s.deps.Configurations.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err, "delete configuration")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Export handlers

func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	var req models.CreateExportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ConfigurationID <= 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "configuration_id is required")
		return
	}

	e, err := s.deps.Exports.Create(r.Context(), &req)
	if err != nil {
		respondServiceError(w, err, "create export")
		return
	}
	respondJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	e, err := s.deps.Exports.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "get export")
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	page, ok := pageParams(w, r)
	if !ok {
		return
	}

	list, err := s.deps.Exports.ListByConfiguration(r.Context(), id, page)
	if err != nil {
		respondServiceError(w, err, "list exports")
		return
	}
	if list == nil {
		list = []*models.Export{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleUpdateExport(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req models.UpdateExportRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	e, err := s.deps.Exports.Update(r.Context(), id, &req)
	if err != nil {
		respondServiceError(w, err, "update export")
		return
	}
	respondJSON(w, http.StatusOK, e)
}
