package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/terra-clan/part-configurator/internal/configuration"
	"github.com/terra-clan/part-configurator/internal/metrics"
	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/storage"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 100
)

var (
	ErrExportNotFound = errors.New("export not found")
	ErrInvalidFormat  = errors.New("unsupported export format")
	ErrInvalidStatus  = errors.New("invalid export status")
)

// Service manages CAD export jobs
type Service struct {
	repo    storage.Repository
	configs *configuration.Service
	metrics *metrics.Metrics
}

// NewService creates an export service
func NewService(repo storage.Repository, configs *configuration.Service, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		configs: configs,
		metrics: m,
	}
}

// Create queues a pending export of an existing configuration
func (s *Service) Create(ctx context.Context, req *models.CreateExportRequest) (*models.Export, error) {
	format, ok := models.ParseExportFormat(req.Format)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, req.Format)
	}

	if _, err := s.configs.Get(ctx, req.ConfigurationID); err != nil {
		return nil, err
	}

	e := &models.Export{
		ConfigurationID: req.ConfigurationID,
		Format:          format,
		Status:          models.ExportPending,
	}
	if err := s.repo.CreateExport(ctx, e); err != nil {
		return nil, err
	}

	s.metrics.ExportStatus(string(e.Status))
	slog.Info("export created", "id", e.ID, "configuration", e.ConfigurationID, "format", e.Format)
	return e, nil
}

// Get returns an export or ErrExportNotFound
func (s *Service) Get(ctx context.Context, id int64) (*models.Export, error) {
	e, err := s.repo.GetExport(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrExportNotFound
	}
	return e, nil
}

// ListByConfiguration returns the exports of a configuration, newest first
func (s *Service) ListByConfiguration(ctx context.Context, configID int64, page models.Page) ([]*models.Export, error) {
	if _, err := s.configs.Get(ctx, configID); err != nil {
		return nil, err
	}
	return s.repo.ListExportsByConfiguration(ctx, configID, page.Clamp(DefaultListLimit, MaxListLimit))
}

// Update records progress reported by the CAD worker. A completed export
// marks its configuration as exported.
func (s *Service) Update(ctx context.Context, id int64, req *models.UpdateExportRequest) (*models.Export, error) {
	if req.Status != nil && !req.Status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *req.Status)
	}

	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	prev := e.Status
	req.Apply(e)
	if err := s.repo.UpdateExport(ctx, e); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrExportNotFound
		}
		return nil, err
	}

	if e.Status != prev {
		s.metrics.ExportStatus(string(e.Status))
		slog.Info("export status changed", "id", e.ID, "from", prev, "to", e.Status, "job_id", e.JobID)
	}

	if e.Status == models.ExportCompleted && prev != models.ExportCompleted {
		if err := s.configs.MarkExported(ctx, e.ConfigurationID); err != nil {
			slog.Warn("failed to mark configuration exported", "configuration", e.ConfigurationID, "error", err)
		}
	}

	return e, nil
}

// Fail marks an export failed with msg
func (s *Service) Fail(ctx context.Context, id int64, msg string) error {
	status := models.ExportFailed
	_, err := s.Update(ctx, id, &models.UpdateExportRequest{Status: &status, ErrorMessage: &msg})
	return err
}
