package configuration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/terra-clan/part-configurator/internal/metrics"
	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/session"
	"github.com/terra-clan/part-configurator/internal/storage"
	"github.com/terra-clan/part-configurator/internal/validation"
)

// UnknownPartNumber is saved when the schema's part number field is empty
const UnknownPartNumber = "UNKNOWN"

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var (
	ErrConfigurationNotFound = errors.New("configuration not found")
	ErrInvalidConfiguration  = errors.New("invalid configuration")
)

// Service manages saved configurations
type Service struct {
	repo     storage.Repository
	sessions *session.Manager
	metrics  *metrics.Metrics
}

// NewService creates a configuration service. sessions may be nil when
// Apply is not used.
func NewService(repo storage.Repository, sessions *session.Manager, m *metrics.Metrics) *Service {
	return &Service{
		repo:     repo,
		sessions: sessions,
		metrics:  m,
	}
}

func checkConfiguration(c *models.Configuration) error {
	if strings.TrimSpace(c.PartNumber) == "" {
		return fmt.Errorf("%w: part_number is required", ErrInvalidConfiguration)
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidConfiguration, c.Status)
	}
	if c.NumberOfBlocks != nil && *c.NumberOfBlocks < 0 {
		return fmt.Errorf("%w: number_of_blocks must not be negative", ErrInvalidConfiguration)
	}
	return nil
}

// Create stores a new configuration; status defaults to draft
func (s *Service) Create(ctx context.Context, req *models.CreateConfigurationRequest) (*models.Configuration, error) {
	c := &models.Configuration{
		PartNumber:       strings.TrimSpace(req.PartNumber),
		SurfaceTreatment: req.SurfaceTreatment,
		NumberOfBlocks:   req.NumberOfBlocks,
		GeometryParams:   req.GeometryParams,
		MaterialParams:   req.MaterialParams,
		AdvancedParams:   req.AdvancedParams,
		Status:           req.Status,
		SchemaType:       req.SchemaType,
	}
	if c.Status == "" {
		c.Status = models.ConfigurationDraft
	}
	if err := checkConfiguration(c); err != nil {
		return nil, err
	}

	if err := s.repo.CreateConfiguration(ctx, c); err != nil {
		return nil, err
	}

	s.metrics.ConfigurationSaved(c.SchemaType, string(c.Status))
	slog.Info("configuration created", "id", c.ID, "part_number", c.PartNumber, "status", c.Status)
	return c, nil
}

// Get returns a configuration or ErrConfigurationNotFound
func (s *Service) Get(ctx context.Context, id int64) (*models.Configuration, error) {
	c, err := s.repo.GetConfiguration(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrConfigurationNotFound
	}
	return c, nil
}

// Update applies a partial update
func (s *Service) Update(ctx context.Context, id int64, req *models.UpdateConfigurationRequest) (*models.Configuration, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	req.Apply(c)
	c.PartNumber = strings.TrimSpace(c.PartNumber)
	if err := checkConfiguration(c); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateConfiguration(ctx, c); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrConfigurationNotFound
		}
		return nil, err
	}
	return c, nil
}

// Delete removes a configuration together with its exports
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteConfiguration(ctx, id); err != nil {
		return err
	}
	slog.Info("configuration deleted", "id", id)
	return nil
}

// List returns a page of configurations, newest first
func (s *Service) List(ctx context.Context, page models.Page) ([]*models.Configuration, error) {
	return s.repo.ListConfigurations(ctx, page.Clamp(DefaultListLimit, MaxListLimit))
}

// MarkExported moves a configuration to the exported status
func (s *Service) MarkExported(ctx context.Context, id int64) error {
	status := models.ConfigurationExported
	_, err := s.Update(ctx, id, &models.UpdateConfigurationRequest{Status: &status})
	return err
}

// Apply saves the current form of a session as a new configuration and
// links the session to it. The session itself is not modified when the
// save fails.
func (s *Service) Apply(ctx context.Context, sessionID string) (*models.ApplyResult, error) {
	if s.sessions == nil {
		return nil, errors.New("apply requires a session manager")
	}

	ctrl, _, err := s.sessions.Controller(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	schema := ctrl.Schema()
	form := ctrl.Snapshot()
	c := FromSnapshot(schema, form, ctrl.Complete())
	if err := checkConfiguration(c); err != nil {
		return nil, err
	}

	if err := s.repo.CreateConfiguration(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save configuration: %w", err)
	}
	s.metrics.ConfigurationSaved(c.SchemaType, string(c.Status))

	if err := s.sessions.LinkConfiguration(ctx, sessionID, c.ID); err != nil {
		slog.Warn("failed to link configuration to session", "session", sessionID, "configuration", c.ID, "error", err)
	}

	slog.Info("configuration applied",
		"session", sessionID,
		"configuration", c.ID,
		"schema", schema.ID,
		"status", c.Status,
	)

	return &models.ApplyResult{
		ConfigurationID: c.ID,
		Status:          c.Status,
		Viewer:          s.sessions.Viewer(schema, form),
	}, nil
}

// FromSnapshot builds the configuration record for a form snapshot. The
// schema's identity keys fill the top-level columns and the whole snapshot
// goes into geometry_params.
func FromSnapshot(schema *models.Schema, form models.FormState, complete bool) *models.Configuration {
	c := &models.Configuration{
		PartNumber:     UnknownPartNumber,
		GeometryParams: form.Strings(),
		Status:         models.ConfigurationDraft,
		SchemaType:     schema.ID,
	}
	if complete {
		c.Status = models.ConfigurationCompleted
	}

	id := schema.Identity
	if id.PartNumberKey != "" {
		if v := strings.TrimSpace(form.Get(id.PartNumberKey).String()); v != "" {
			c.PartNumber = v
		}
	}
	if id.SurfaceTreatmentKey != "" {
		c.SurfaceTreatment = form.Get(id.SurfaceTreatmentKey).String()
	}
	if id.BlockCountKey != "" {
		// out-of-range counts stay in geometry_params only
		if n, ok := validation.ParseNumber(form.Get(id.BlockCountKey)); ok && n >= 0 && n <= math.MaxInt32 && n == math.Trunc(n) {
			blocks := int(n)
			c.NumberOfBlocks = &blocks
		}
	}
	return c
}
