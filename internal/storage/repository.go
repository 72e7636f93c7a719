package storage

import (
	"context"
	"errors"

	"github.com/terra-clan/part-configurator/internal/models"
)

// ErrNotFound is returned by updates of records that do not exist
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for configuration and export persistence.
// Getters return nil, nil when the record does not exist.
type Repository interface {
	// Configurations
	CreateConfiguration(ctx context.Context, c *models.Configuration) error
	GetConfiguration(ctx context.Context, id int64) (*models.Configuration, error)
	UpdateConfiguration(ctx context.Context, c *models.Configuration) error
	DeleteConfiguration(ctx context.Context, id int64) error
	ListConfigurations(ctx context.Context, page models.Page) ([]*models.Configuration, error)

	// Exports
	CreateExport(ctx context.Context, e *models.Export) error
	GetExport(ctx context.Context, id int64) (*models.Export, error)
	UpdateExport(ctx context.Context, e *models.Export) error
	ListExportsByConfiguration(ctx context.Context, configID int64, page models.Page) ([]*models.Export, error)
	// ClaimPendingExports moves up to limit pending exports to processing
	// and returns them oldest first
	ClaimPendingExports(ctx context.Context, limit int) ([]*models.Export, error)

	// API Clients
	GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	UpdateClientLastUsed(ctx context.Context, apiKey string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
