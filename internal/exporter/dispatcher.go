package exporter

import (
	"context"

	"github.com/terra-clan/part-configurator/internal/models"
)

// Dispatcher hands export jobs to the external CAD worker
type Dispatcher interface {
	Dispatch(ctx context.Context, job *models.ExportJob) error
	Ping(ctx context.Context) error
	Close() error
}
