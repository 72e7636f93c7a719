package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/part-configurator/internal/metrics"
	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/storage"
)

// WorkerConfig tunes the dispatch loop
type WorkerConfig struct {
	Interval time.Duration
	Batch    int
	// CallbackBase is the public API base URL the CAD worker PATCHes
	// progress to, e.g. http://configurator:8080/api/v1
	CallbackBase string
}

// Worker periodically claims pending exports and hands them to a Dispatcher
type Worker struct {
	service    *Service
	repo       storage.Repository
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	cfg        WorkerConfig
}

// NewWorker creates a dispatch worker
func NewWorker(service *Service, repo storage.Repository, dispatcher Dispatcher, m *metrics.Metrics, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 10
	}
	cfg.CallbackBase = strings.TrimSuffix(cfg.CallbackBase, "/")

	return &Worker{
		service:    service,
		repo:       repo,
		dispatcher: dispatcher,
		metrics:    m,
		cfg:        cfg,
	}
}

// Start begins the dispatch loop in a goroutine
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	slog.Info("export worker started", "interval", w.cfg.Interval, "batch", w.cfg.Batch)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	// Run immediately on start
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("export worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce claims one batch of pending exports and dispatches them. It
// returns the number dispatched successfully.
func (w *Worker) RunOnce(ctx context.Context) int {
	claimed, err := w.repo.ClaimPendingExports(ctx, w.cfg.Batch)
	if err != nil {
		slog.Error("failed to claim pending exports", "error", err)
		return 0
	}

	if len(claimed) == 0 {
		slog.Debug("no pending exports")
		return 0
	}

	slog.Info("claimed pending exports", "count", len(claimed))

	sent := 0
	for _, e := range claimed {
		w.metrics.ExportStatus(string(models.ExportProcessing))
		if err := w.dispatch(ctx, e); err != nil {
			slog.Error("failed to dispatch export", "error", err, "id", e.ID, "format", e.Format)
			w.metrics.DispatchFailed()
			if ferr := w.service.Fail(ctx, e.ID, err.Error()); ferr != nil {
				slog.Error("failed to mark export failed", "error", ferr, "id", e.ID)
			}
			continue
		}
		sent++
	}

	return sent
}

func (w *Worker) dispatch(ctx context.Context, e *models.Export) error {
	cfg, err := w.repo.GetConfiguration(ctx, e.ConfigurationID)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg == nil {
		return fmt.Errorf("configuration %d no longer exists", e.ConfigurationID)
	}

	jobID := uuid.New().String()
	processing := models.ExportProcessing
	if _, err := w.service.Update(ctx, e.ID, &models.UpdateExportRequest{Status: &processing, JobID: &jobID}); err != nil {
		return fmt.Errorf("failed to record job id: %w", err)
	}

	job := &models.ExportJob{
		JobID:         jobID,
		ExportID:      e.ID,
		Format:        e.Format,
		Configuration: cfg,
		Labels: map[string]string{
			"configurator.schema": cfg.SchemaType,
		},
	}
	if w.cfg.CallbackBase != "" {
		job.CallbackURL = fmt.Sprintf("%s/exports/%d", w.cfg.CallbackBase, e.ID)
	}

	if err := w.dispatcher.Dispatch(ctx, job); err != nil {
		return err
	}

	slog.Info("export dispatched", "id", e.ID, "job_id", jobID, "format", e.Format)
	return nil
}
