package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/part-configurator/internal/metrics"
)

// DefaultInterval is used when no positive interval is given
const DefaultInterval = 5 * time.Minute

// Purger removes expired sessions from a store that does not expire them
// on its own
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Cleaner handles periodic cleanup of expired sessions
type Cleaner struct {
	store    Purger
	metrics  *metrics.Metrics
	interval time.Duration
}

// NewCleaner creates a new cleanup worker
func NewCleaner(store Purger, m *metrics.Metrics, interval time.Duration) *Cleaner {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Cleaner{
		store:    store,
		metrics:  m,
		interval: interval,
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Cleaner) run(ctx context.Context) {
	slog.Info("session cleanup worker started", "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session cleanup worker stopped")
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce purges expired sessions and returns how many were removed
func (c *Cleaner) RunOnce(ctx context.Context) int {
	n, err := c.store.PurgeExpired(ctx)
	if err != nil {
		slog.Error("failed to purge expired sessions", "error", err)
		return 0
	}
	if n == 0 {
		slog.Debug("no expired sessions found")
		return 0
	}

	c.metrics.SessionsExpired(n)
	slog.Info("expired sessions removed", "count", n)
	return n
}
