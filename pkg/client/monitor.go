package client

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultMonitorInterval is how often HealthMonitor polls /health
const DefaultMonitorInterval = 30 * time.Second

// HealthMonitor tracks API connectivity by polling /health
type HealthMonitor struct {
	client   *Client
	interval time.Duration
	onChange func(healthy bool, err error)

	mu        sync.RWMutex
	healthy   bool
	lastErr   error
	checkedAt time.Time
}

// NewHealthMonitor creates a monitor; interval <= 0 uses DefaultMonitorInterval.
// onChange, when set, is called whenever connectivity flips.
func NewHealthMonitor(c *Client, interval time.Duration, onChange func(healthy bool, err error)) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &HealthMonitor{client: c, interval: interval, onChange: onChange}
}

// Start begins polling in a goroutine until ctx is done
func (m *HealthMonitor) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *HealthMonitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check polls once and returns whether the API answered healthy
func (m *HealthMonitor) Check(ctx context.Context) bool {
	status, err := m.client.Health(ctx)
	healthy := err == nil && status.Status == "healthy"

	m.mu.Lock()
	changed := healthy != m.healthy || m.checkedAt.IsZero()
	m.healthy = healthy
	m.lastErr = err
	m.checkedAt = time.Now()
	m.mu.Unlock()

	if changed {
		if healthy {
			slog.Info("configurator api reachable")
		} else {
			slog.Warn("configurator api unreachable", "error", err)
		}
		if m.onChange != nil {
			m.onChange(healthy, err)
		}
	}
	return healthy
}

// Healthy reports the result of the last check
func (m *HealthMonitor) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy
}

// LastError returns the error of the last failed check
func (m *HealthMonitor) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}
