// Package metrics holds the Prometheus collectors of the configurator service.
// Every method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "configurator"

// Metrics groups the service collectors and the registry they live in
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	sessionsCreated prometheus.Counter
	sessionsExpired prometheus.Counter
	configsSaved    *prometheus.CounterVec
	exports         *prometheus.CounterVec
	dispatchFailed  prometheus.Counter
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Configuration sessions opened.",
		}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Idle sessions removed by the cleanup worker.",
		}),
		configsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "configurations_saved_total",
			Help:      "Configurations persisted, by schema and status.",
		}, []string{"schema", "status"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Export job status transitions.",
		}, []string{"status"}),
		dispatchFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_dispatch_failures_total",
			Help:      "Export jobs the dispatcher failed to hand off.",
		}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.sessionsCreated,
		m.sessionsExpired,
		m.configsSaved,
		m.exports,
		m.dispatchFailed,
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// SessionCreated counts a new session
func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

// SessionsExpired counts sessions purged after their TTL
func (m *Metrics) SessionsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsExpired.Add(float64(n))
}

// ConfigurationSaved counts a persisted configuration
func (m *Metrics) ConfigurationSaved(schema, status string) {
	if m == nil {
		return
	}
	m.configsSaved.WithLabelValues(schema, status).Inc()
}

// ExportStatus counts an export entering status
func (m *Metrics) ExportStatus(status string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(status).Inc()
}

// DispatchFailed counts a failed hand-off to the CAD worker
func (m *Metrics) DispatchFailed() {
	if m == nil {
		return
	}
	m.dispatchFailed.Inc()
}
