package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/part-configurator/internal/catalog"
	"github.com/terra-clan/part-configurator/internal/config"
	"github.com/terra-clan/part-configurator/internal/configuration"
	"github.com/terra-clan/part-configurator/internal/exporter"
	"github.com/terra-clan/part-configurator/internal/health"
	"github.com/terra-clan/part-configurator/internal/metrics"
	"github.com/terra-clan/part-configurator/internal/preview"
	"github.com/terra-clan/part-configurator/internal/session"
	"github.com/terra-clan/part-configurator/internal/storage"
)

// Dependencies are the services the API is built on
type Dependencies struct {
	Schemas        *catalog.Registry
	Sessions       *session.Manager
	Configurations *configuration.Service
	Exports        *exporter.Service
	Resolver       *preview.Resolver
	Repo           storage.Repository
	Health         *health.Registry
	Metrics        *metrics.Metrics
}

// Options holds the HTTP-facing settings of the server
type Options struct {
	AuthEnabled    bool
	AllowedOrigins []string
}

// Server represents the HTTP API server
type Server struct {
	deps   Dependencies
	opts   Options
	router *chi.Mux
	auth   *apiKeyAuth

	openapiOnce sync.Once
	openapiJSON []byte
	openapiErr  error
}

// NewServer creates a new API server
func NewServer(deps Dependencies, opts Options) *Server {
	if deps.Health == nil {
		deps.Health = health.NewRegistry(0)
	}
	if deps.Resolver == nil {
		deps.Resolver = preview.NewResolver("", "")
	}

	s := &Server{
		deps: deps,
		opts: opts,
		auth: &apiKeyAuth{repo: deps.Repo},
	}
	s.setupRouter()
	return s
}

// OptionsFromConfig maps service configuration onto server options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AuthEnabled:    cfg.Auth.Enabled,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(middleware.Recoverer)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public endpoints
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Route("/api/v1", func(r chi.Router) {
		if s.opts.AuthEnabled {
			r.Use(s.auth.authenticate)
		}

		// The session stream is long-lived and must not be cut by the timeout
		r.With(s.require("sessions:read")).Get("/sessions/{id}/stream", s.handleSessionStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/schemas", func(r chi.Router) {
				r.With(s.require("schemas:read")).Get("/", s.handleListSchemas)
				r.With(s.require("schemas:read")).Get("/{id}", s.handleGetSchema)
				r.With(s.require("schemas:read")).Get("/{id}/model", s.handleInspectModel)
				r.With(s.require("schemas:read")).Post("/{id}/validate", s.handleValidate)
				r.With(s.require("schemas:read")).Post("/{id}/scale", s.handleScale)
			})

			r.Route("/sessions", func(r chi.Router) {
				r.With(s.require("sessions:write")).Post("/", s.handleCreateSession)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.require("sessions:read")).Get("/", s.handleGetSession)
					r.With(s.require("sessions:write")).Delete("/", s.handleDeleteSession)
					r.With(s.require("sessions:write")).Put("/values", s.handleSetValues)
					r.With(s.require("sessions:write")).Delete("/values/{key}", s.handleClearValue)
					r.With(s.require("sessions:write")).Post("/select", s.handleSelectStep)
					r.With(s.require("sessions:write")).Post("/next", s.handleNextStep)
					r.With(s.require("sessions:write")).Post("/reset", s.handleResetSession)
					r.With(s.require("sessions:write")).Post("/schema", s.handleSwitchSchema)
					r.With(s.require("configurations:write")).Post("/apply", s.handleApplySession)
				})
			})

			r.Route("/configurations", func(r chi.Router) {
				r.With(s.require("configurations:read")).Get("/", s.handleListConfigurations)
				r.With(s.require("configurations:write")).Post("/", s.handleCreateConfiguration)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.require("configurations:read")).Get("/", s.handleGetConfiguration)
					r.With(s.require("configurations:write")).Patch("/", s.handleUpdateConfiguration)
					r.With(s.require("configurations:write")).Delete("/", s.handleDeleteConfiguration)
				})
			})

			r.Route("/exports", func(r chi.Router) {
				r.With(s.require("exports:write")).Post("/", s.handleCreateExport)
				r.With(s.require("exports:read")).Get("/configuration/{id}", s.handleListExports)
				r.With(s.require("exports:read")).Get("/{id}", s.handleGetExport)
				r.With(s.require("exports:write")).Patch("/{id}", s.handleUpdateExport)
			})
		})
	})

	s.router = r
}

// require checks permission when authentication is enabled
func (s *Server) require(permission string) func(http.Handler) http.Handler {
	if !s.opts.AuthEnabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.auth.permit(permission)
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// metricsMiddleware records requests by route pattern, not raw path
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.deps.Metrics.ObserveRequest(route, r.Method, status, time.Since(start))
	})
}
