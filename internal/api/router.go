// Package api provides the HTTP API for weatherflows.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/weatherflows/weatherflows/internal/api/handler"
	"github.com/weatherflows/weatherflows/internal/api/middleware"
	"github.com/weatherflows/weatherflows/internal/api/models"
	"github.com/weatherflows/weatherflows/internal/api/response"
	"github.com/weatherflows/weatherflows/internal/auth"
	"github.com/weatherflows/weatherflows/internal/history"
	"github.com/weatherflows/weatherflows/internal/provider/resilience"
)

// DefaultServiceName is used for spans when RouterConfig.ServiceName is empty.
const DefaultServiceName = "weatherflows"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Runner handler.WorkflowRunner

	// History serves the run endpoints and the readiness probe.
	History history.Repository

	// Schedule supplies next activations; usually the *scheduler.Scheduler.
	Schedule handler.NextRunLookup

	// Registry reports provider health on /v1/ops/status.
	Registry *resilience.Registry

	// Tokens validates operator tokens. Without it the trigger endpoint
	// answers 503.
	Tokens middleware.TokenValidator

	// TriggerRateLimit is requests per minute per operator on the trigger
	// endpoint. Zero means middleware.DefaultTriggerRateLimit.
	TriggerRateLimit int

	RequireTLS bool
	Now        func() time.Time
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, models.NewMethodNotAllowed(middleware.GetRequestID(r.Context()),
			r.Method+" is not supported on "+r.URL.Path))
	})

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		History:   cfg.History,
		Registry:  cfg.Registry,
		Now:       cfg.Now,
	})
	workflowsHandler := handler.NewWorkflowsHandler(handler.WorkflowsConfig{
		Runner:   cfg.Runner,
		History:  cfg.History,
		Schedule: cfg.Schedule,
		Logger:   cfg.Logger,
		Now:      cfg.Now,
	})

	triggerLimit := middleware.DefaultTriggerRateLimit
	if cfg.TriggerRateLimit > 0 {
		triggerLimit.RequestLimit = cfg.TriggerRateLimit
	}

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.ReadRateLimit))
			r.Get("/workflows", workflowsHandler.ListWorkflows)
			r.Get("/workflows/{name}/runs", workflowsHandler.ListRuns)
			r.Get("/runs/{runId}", workflowsHandler.GetRun)
		})

		r.Group(func(r chi.Router) {
			if cfg.Tokens == nil {
				r.Post("/workflows/{name}/runs", func(w http.ResponseWriter, r *http.Request) {
					response.ServiceUnavailable(w, r, "operator tokens are not configured")
				})
				return
			}
			r.Use(middleware.RequireScope(cfg.Tokens, auth.ScopeTrigger))
			r.Use(middleware.RateLimitByOperator(triggerLimit))
			r.Use(middleware.RequireJSON)
			r.Post("/workflows/{name}/runs", workflowsHandler.TriggerRun)
		})
	})

	return r
}
