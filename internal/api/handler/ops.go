// Package handler provides HTTP handlers for the weatherflows API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/weatherflows/weatherflows/internal/api/models"
	"github.com/weatherflows/weatherflows/internal/api/response"
	"github.com/weatherflows/weatherflows/internal/provider/resilience"
)

// DefaultPingTimeout bounds the readiness probe's store check.
const DefaultPingTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsConfig configures the ops endpoints.
type OpsConfig struct {
	Version   string
	BuildTime string

	// History is pinged by the readiness and status checks. Nil skips it.
	History Pinger

	// Registry supplies provider circuit state. Nil reports no providers.
	Registry *resilience.Registry

	Now func() time.Time
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.cfg.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. It fails with 503 while the run
// history store is unreachable.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.cfg.Now()),
	}

	if err := h.pingHistory(r.Context()); err != nil {
		health.Status = models.HealthStatusFail
		health.Details = map[string]interface{}{"history": err.Error()}
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.cfg.Now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
	}

	if h.cfg.History != nil {
		sub := models.SubsystemStatus{Name: "history", Status: models.HealthStatusOK}
		if err := h.pingHistory(r.Context()); err != nil {
			detail := err.Error()
			sub.Status = models.HealthStatusFail
			sub.Detail = &detail
			status.Status = models.HealthStatusFail
		}
		status.Subsystems = append(status.Subsystems, sub)
	}

	if h.cfg.Registry != nil {
		for _, p := range h.cfg.Registry.GetAllHealth() {
			ps := providerStatus(p)
			if ps.Status != models.HealthStatusOK && status.Status == models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Providers = append(status.Providers, ps)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) pingHistory(ctx context.Context) error {
	if h.cfg.History == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	return h.cfg.History.Ping(ctx)
}

func providerStatus(p *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:     p.Name,
		Status:       models.HealthStatusOK,
		CircuitState: p.CircuitState.String(),
		Requests:     p.Counts.Requests,
		Failures:     p.Counts.TotalFailures,
	}
	switch p.Status() {
	case resilience.StatusDegraded:
		ps.Status = models.HealthStatusDegraded
	case resilience.StatusUnhealthy:
		ps.Status = models.HealthStatusFail
	}
	if p.LastSuccessAt != nil {
		ps.LastSuccessAt = models.TimestampPtr(*p.LastSuccessAt)
	}
	if p.LastFailureAt != nil {
		ps.LastFailureAt = models.TimestampPtr(*p.LastFailureAt)
	}
	if p.LastError != "" {
		msg := p.LastError
		ps.Message = &msg
	}
	return ps
}
