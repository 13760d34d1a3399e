package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/weatherflows/weatherflows/internal/api/middleware"
	"github.com/weatherflows/weatherflows/internal/api/models"
	"github.com/weatherflows/weatherflows/internal/api/response"
	"github.com/weatherflows/weatherflows/internal/history"
	"github.com/weatherflows/weatherflows/internal/worker"
	"github.com/weatherflows/weatherflows/internal/workflow"
)

// maxTriggerBody caps the POST body; it only ever carries a city.
const maxTriggerBody = 4 << 10

// WorkflowRunner is the part of worker.Runner the handlers use.
type WorkflowRunner interface {
	Definitions() []workflow.Definition
	Definition(name string) (workflow.Definition, bool)
	Trigger(ctx context.Context, name string, params workflow.RunParams) (*workflow.Run, error)
}

// NextRunLookup reports the next scheduled activation of a workflow.
type NextRunLookup interface {
	Next(name string) (time.Time, bool)
}

// WorkflowsConfig configures WorkflowsHandler.
type WorkflowsConfig struct {
	Runner WorkflowRunner

	// History serves the run endpoints. Nil makes them return 503.
	History history.Repository

	// Schedule supplies next activations. Nil derives them from the
	// definition's cron expression.
	Schedule NextRunLookup

	Logger zerolog.Logger
	Now    func() time.Time
}

// WorkflowsHandler serves workflow definitions, run history and manual
// triggers.
type WorkflowsHandler struct {
	runner   WorkflowRunner
	history  history.Repository
	schedule NextRunLookup
	logger   zerolog.Logger
	now      func() time.Time
	validate *validator.Validate
}

// NewWorkflowsHandler creates a WorkflowsHandler.
func NewWorkflowsHandler(cfg WorkflowsConfig) *WorkflowsHandler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &WorkflowsHandler{
		runner:   cfg.Runner,
		history:  cfg.History,
		schedule: cfg.Schedule,
		logger:   cfg.Logger,
		now:      cfg.Now,
		validate: newValidator(),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ListWorkflows handles GET /v1/workflows.
func (h *WorkflowsHandler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	defs := h.runner.Definitions()
	list := models.WorkflowList{Workflows: make([]models.Workflow, 0, len(defs))}
	for _, def := range defs {
		list.Workflows = append(list.Workflows, models.NewWorkflow(def, h.nextRun(def)))
	}
	response.JSON(w, r, http.StatusOK, list)
}

// ListRuns handles GET /v1/workflows/{name}/runs?limit=.
func (h *WorkflowsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.runner.Definition(name); !ok {
		response.NotFound(w, r, "workflow "+strconv.Quote(name)+" does not exist")
		return
	}
	if h.history == nil {
		response.ServiceUnavailable(w, r, "run history is not configured")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		response.BadRequest(w, r, "invalid query parameter", []models.FieldError{
			{Field: "limit", Message: err.Error(), Code: "invalid"},
		})
		return
	}

	runs, err := h.history.List(r.Context(), history.Filter{Workflow: name, Limit: limit})
	if err != nil {
		h.logger.Error().Err(err).Str("workflow", name).Msg("listing runs failed")
		response.InternalError(w, r, "failed to list runs")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewRunList(runs, limit))
}

// GetRun handles GET /v1/runs/{runId}.
func (h *WorkflowsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		response.ServiceUnavailable(w, r, "run history is not configured")
		return
	}

	id := chi.URLParam(r, "runId")
	run, err := h.history.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrRunNotFound) {
			response.NotFound(w, r, "run "+strconv.Quote(id)+" does not exist")
			return
		}
		h.logger.Error().Err(err).Str("run_id", id).Msg("loading run failed")
		response.InternalError(w, r, "failed to load run")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewRun(run))
}

// TriggerRun handles POST /v1/workflows/{name}/runs. The run executes
// synchronously; a failed run is returned with 502.
func (h *WorkflowsHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req models.TriggerRunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTriggerBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, r, "validation error", fieldErrors(err))
		return
	}

	run, err := h.runner.Trigger(r.Context(), name, workflow.RunParams{
		City:    req.City,
		Trigger: workflow.TriggerAPI,
	})
	if err != nil {
		if errors.Is(err, worker.ErrUnknownWorkflow) {
			response.NotFound(w, r, "workflow "+strconv.Quote(name)+" does not exist")
			return
		}
		response.InternalError(w, r, "failed to start run")
		return
	}

	h.logger.Info().
		Str("workflow", name).
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Str("operator", middleware.GetOperator(r.Context())).
		Msg("manual run completed")

	status := http.StatusOK
	if run.Failed() {
		status = http.StatusBadGateway
	}
	response.JSON(w, r, status, models.NewRun(run))
}

func (h *WorkflowsHandler) nextRun(def workflow.Definition) time.Time {
	if !def.Schedule.IsScheduled() {
		return time.Time{}
	}
	if h.schedule != nil {
		if next, ok := h.schedule.Next(def.Name); ok {
			return next
		}
	}
	next, err := def.Schedule.Next(h.now())
	if err != nil {
		return time.Time{}
	}
	return next
}

// parseLimit returns the effective page size for a limit query value.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return history.DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("must be a positive integer")
	}
	return min(n, history.MaxLimit), nil
}

func fieldErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Field: "body", Message: err.Error()}}
	}
	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   fe.Field(),
			Message: "failed " + strconv.Quote(fe.Tag()) + " validation",
			Code:    fe.Tag(),
		})
	}
	return out
}
