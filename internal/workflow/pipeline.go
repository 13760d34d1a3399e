package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/weatherflows/weatherflows/internal/condition"
	"github.com/weatherflows/weatherflows/internal/notify"
	"github.com/weatherflows/weatherflows/internal/secrets"
	"github.com/weatherflows/weatherflows/internal/telemetry"
	"github.com/weatherflows/weatherflows/internal/weather"
)

// Deps are the collaborators a pipeline calls.
type Deps struct {
	Fetcher  weather.Fetcher
	Notifier notify.Notifier
	Secrets  secrets.Store

	// Now is the clock for run timestamps and date-relative conditions.
	// Default: time.Now
	Now func() time.Time

	Logger  zerolog.Logger
	Metrics *telemetry.WorkflowMetrics

	// Tracer defaults to the global tracer.
	Tracer trace.Tracer
}

// RunParams are the per-run inputs.
type RunParams struct {
	// City overrides the definition's default city when non-empty.
	City    string
	Trigger Trigger
}

// Pipeline runs one workflow: fetch the forecast, evaluate it, and notify
// only when the decision is Fire.
type Pipeline struct {
	def       Definition
	evaluator condition.Evaluator
	fetcher   weather.Fetcher
	notifier  notify.Notifier
	secrets   secrets.Store
	now       func() time.Time
	logger    zerolog.Logger
	metrics   *telemetry.WorkflowMetrics
	tracer    trace.Tracer
}

// NewPipeline validates def and binds it to deps.
func NewPipeline(def Definition, deps Deps) (*Pipeline, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if deps.Fetcher == nil || deps.Notifier == nil || deps.Secrets == nil {
		return nil, errors.New("workflow: fetcher, notifier and secrets are required")
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	evaluator, err := def.Condition.Build(now)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidDefinition, def.Name, err)
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(telemetry.InstrumentationName)
	}

	return &Pipeline{
		def:       def,
		evaluator: evaluator,
		fetcher:   deps.Fetcher,
		notifier:  deps.Notifier,
		secrets:   deps.Secrets,
		now:       now,
		logger:    deps.Logger.With().Str("workflow", def.Name).Logger(),
		metrics:   deps.Metrics,
		tracer:    tracer,
	}, nil
}

// Definition returns a copy of the workflow definition.
func (p *Pipeline) Definition() Definition {
	return p.def
}

// Name returns the workflow name.
func (p *Pipeline) Name() string {
	return p.def.Name
}

// Run executes the pipeline once and always returns a finished Run.
func (p *Pipeline) Run(ctx context.Context, params RunParams) *Run {
	city := strings.TrimSpace(params.City)
	if city == "" {
		city = p.def.DefaultCity
	}
	trigger := params.Trigger
	if trigger == "" {
		trigger = TriggerManual
	}

	run := &Run{
		ID:        uuid.New().String(),
		Workflow:  p.def.Name,
		City:      city,
		Trigger:   trigger,
		StartedAt: p.now().UTC(),
	}

	ctx, span := p.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.name", p.def.Name),
		attribute.String("workflow.run_id", run.ID),
		attribute.String("workflow.city", city),
		attribute.String("workflow.trigger", string(trigger)),
	))
	defer span.End()

	logger := p.logger.With().
		Str("run_id", run.ID).
		Str("city", city).
		Str("trigger", string(trigger)).
		Logger()

	logger.Info().Msg("workflow run started")

	status, err := p.execute(ctx, run, logger)
	p.finish(ctx, run, status, err, logger)

	span.SetAttributes(attribute.String("workflow.status", string(run.Status)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, run.Error)
	}

	return run
}

func (p *Pipeline) execute(ctx context.Context, run *Run, logger zerolog.Logger) (Status, error) {
	apiKey, err := p.secrets.Resolve(ctx, p.def.APIKeySecret)
	if err != nil {
		return StatusFailed, fmt.Errorf("resolve api key: %w", err)
	}

	forecast, err := p.fetch(ctx, run, apiKey, logger)
	if err != nil {
		return StatusFailed, fmt.Errorf("fetch forecast: %w", err)
	}

	decision := p.evaluator.Evaluate(forecast)
	run.Decision = &decision

	logger.Info().
		Stringer("outcome", decision.Outcome).
		Str("reason", decision.Reason).
		Int("intervals", len(forecast.Intervals)).
		Msg("forecast evaluated")

	if decision.Outcome != condition.Fire {
		return StatusSkipped, nil
	}

	webhook, err := p.secrets.Resolve(ctx, p.def.WebhookSecret)
	if err != nil {
		return StatusFailed, fmt.Errorf("resolve webhook: %w", err)
	}

	err = p.notifier.Notify(ctx, webhook, p.def.Message)
	p.metrics.RecordNotification(ctx, p.def.Name, err)
	if err != nil {
		return StatusFailed, fmt.Errorf("notify: %w", err)
	}
	run.Notified = true

	return StatusSucceeded, nil
}

// fetch retries only weather.FetchError, with a constant delay, up to
// Retry.MaxRetries times.
func (p *Pipeline) fetch(ctx context.Context, run *Run, apiKey secrets.Secret, logger zerolog.Logger) (*weather.Forecast, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.def.Retry.Delay), p.def.Retry.MaxRetries),
		ctx,
	)

	operation := func() (*weather.Forecast, error) {
		run.Attempts++
		f, err := p.fetcher.Fetch(ctx, run.City, apiKey)
		p.metrics.RecordFetchAttempt(ctx, p.def.Name, err)
		if err == nil {
			return f, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		var fetchErr *weather.FetchError
		if errors.As(err, &fetchErr) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	onRetry := func(err error, wait time.Duration) {
		logger.Warn().
			Err(err).
			Int("attempt", run.Attempts).
			Dur("retry_in", wait).
			Msg("forecast fetch failed, retrying")
	}

	f, err := backoff.RetryNotifyWithData[*weather.Forecast](operation, policy, onRetry)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("%w (last error: %w)", ctxErr, err)
		}
		return nil, err
	}
	return f, nil
}

func (p *Pipeline) finish(ctx context.Context, run *Run, status Status, err error, logger zerolog.Logger) {
	run.Status = status
	run.FinishedAt = p.now().UTC()
	if err != nil {
		run.err = err
		run.Error = err.Error()
	}

	p.metrics.RecordRun(context.WithoutCancel(ctx), p.def.Name, string(status), run.Duration())

	event := logger.Info()
	if status == StatusFailed {
		event = logger.Error().Err(err)
	}
	event.
		Str("status", string(status)).
		Int("attempts", run.Attempts).
		Bool("notified", run.Notified).
		Dur("duration", run.Duration()).
		Msg("workflow run finished")
}
