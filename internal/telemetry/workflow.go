package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the tracer and meter name used by workflow runs.
const InstrumentationName = "github.com/weatherflows/weatherflows/internal/workflow"

// WorkflowMetrics holds the instruments recorded by each workflow run.
type WorkflowMetrics struct {
	runs          metric.Int64Counter
	runDuration   metric.Float64Histogram
	fetchAttempts metric.Int64Counter
	notifications metric.Int64Counter
}

// NewWorkflowMetrics creates the workflow instruments on the global meter.
func NewWorkflowMetrics() (*WorkflowMetrics, error) {
	meter := otel.Meter(InstrumentationName)

	runs, err := meter.Int64Counter(
		"workflow.runs",
		metric.WithDescription("Completed workflow runs by status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"workflow.run.duration",
		metric.WithDescription("Duration of workflow runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	fetchAttempts, err := meter.Int64Counter(
		"workflow.fetch.attempts",
		metric.WithDescription("Forecast fetch attempts including retries"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	notifications, err := meter.Int64Counter(
		"workflow.notifications",
		metric.WithDescription("Notification deliveries attempted"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	return &WorkflowMetrics{
		runs:          runs,
		runDuration:   runDuration,
		fetchAttempts: fetchAttempts,
		notifications: notifications,
	}, nil
}

// RecordRun records a finished run. A nil receiver is a no-op.
func (m *WorkflowMetrics) RecordRun(ctx context.Context, workflow, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("workflow.name", workflow),
		attribute.String("workflow.status", status),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFetchAttempt records one forecast request.
func (m *WorkflowMetrics) RecordFetchAttempt(ctx context.Context, workflow string, err error) {
	if m == nil {
		return
	}
	m.fetchAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow.name", workflow),
		attribute.Bool("error", err != nil),
	))
}

// RecordNotification records one delivery attempt.
func (m *WorkflowMetrics) RecordNotification(ctx context.Context, workflow string, err error) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow.name", workflow),
		attribute.Bool("error", err != nil),
	))
}
