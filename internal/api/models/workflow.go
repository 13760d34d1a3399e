package models

import (
	"time"

	"github.com/weatherflows/weatherflows/internal/workflow"
)

// Workflow describes one registered workflow. Secrets appear by name only.
type Workflow struct {
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	DefaultCity   string    `json:"defaultCity"`
	APIKeySecret  string    `json:"apiKeySecret"`
	WebhookSecret string    `json:"webhookSecret"`
	Condition     Condition `json:"condition"`
	Schedule      *Schedule `json:"schedule,omitempty"`
	Retry         RetryInfo `json:"retry"`
}

// Condition is the evaluator a workflow applies to the forecast.
type Condition struct {
	Kind         string  `json:"kind"`
	MinIntervals int     `json:"minIntervals,omitempty"`
	MinAmountMM  float64 `json:"minAmountMm,omitempty"`
	Tag          string  `json:"tag,omitempty"`
}

// Schedule is present only for cron-driven workflows.
type Schedule struct {
	Cron      string     `json:"cron"`
	Timezone  string     `json:"timezone,omitempty"`
	NextRunAt *Timestamp `json:"nextRunAt,omitempty"`
}

// RetryInfo is the fetch retry policy.
type RetryInfo struct {
	MaxRetries   uint64  `json:"maxRetries"`
	DelaySeconds float64 `json:"delaySeconds"`
}

// WorkflowList is the GET /v1/workflows response.
type WorkflowList struct {
	Workflows []Workflow `json:"workflows"`
}

// NewWorkflow converts a definition. next is the upcoming activation, zero
// when the workflow is not scheduled.
func NewWorkflow(def workflow.Definition, next time.Time) Workflow {
	w := Workflow{
		Name:          def.Name,
		Description:   def.Description,
		DefaultCity:   def.DefaultCity,
		APIKeySecret:  def.APIKeySecret,
		WebhookSecret: def.WebhookSecret,
		Condition: Condition{
			Kind:         string(def.Condition.Kind),
			MinIntervals: def.Condition.MinIntervals,
			MinAmountMM:  def.Condition.MinAmountMM,
			Tag:          def.Condition.Tag,
		},
		Retry: RetryInfo{
			MaxRetries:   def.Retry.MaxRetries,
			DelaySeconds: def.Retry.Delay.Seconds(),
		},
	}
	if def.Schedule.IsScheduled() {
		w.Schedule = &Schedule{
			Cron:      def.Schedule.Cron,
			Timezone:  def.Schedule.Timezone,
			NextRunAt: TimestampPtr(next),
		}
	}
	return w
}

// Decision is the evaluator's verdict for a run.
type Decision struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason"`
}

// Run is one workflow execution.
type Run struct {
	ID         string     `json:"id"`
	Workflow   string     `json:"workflow"`
	City       string     `json:"city"`
	Trigger    string     `json:"trigger"`
	Status     string     `json:"status"`
	Decision   *Decision  `json:"decision,omitempty"`
	Attempts   int        `json:"attempts"`
	Notified   bool       `json:"notified"`
	Error      string     `json:"error,omitempty"`
	StartedAt  Timestamp  `json:"startedAt"`
	FinishedAt *Timestamp `json:"finishedAt,omitempty"`
	DurationMS int64      `json:"durationMs"`
}

// RunList is a page of runs, newest first.
type RunList struct {
	Runs []Run    `json:"runs"`
	Meta ListMeta `json:"meta"`
}

// TriggerRunRequest is the optional body of POST /v1/workflows/{name}/runs.
type TriggerRunRequest struct {
	City string `json:"city,omitempty" validate:"omitempty,max=100"`
}

// NewRun converts a run record.
func NewRun(r *workflow.Run) Run {
	run := Run{
		ID:         r.ID,
		Workflow:   r.Workflow,
		City:       r.City,
		Trigger:    string(r.Trigger),
		Status:     string(r.Status),
		Attempts:   r.Attempts,
		Notified:   r.Notified,
		Error:      r.Error,
		StartedAt:  Timestamp(r.StartedAt),
		FinishedAt: TimestampPtr(r.FinishedAt),
	}
	if !r.FinishedAt.IsZero() {
		run.DurationMS = r.Duration().Milliseconds()
	}
	if r.Decision != nil {
		run.Decision = &Decision{
			Outcome: r.Decision.Outcome.String(),
			Reason:  r.Decision.Reason,
		}
	}
	return run
}

// NewRunList converts a page of runs.
func NewRunList(runs []*workflow.Run, limit int) RunList {
	list := RunList{
		Runs: make([]Run, 0, len(runs)),
		Meta: ListMeta{Count: len(runs), Limit: limit},
	}
	for _, r := range runs {
		list.Runs = append(list.Runs, NewRun(r))
	}
	return list
}
