package workflow

import (
	"time"

	"github.com/weatherflows/weatherflows/internal/condition"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Trigger identifies what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
	TriggerAPI      Trigger = "api"
	TriggerPubSub   Trigger = "pubsub"
	TriggerSQS      Trigger = "sqs"
)

// Run is the record of one pipeline execution.
type Run struct {
	ID         string              `json:"id"`
	Workflow   string              `json:"workflow"`
	City       string              `json:"city"`
	Trigger    Trigger             `json:"trigger"`
	Status     Status              `json:"status"`
	Decision   *condition.Decision `json:"decision,omitempty"`
	Attempts   int                 `json:"attempts"`
	Notified   bool                `json:"notified"`
	Error      string              `json:"error,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`

	err error
}

// Err returns the error that failed the run, or nil.
func (r *Run) Err() error {
	return r.err
}

// Failed reports whether the run ended in StatusFailed.
func (r *Run) Failed() bool {
	return r.Status == StatusFailed
}

// Duration is the wall time between start and finish.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
