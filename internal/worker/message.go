package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/weatherflows/weatherflows/internal/workflow"
)

// AllWorkflows in TriggerMessage.Workflow runs every workflow.
const AllWorkflows = "*"

// ErrInvalidMessage is returned for payloads that can never be processed.
var ErrInvalidMessage = errors.New("invalid trigger message")

// TriggerMessage is the payload of a queued trigger.
type TriggerMessage struct {
	Workflow string `json:"workflow"`
	City     string `json:"city,omitempty"`
}

// ParseTriggerMessage decodes and checks a payload.
func ParseTriggerMessage(data []byte) (TriggerMessage, error) {
	var msg TriggerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return TriggerMessage{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	msg.Workflow = strings.TrimSpace(msg.Workflow)
	if msg.Workflow == "" {
		return TriggerMessage{}, fmt.Errorf("%w: workflow is required", ErrInvalidMessage)
	}
	return msg, nil
}

// Disposition tells a transport what to do with a delivered message.
type Disposition int

const (
	// Ack removes the message from the queue.
	Ack Disposition = iota
	// Retry leaves the message for redelivery.
	Retry
)

func (d Disposition) String() string {
	if d == Retry {
		return "retry"
	}
	return "ack"
}

// HandleMessage runs the workflow a payload names. Malformed payloads and
// finished runs, failed ones included, are acknowledged; the run is already in
// history. Unknown workflows are retried so that a rolling deploy that adds a
// workflow does not drop its first triggers.
func (r *Runner) HandleMessage(ctx context.Context, data []byte, trigger workflow.Trigger, logger zerolog.Logger) Disposition {
	msg, err := ParseTriggerMessage(data)
	if err != nil {
		logger.Error().Err(err).Msg("discarding trigger message")
		return Ack
	}

	if msg.Workflow == AllWorkflows {
		result := r.TriggerAll(ctx, trigger, DefaultBatchConfig())
		logger.Info().
			Int("succeeded", result.Succeeded).
			Int("skipped", result.Skipped).
			Int("failed", result.Failed).
			Msg("batch trigger handled")
		return Ack
	}

	run, err := r.Trigger(ctx, msg.Workflow, workflow.RunParams{City: msg.City, Trigger: trigger})
	if err != nil {
		logger.Warn().Err(err).Str("workflow", msg.Workflow).Msg("trigger for unknown workflow")
		return Retry
	}

	logger.Info().
		Str("workflow", run.Workflow).
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Msg("trigger message handled")
	return Ack
}
