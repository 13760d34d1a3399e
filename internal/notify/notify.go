// Package notify delivers alert messages to chat webhooks.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/weatherflows/weatherflows/internal/secrets"
)

// Notifier sends one message to the destination held in webhook.
type Notifier interface {
	Notify(ctx context.Context, webhook secrets.Secret, text string) error
}

// NotifyError reports a failed delivery. StatusCode is 0 for transport errors.
type NotifyError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *NotifyError) Error() string {
	switch {
	case e.Reason != "" && e.StatusCode != 0:
		return fmt.Sprintf("webhook delivery failed: status %d: %s", e.StatusCode, e.Reason)
	case e.Reason != "":
		return "webhook delivery failed: " + e.Reason
	case e.StatusCode != 0:
		return fmt.Sprintf("webhook delivery failed: status %d", e.StatusCode)
	default:
		return fmt.Sprintf("webhook delivery failed: %v", e.Err)
	}
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// Log writes messages to a logger instead of delivering them. Used for dry
// runs and local development.
type Log struct {
	Logger zerolog.Logger
}

// NewLog creates a Log notifier.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{Logger: logger}
}

func (l *Log) Notify(_ context.Context, _ secrets.Secret, text string) error {
	l.Logger.Info().Str("text", text).Msg("notification (dry run)")
	return nil
}
