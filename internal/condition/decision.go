// Package condition decides whether a forecast warrants an alert.
package condition

import (
	"fmt"

	"github.com/weatherflows/weatherflows/internal/weather"
)

// Outcome is the result of evaluating a forecast.
type Outcome int

const (
	// Suppress means the condition is not met and no notification is sent.
	Suppress Outcome = iota
	// Fire means the condition is met and the notification is sent.
	Fire
)

func (o Outcome) String() string {
	switch o {
	case Fire:
		return "fire"
	case Suppress:
		return "suppress"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome as its string form.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes "fire" or "suppress".
func (o *Outcome) UnmarshalText(text []byte) error {
	parsed, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "fire":
		return Fire, nil
	case "suppress":
		return Suppress, nil
	default:
		return Suppress, fmt.Errorf("unknown outcome %q", s)
	}
}

// Decision is an Outcome plus a short explanation for logs and run history.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason"`
}

// Evaluator inspects a forecast and decides whether to alert.
type Evaluator interface {
	Evaluate(f *weather.Forecast) Decision
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(f *weather.Forecast) Decision

func (fn EvaluatorFunc) Evaluate(f *weather.Forecast) Decision {
	return fn(f)
}
