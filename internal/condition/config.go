package condition

import (
	"errors"
	"fmt"
	"time"
)

// Kind selects an evaluator.
type Kind string

const (
	KindSnow Kind = "snow"
	KindRain Kind = "rain"
)

// ErrUnknownKind is returned by Build for an unsupported Kind.
var ErrUnknownKind = errors.New("unknown condition kind")

// Config is the declarative form of an evaluator as written in a workflow
// descriptor. Zero thresholds mean the defaults.
type Config struct {
	Kind         Kind    `yaml:"kind" json:"kind" validate:"required,oneof=snow rain"`
	MinIntervals int     `yaml:"min_intervals,omitempty" json:"min_intervals,omitempty" validate:"gte=0"`
	MinAmountMM  float64 `yaml:"min_amount_mm,omitempty" json:"min_amount_mm,omitempty" validate:"gte=0"`
	Tag          string  `yaml:"tag,omitempty" json:"tag,omitempty"`
}

// Build constructs the evaluator described by c. now is the clock used by
// date-relative evaluators.
func (c Config) Build(now func() time.Time) (Evaluator, error) {
	switch c.Kind {
	case KindSnow:
		e := NewSnowEvaluator()
		if c.MinIntervals > 0 {
			e.MinIntervals = c.MinIntervals
		}
		if c.MinAmountMM > 0 {
			e.MinAmountMM = c.MinAmountMM
		}
		return e, nil
	case KindRain:
		e := NewRainEvaluator(now)
		if c.Tag != "" {
			e.Tag = c.Tag
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
}
