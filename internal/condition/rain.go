package condition

import (
	"fmt"
	"strings"
	"time"

	"github.com/weatherflows/weatherflows/internal/weather"
)

// DateLayout is the prefix of weather.Interval.DtTxt that identifies the day.
const DateLayout = "2006-01-02"

// RainEvaluator fires when any interval on the UTC day after now carries the
// Tag condition (Rain by default).
type RainEvaluator struct {
	Now func() time.Time
	Tag string
}

// NewRainEvaluator returns an evaluator for the Rain tag using the given clock.
// A nil clock means time.Now.
func NewRainEvaluator(now func() time.Time) RainEvaluator {
	if now == nil {
		now = time.Now
	}
	return RainEvaluator{Now: now, Tag: weather.TagRain}
}

// Tomorrow returns the UTC date after now as YYYY-MM-DD. It is computed on
// every call so long-lived evaluators never reuse a stale day.
func (e RainEvaluator) Tomorrow() string {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return now().UTC().AddDate(0, 0, 1).Format(DateLayout)
}

func (e RainEvaluator) Evaluate(f *weather.Forecast) Decision {
	tomorrow := e.Tomorrow()
	tag := e.Tag
	if tag == "" {
		tag = weather.TagRain
	}

	if f != nil {
		for _, interval := range f.Intervals {
			if !strings.HasPrefix(interval.DtTxt, tomorrow) {
				continue
			}
			if interval.HasTag(tag) {
				return Decision{
					Outcome: Fire,
					Reason:  fmt.Sprintf("%s forecast at %s", tag, interval.DtTxt),
				}
			}
		}
	}

	return Decision{
		Outcome: Suppress,
		Reason:  fmt.Sprintf("no %s forecast for %s", tag, tomorrow),
	}
}
