package condition

import (
	"fmt"

	"github.com/weatherflows/weatherflows/internal/weather"
)

// Snow thresholds: eight 3-hour buckets is roughly a full day of snowfall.
const (
	DefaultSnowMinIntervals = 8
	DefaultSnowMinAmountMM  = 1.0
)

// SnowEvaluator fires when at least MinIntervals intervals carry a snow
// accumulation of MinAmountMM or more.
type SnowEvaluator struct {
	MinIntervals int
	MinAmountMM  float64
}

// NewSnowEvaluator returns an evaluator with the default thresholds.
func NewSnowEvaluator() SnowEvaluator {
	return SnowEvaluator{
		MinIntervals: DefaultSnowMinIntervals,
		MinAmountMM:  DefaultSnowMinAmountMM,
	}
}

// Evaluate counts qualifying snow intervals. Intervals without a snow record
// are ignored; a snow record without a 3h value counts as 0 mm.
func (e SnowEvaluator) Evaluate(f *weather.Forecast) Decision {
	count := 0
	if f != nil {
		for _, interval := range f.Intervals {
			if interval.Snow == nil {
				continue
			}
			if interval.Snow.Amount() >= e.MinAmountMM {
				count++
			}
		}
	}

	if count < e.MinIntervals {
		return Decision{
			Outcome: Suppress,
			Reason:  fmt.Sprintf("%d intervals with snow >= %gmm, need %d", count, e.MinAmountMM, e.MinIntervals),
		}
	}
	return Decision{
		Outcome: Fire,
		Reason:  fmt.Sprintf("%d intervals with snow >= %gmm", count, e.MinAmountMM),
	}
}
