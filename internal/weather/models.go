// Package weather holds the 5-day / 3-hour forecast model consumed by the
// alert workflows and the Fetcher interface that produces it.
package weather

import (
	"context"
	"errors"
	"time"

	"github.com/weatherflows/weatherflows/internal/secrets"
)

// Weather errors.
var (
	ErrEmptyLocation = errors.New("location must not be empty")
	ErrEmptyAPIKey   = errors.New("api key must not be empty")
)

// Common condition tags reported in ConditionTag.Main.
const (
	TagClear        = "Clear"
	TagClouds       = "Clouds"
	TagRain         = "Rain"
	TagDrizzle      = "Drizzle"
	TagThunderstorm = "Thunderstorm"
	TagSnow         = "Snow"
)

// TimestampLayout is the layout of Interval.DtTxt.
const TimestampLayout = "2006-01-02 15:04:05"

// Fetcher retrieves the forecast for a named location.
type Fetcher interface {
	Fetch(ctx context.Context, location string, apiKey secrets.Secret) (*Forecast, error)
}

// Forecast is one forecast response: up to 40 three-hour intervals in
// chronological order.
type Forecast struct {
	City      City
	Intervals []Interval
	FetchedAt time.Time
}

// City identifies the location the provider resolved the query to.
type City struct {
	ID       int64
	Name     string
	Country  string
	Timezone int // offset from UTC in seconds
}

// Interval is a single three-hour bucket.
type Interval struct {
	Dt      int64
	DtTxt   string
	Snow    *Precipitation
	Rain    *Precipitation
	Weather []ConditionTag
}

// Precipitation is the accumulation over the interval.
type Precipitation struct {
	// ThreeHour is nil when the provider sent the record without a 3h value.
	ThreeHour *float64
}

// ConditionTag labels the weather state of an interval.
type ConditionTag struct {
	ID          int
	Main        string
	Description string
}

// Amount returns the 3h accumulation in mm, or 0 when absent.
func (p *Precipitation) Amount() float64 {
	if p == nil || p.ThreeHour == nil {
		return 0
	}
	return *p.ThreeHour
}

// Time returns the interval start in UTC.
func (i Interval) Time() time.Time {
	return time.Unix(i.Dt, 0).UTC()
}

// HasTag reports whether any condition tag has the given Main value.
func (i Interval) HasTag(main string) bool {
	for _, tag := range i.Weather {
		if tag.Main == main {
			return true
		}
	}
	return false
}
