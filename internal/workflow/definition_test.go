package workflow_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherflows/weatherflows/internal/condition"
	"github.com/weatherflows/weatherflows/internal/workflow"
)

func TestDefaultDefinitions(t *testing.T) {
	defs := workflow.DefaultDefinitions()
	require.Len(t, defs, 2)

	for _, def := range defs {
		assert.NoError(t, def.Validate(), def.Name)
		assert.Equal(t, uint64(2), def.Retry.MaxRetries)
		assert.Equal(t, 5*time.Second, def.Retry.Delay)
		assert.Equal(t, "WEATHER_API_KEY", def.APIKeySecret)
		assert.Equal(t, "DAVID_SLACK_URL", def.WebhookSecret)
	}

	snow := workflow.Snow()
	assert.Equal(t, "Alpine Meadows", snow.DefaultCity)
	assert.Equal(t, condition.KindSnow, snow.Condition.Kind)
	assert.True(t, snow.Schedule.IsScheduled())
	assert.Equal(t, "CRON_TZ=US/Pacific 0 18 * * 1-5", snow.Schedule.Expression())

	umbrella := workflow.Umbrella()
	assert.Equal(t, "San Jose", umbrella.DefaultCity)
	assert.Equal(t, condition.KindRain, umbrella.Condition.Kind)
	assert.False(t, umbrella.Schedule.IsScheduled())
}

func TestSchedule_Next(t *testing.T) {
	pacific, err := time.LoadLocation("US/Pacific")
	require.NoError(t, err)

	// Friday 2024-01-05 19:00 Pacific: next run is Monday 18:00.
	from := time.Date(2024, 1, 5, 19, 0, 0, 0, pacific)
	next, err := workflow.Snow().Schedule.Next(from)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 8, 18, 0, 0, 0, pacific).Unix(), next.Unix())
	assert.Equal(t, time.Monday, next.In(pacific).Weekday())
}

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*workflow.Definition)
		want   string
	}{
		{"missing name", func(d *workflow.Definition) { d.Name = "" }, "name"},
		{"bad name", func(d *workflow.Definition) { d.Name = "Snow Flow" }, "workflow_name"},
		{"missing city", func(d *workflow.Definition) { d.DefaultCity = "" }, "default_city"},
		{"missing message", func(d *workflow.Definition) { d.Message = "" }, "message"},
		{"missing webhook secret", func(d *workflow.Definition) { d.WebhookSecret = "" }, "webhook_secret"},
		{"unknown condition", func(d *workflow.Definition) { d.Condition.Kind = "hail" }, "kind"},
		{"negative threshold", func(d *workflow.Definition) { d.Condition.MinIntervals = -1 }, "min_intervals"},
		{"bad cron", func(d *workflow.Definition) { d.Schedule.Cron = "every day" }, "schedule.cron"},
		{"bad timezone", func(d *workflow.Definition) { d.Schedule.Timezone = "Mars/Olympus" }, "timezone"},
		{"timezone without cron", func(d *workflow.Definition) { d.Schedule = workflow.Schedule{Timezone: "UTC"} }, "without schedule.cron"},
		{"too many retries", func(d *workflow.Definition) { d.Retry.MaxRetries = 50 }, "max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := workflow.Snow()
			tt.mutate(&def)

			err := def.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, workflow.ErrInvalidDefinition)
			assert.True(t, strings.Contains(err.Error(), tt.want), "error %q should mention %q", err, tt.want)
		})
	}
}

func TestDefinition_WithRetryCopies(t *testing.T) {
	def := workflow.Snow()
	changed := def.WithRetry(workflow.RetryPolicy{MaxRetries: 0, Delay: time.Second})

	assert.Equal(t, uint64(2), def.Retry.MaxRetries)
	assert.Equal(t, uint64(0), changed.Retry.MaxRetries)
}
