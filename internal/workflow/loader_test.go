package workflow_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherflows/weatherflows/internal/condition"
	"github.com/weatherflows/weatherflows/internal/workflow"
)

const descriptor = `
workflows:
  - name: snow
    description: Weekday check for a snow-heavy week
    default_city: Alpine Meadows
    message: "There is snow in the forecast for this week - it might be time to hit the slopes!"
    condition:
      kind: snow
      min_intervals: 8
      min_amount_mm: 1
    schedule:
      cron: "0 18 * * 1-5"
      timezone: US/Pacific
  - name: umbrella
    default_city: San Jose
    webhook_secret: TEAM_SLACK_URL
    message: "There is rain in the forecast for tomorrow - better take your umbrella out!"
    condition:
      kind: rain
    retry:
      max_retries: 1
      delay: 250ms
`

func TestLoadDefinitions(t *testing.T) {
	defs, err := workflow.LoadDefinitions(strings.NewReader(descriptor))
	require.NoError(t, err)
	require.Len(t, defs, 2)

	snow := defs[0]
	assert.Equal(t, "snow", snow.Name)
	assert.Equal(t, condition.KindSnow, snow.Condition.Kind)
	assert.Equal(t, 8, snow.Condition.MinIntervals)
	assert.Equal(t, "CRON_TZ=US/Pacific 0 18 * * 1-5", snow.Schedule.Expression())
	assert.Equal(t, workflow.DefaultRetryPolicy(), snow.Retry, "omitted retry uses defaults")
	assert.Equal(t, workflow.DefaultAPIKeySecret, snow.APIKeySecret)
	assert.Equal(t, workflow.DefaultWebhookSecret, snow.WebhookSecret)

	umbrella := defs[1]
	assert.Equal(t, "TEAM_SLACK_URL", umbrella.WebhookSecret)
	assert.False(t, umbrella.Schedule.IsScheduled())
	assert.Equal(t, uint64(1), umbrella.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, umbrella.Retry.Delay)
}

func TestLoadDefinitions_MatchesBuiltins(t *testing.T) {
	defs, err := workflow.LoadDefinitions(strings.NewReader(descriptor))
	require.NoError(t, err)

	assert.Equal(t, workflow.Snow(), defs[0])
}

func TestLoadDefinitions_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "", "descriptor is empty"},
		{"no workflows", "workflows: []", "no workflows"},
		{"unknown field", "workflows:\n  - name: snow\n    colour: blue\n", "colour"},
		{"unknown nested field", "workflows:\n  - name: snow\n    default_city: X\n    message: m\n    condition:\n      kind: snow\n      depth: 3\n", "depth"},
		{"invalid definition", "workflows:\n  - name: snow\n    message: m\n    condition:\n      kind: snow\n", "default_city"},
		{"duplicate", "workflows:\n  - {name: a, default_city: X, message: m, condition: {kind: rain}}\n  - {name: a, default_city: Y, message: m, condition: {kind: rain}}\n", "duplicate"},
		{"bad duration", "workflows:\n  - {name: a, default_city: X, message: m, condition: {kind: rain}, retry: {delay: soon}}\n", "decoding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := workflow.LoadDefinitions(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDefinitionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(descriptor), 0o600))

	defs, err := workflow.LoadDefinitionsFile(path)
	require.NoError(t, err)
	assert.Len(t, defs, 2)

	_, err = workflow.LoadDefinitionsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
