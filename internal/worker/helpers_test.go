package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/weatherflows/weatherflows/internal/history"
	"github.com/weatherflows/weatherflows/internal/secrets"
	"github.com/weatherflows/weatherflows/internal/weather"
	"github.com/weatherflows/weatherflows/internal/worker"
	"github.com/weatherflows/weatherflows/internal/workflow"
)

var testNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// stubFetcher returns rain tomorrow, or err.
type stubFetcher struct {
	mu     sync.Mutex
	cities []string
	err    error
}

func (f *stubFetcher) Fetch(_ context.Context, location string, _ secrets.Secret) (*weather.Forecast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cities = append(f.cities, location)
	if f.err != nil {
		return nil, f.err
	}
	return &weather.Forecast{Intervals: []weather.Interval{
		{DtTxt: "2024-01-02 05:00:00", Weather: []weather.ConditionTag{{Main: weather.TagRain}}},
	}}, nil
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNotifier) Notify(context.Context, secrets.Secret, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return nil
}

func (n *countingNotifier) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type fixture struct {
	runner   *worker.Runner
	history  *history.InMemoryRepository
	fetcher  *stubFetcher
	notifier *countingNotifier
}

func newFixture(t *testing.T, defs ...workflow.Definition) *fixture {
	t.Helper()
	if len(defs) == 0 {
		defs = workflow.DefaultDefinitions()
	}

	f := &fixture{
		history:  history.NewInMemoryRepository(0),
		fetcher:  &stubFetcher{},
		notifier: &countingNotifier{},
	}

	store := newFixtureSecrets()

	var pipelines []*workflow.Pipeline
	for _, def := range defs {
		def.Retry.Delay = time.Millisecond
		p, err := workflow.NewPipeline(def, workflow.Deps{
			Fetcher:  f.fetcher,
			Notifier: f.notifier,
			Secrets:  store,
			Now:      func() time.Time { return testNow },
			Logger:   zerolog.Nop(),
		})
		require.NoError(t, err)
		pipelines = append(pipelines, p)
	}

	runner, err := worker.NewRunner(worker.RunnerConfig{
		Pipelines: pipelines,
		History:   f.history,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	f.runner = runner
	return f
}

func newFixtureSecrets() secrets.StaticStore {
	return secrets.StaticStore{
		workflow.DefaultAPIKeySecret:  "owm-key",
		workflow.DefaultWebhookSecret: "https://hooks.slack.com/services/T/B/X",
	}
}
