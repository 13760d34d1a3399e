// Package app assembles the workflow components from process configuration.
// Both binaries use it so a pipeline behaves the same under the worker and
// the CLI.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/weatherflows/weatherflows/internal/config"
	"github.com/weatherflows/weatherflows/internal/database"
	"github.com/weatherflows/weatherflows/internal/history"
	"github.com/weatherflows/weatherflows/internal/notify"
	"github.com/weatherflows/weatherflows/internal/provider/resilience"
	"github.com/weatherflows/weatherflows/internal/secrets"
	"github.com/weatherflows/weatherflows/internal/telemetry"
	"github.com/weatherflows/weatherflows/internal/weather/openweathermap"
	"github.com/weatherflows/weatherflows/internal/workflow"
)

// DryRunWebhook stands in for webhook secrets that a dry run does not have.
const DryRunWebhook = "https://dry-run.invalid/webhook"

// Options adjust how pipelines are assembled.
type Options struct {
	// DryRun logs notifications instead of posting them and tolerates
	// missing webhook secrets.
	DryRun bool

	// Registry collects provider health. Nil creates a private registry.
	Registry *resilience.Registry

	// Now overrides the pipeline clock.
	Now func() time.Time
}

// NewLogger returns the JSON stdout logger both binaries use.
func NewLogger(service, version, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parsing log level: %w", err)
	}
	return zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger(), nil
}

// Definitions loads the descriptor file, or returns the built-in
// definitions when path is empty.
func Definitions(path string) ([]workflow.Definition, error) {
	if path == "" {
		return workflow.DefaultDefinitions(), nil
	}
	return workflow.LoadDefinitionsFile(path)
}

// SecretStore builds the configured secret backend.
func SecretStore(cfg config.SecretsConfig) secrets.Store {
	if cfg.Backend == config.SecretsBackendFile {
		return secrets.NewFileStore(cfg.Dir)
	}
	return secrets.NewEnvStore(cfg.Prefix)
}

// Pipelines binds every definition to the OpenWeatherMap client and the
// Slack notifier, or the log notifier for a dry run.
func Pipelines(cfg *config.Config, defs []workflow.Definition, logger zerolog.Logger, opts Options) ([]*workflow.Pipeline, error) {
	registry := opts.Registry
	if registry == nil {
		registry = resilience.NewRegistry()
	}

	store := SecretStore(cfg.Secrets)
	var notifier notify.Notifier
	if opts.DryRun {
		notifier = notify.NewLog(logger)
		store = dryRunStore(store, defs)
	} else {
		notifier = notify.NewSlack(notify.SlackConfig{
			HTTPClient: providerClient(notify.ProviderName, 0, -1, registry, logger),
			Logger:     logger,
		})
	}

	fetcher := openweathermap.NewClient(openweathermap.ClientConfig{
		BaseURL: cfg.Weather.BaseURL,
		// Fetch retries belong to the pipeline's retry policy.
		HTTPClient: providerClient(openweathermap.ProviderName, cfg.Weather.Timeout, 0, registry, logger),
		Logger:     logger,
	})

	metrics, err := telemetry.NewWorkflowMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating workflow metrics: %w", err)
	}

	deps := workflow.Deps{
		Fetcher:  fetcher,
		Notifier: notifier,
		Secrets:  store,
		Now:      opts.Now,
		Logger:   logger,
		Metrics:  metrics,
	}

	pipelines := make([]*workflow.Pipeline, 0, len(defs))
	for _, def := range defs {
		p, err := workflow.NewPipeline(def, deps)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, nil
}

// providerClient builds a resilient client registered under name. A zero
// timeout keeps the default; a negative maxRetries keeps the default policy.
func providerClient(name string, timeout time.Duration, maxRetries int, registry *resilience.Registry, logger zerolog.Logger) *resilience.Client {
	cfg := resilience.DefaultClientConfig(name)
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	if maxRetries >= 0 {
		cfg.MaxRetries = uint64(maxRetries)
	}
	cfg.CircuitBreaker.OnStateChange = resilience.LogStateChange(logger)
	cfg.Registry = registry
	return resilience.NewClient(cfg)
}

func dryRunStore(store secrets.Store, defs []workflow.Definition) secrets.Store {
	fallback := secrets.StaticStore{}
	for _, def := range defs {
		fallback[def.WebhookSecret] = DryRunWebhook
	}
	return secrets.ChainStore{store, fallback}
}

// History opens the configured run store. The returned close function
// releases any connection pool.
func History(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (history.Repository, func(), error) {
	if cfg.History.Backend != config.HistoryBackendPostgres {
		return history.NewInMemoryRepository(cfg.History.Capacity), func() {}, nil
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	repo := history.NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	logger.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Msg("database connected")
	return repo, pool.Close, nil
}
