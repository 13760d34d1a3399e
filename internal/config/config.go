// Package config loads process configuration from the environment. It is read
// once at startup and treated as immutable afterwards; workflow definitions
// live in their own descriptor file (see workflow.LoadDefinitionsFile).
package config

import (
	"time"

	"github.com/weatherflows/weatherflows/internal/database"
	"github.com/weatherflows/weatherflows/internal/secrets"
)

// Secret backends.
const (
	SecretsBackendEnv  = "env"
	SecretsBackendFile = "file"
)

// History backends.
const (
	HistoryBackendMemory   = "memory"
	HistoryBackendPostgres = "postgres"
)

// LocalEnvironment relaxes the checks that guard deployed processes.
const LocalEnvironment = "local"

// Config is the top-level process configuration.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`

	// WorkflowsFile points at a YAML descriptor. Empty means the built-in
	// definitions.
	WorkflowsFile string `envconfig:"WORKFLOWS_FILE"`

	Server    ServerConfig
	Weather   WeatherConfig
	Secrets   SecretsConfig
	History   HistoryConfig
	Database  database.Config `envconfig:"DB"`
	Auth      AuthConfig
	PubSub    PubSubConfig
	SQS       SQSConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"APP_PORT" default:"8080" validate:"numeric"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"30s"`

	// TriggerRateLimit is the number of manual trigger requests allowed per
	// client per minute.
	TriggerRateLimit int `envconfig:"TRIGGER_RATE_LIMIT" default:"10" validate:"min=1"`

	// SchedulerEnabled starts the cron scheduler in the worker.
	SchedulerEnabled bool `envconfig:"SCHEDULER_ENABLED" default:"true"`

	// RequireTLS rejects requests whose X-Forwarded-Proto is not https.
	RequireTLS bool `envconfig:"REQUIRE_TLS"`
}

// WeatherConfig holds forecast provider configuration.
type WeatherConfig struct {
	BaseURL string        `envconfig:"OWM_BASE_URL" default:"https://api.openweathermap.org/data/2.5" validate:"url"`
	Timeout time.Duration `envconfig:"OWM_TIMEOUT" default:"10s" validate:"min=1s"`
}

// SecretsConfig selects where named secrets are resolved from.
type SecretsConfig struct {
	Backend string `envconfig:"SECRETS_BACKEND" default:"env" validate:"oneof=env file"`
	Prefix  string `envconfig:"SECRETS_PREFIX"`
	Dir     string `envconfig:"SECRETS_DIR" validate:"required_if=Backend file"`
}

// HistoryConfig selects the run history store.
type HistoryConfig struct {
	Backend  string `envconfig:"HISTORY_BACKEND" default:"memory" validate:"oneof=memory postgres"`
	Capacity int    `envconfig:"HISTORY_CAPACITY" default:"1000" validate:"min=0"`
}

// AuthConfig holds operator token settings for the trigger endpoint.
type AuthConfig struct {
	SigningKey secrets.Secret `envconfig:"JWT_SIGNING_KEY"`
	Issuer     string         `envconfig:"JWT_ISSUER" default:"weatherflows"`
	Audience   string         `envconfig:"JWT_AUDIENCE" default:"weatherflows-operators"`
	TokenTTL   time.Duration  `envconfig:"JWT_TOKEN_TTL" default:"1h" validate:"min=1m"`
}

// PubSubConfig enables the Pub/Sub trigger consumer when both fields are set.
type PubSubConfig struct {
	ProjectID    string `envconfig:"PUBSUB_PROJECT_ID" validate:"required_with=Subscription"`
	Subscription string `envconfig:"PUBSUB_SUBSCRIPTION" validate:"required_with=ProjectID"`
}

// Enabled reports whether a subscription is configured.
func (c PubSubConfig) Enabled() bool {
	return c.Subscription != ""
}

// SQSConfig enables the SQS trigger consumer when QueueURL is set.
type SQSConfig struct {
	Region   string        `envconfig:"AWS_REGION" default:"us-east-1"`
	QueueURL string        `envconfig:"SQS_QUEUE_URL" validate:"omitempty,url"`
	WaitTime time.Duration `envconfig:"SQS_WAIT_TIME" default:"20s" validate:"min=0,max=20s"`
}

// Enabled reports whether a queue is configured.
func (c SQSConfig) Enabled() bool {
	return c.QueueURL != ""
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled        bool          `envconfig:"TELEMETRY_ENABLED" default:"false"`
	ServiceName    string        `envconfig:"OTEL_SERVICE_NAME" default:"weatherflows"`
	OTLPEndpoint   string        `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	SampleRatio    float64       `envconfig:"OTEL_SAMPLE_RATIO" default:"1" validate:"gte=0,lte=1"`
	MetricInterval time.Duration `envconfig:"OTEL_METRIC_INTERVAL" default:"15s"`
}

// IsLocal reports whether the process runs in the local environment.
func (c *Config) IsLocal() bool {
	return c.Environment == LocalEnvironment
}
