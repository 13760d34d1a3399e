// Package workflow defines weather-alert workflows and runs them as a
// fetch, evaluate, notify pipeline.
package workflow

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // timezone names must resolve on minimal images

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/weatherflows/weatherflows/internal/condition"
)

// Defaults shared by the built-in workflows.
const (
	DefaultAPIKeySecret  = "WEATHER_API_KEY"
	DefaultWebhookSecret = "DAVID_SLACK_URL"
	DefaultMaxRetries    = 2
	DefaultRetryDelay    = 5 * time.Second
)

// ErrInvalidDefinition wraps every validation failure of a Definition.
var ErrInvalidDefinition = errors.New("invalid workflow definition")

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}$`)

// Definition describes one workflow. It is built once, at startup, and then
// only read; Pipeline keeps its own copy.
type Definition struct {
	Name          string           `yaml:"name" json:"name" validate:"required,workflow_name"`
	Description   string           `yaml:"description,omitempty" json:"description,omitempty"`
	DefaultCity   string           `yaml:"default_city" json:"default_city" validate:"required"`
	APIKeySecret  string           `yaml:"api_key_secret" json:"api_key_secret" validate:"required"`
	WebhookSecret string           `yaml:"webhook_secret" json:"webhook_secret" validate:"required"`
	Message       string           `yaml:"message" json:"message" validate:"required"`
	Condition     condition.Config `yaml:"condition" json:"condition"`
	Schedule      Schedule         `yaml:"schedule,omitempty" json:"schedule,omitempty"`
	Retry         RetryPolicy      `yaml:"retry,omitempty" json:"retry"`
}

// Schedule is a five-field cron expression evaluated in Timezone. An empty
// Cron means the workflow only runs when triggered.
type Schedule struct {
	Cron     string `yaml:"cron,omitempty" json:"cron,omitempty"`
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty" validate:"omitempty,timezone"`
}

// RetryPolicy bounds forecast fetch retries. Only fetch errors are retried.
type RetryPolicy struct {
	MaxRetries uint64        `yaml:"max_retries" json:"max_retries" validate:"lte=10"`
	Delay      time.Duration `yaml:"delay" json:"delay" validate:"gte=0"`
}

// DefaultRetryPolicy is two retries five seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, Delay: DefaultRetryDelay}
}

// WithRetry returns a copy of d using policy.
func (d Definition) WithRetry(policy RetryPolicy) Definition {
	d.Retry = policy
	return d
}

// IsScheduled reports whether the schedule has a cron expression.
func (s Schedule) IsScheduled() bool {
	return s.Cron != ""
}

// Expression returns the schedule in the form accepted by cron.ParseStandard,
// with the timezone prefix when one is set.
func (s Schedule) Expression() string {
	if s.Timezone == "" {
		return s.Cron
	}
	return "CRON_TZ=" + s.Timezone + " " + s.Cron
}

// Next returns the first activation after t.
func (s Schedule) Next(t time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(s.Expression())
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t), nil
}

// Snow is the weekday-evening snow workflow.
func Snow() Definition {
	return Definition{
		Name:          "snow",
		Description:   "Weekday check for a snow-heavy week",
		DefaultCity:   "Alpine Meadows",
		APIKeySecret:  DefaultAPIKeySecret,
		WebhookSecret: DefaultWebhookSecret,
		Message:       "There is snow in the forecast for this week - it might be time to hit the slopes!",
		Condition: condition.Config{
			Kind:         condition.KindSnow,
			MinIntervals: condition.DefaultSnowMinIntervals,
			MinAmountMM:  condition.DefaultSnowMinAmountMM,
		},
		Schedule: Schedule{Cron: "0 18 * * 1-5", Timezone: "US/Pacific"},
		Retry:    DefaultRetryPolicy(),
	}
}

// Umbrella is the manually triggered rain-tomorrow workflow.
func Umbrella() Definition {
	return Definition{
		Name:          "umbrella",
		Description:   "Rain check for tomorrow",
		DefaultCity:   "San Jose",
		APIKeySecret:  DefaultAPIKeySecret,
		WebhookSecret: DefaultWebhookSecret,
		Message:       "There is rain in the forecast for tomorrow - better take your umbrella out!",
		Condition:     condition.Config{Kind: condition.KindRain},
		Retry:         DefaultRetryPolicy(),
	}
}

// DefaultDefinitions returns the built-in workflows.
func DefaultDefinitions() []Definition {
	return []Definition{Snow(), Umbrella()}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("workflow_name", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks required fields, the condition block and the schedule.
func (d Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w %q: %s", ErrInvalidDefinition, d.Name, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w %q: %w", ErrInvalidDefinition, d.Name, err)
	}

	if d.Schedule.Timezone != "" && !d.Schedule.IsScheduled() {
		return fmt.Errorf("%w %q: schedule.timezone set without schedule.cron", ErrInvalidDefinition, d.Name)
	}
	if d.Schedule.IsScheduled() {
		if _, err := cron.ParseStandard(d.Schedule.Expression()); err != nil {
			return fmt.Errorf("%w %q: schedule.cron: %w", ErrInvalidDefinition, d.Name, err)
		}
	}
	return nil
}
