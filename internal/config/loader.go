package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Error describes a configuration problem. Field is empty when the problem is
// not tied to a single setting.
type Error struct {
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", msg, e.Err)
	}
	return "config: " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads the given dotenv files (".env" when none are named), then the
// environment, and validates the result. A missing dotenv file is not an
// error. Values already in the environment take precedence over dotenv.
func Load(dotenvFiles ...string) (*Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Message: "loading dotenv", Err: err}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		var parseErr *envconfig.ParseError
		if errors.As(err, &parseErr) {
			return nil, &Error{Field: parseErr.KeyName, Message: "invalid value", Err: parseErr.Err}
		}
		return nil, &Error{Message: "processing environment", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field rules and the cross-field constraints.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &Error{
				Field:   strings.TrimPrefix(fe.Namespace(), "Config."),
				Message: fmt.Sprintf("failed %q validation", fe.Tag()),
			}
		}
		return &Error{Message: "validation failed", Err: err}
	}

	if !c.IsLocal() && c.Auth.SigningKey.IsZero() {
		return &Error{Field: "Auth.SigningKey", Message: "JWT_SIGNING_KEY is required outside the local environment"}
	}
	if c.History.Backend == HistoryBackendPostgres && c.Database.Host == "" {
		return &Error{Field: "Database.Host", Message: "required for the postgres history backend"}
	}
	return nil
}
