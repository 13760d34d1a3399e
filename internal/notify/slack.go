package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/weatherflows/weatherflows/internal/provider/resilience"
	"github.com/weatherflows/weatherflows/internal/secrets"
)

// ProviderName identifies the Slack webhook client in the provider registry.
const ProviderName = "slack"

const maxResponseBody = 4 << 10

// Slack error strings returned as plain text on an otherwise successful call.
var slackSoftErrors = []string{
	"no_text",
	"channel_not_found",
	"channel_is_archived",
	"invalid_payload",
	"too_many_attachments",
	"action_prohibited",
	"posting_to_general_channel_denied",
}

// SlackConfig configures the Slack webhook notifier.
type SlackConfig struct {
	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with default retries.
	HTTPClient *resilience.Client

	// Username overrides the webhook's default display name (optional).
	Username string

	// IconEmoji overrides the webhook's default icon (optional).
	IconEmoji string

	Logger zerolog.Logger
}

// Slack posts messages to Slack incoming webhooks. The webhook secret holds
// the full hooks.slack.com URL.
type Slack struct {
	httpClient *resilience.Client
	username   string
	iconEmoji  string
	logger     zerolog.Logger
}

// NewSlack creates a Slack notifier.
func NewSlack(cfg SlackConfig) *Slack {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}
	return &Slack{
		httpClient: httpClient,
		username:   cfg.Username,
		iconEmoji:  cfg.IconEmoji,
		logger:     cfg.Logger.With().Str("notifier", ProviderName).Logger(),
	}
}

type slackPayload struct {
	Text      string `json:"text"`
	Username  string `json:"username,omitempty"`
	IconEmoji string `json:"icon_emoji,omitempty"`
}

func (s *Slack) Notify(ctx context.Context, webhook secrets.Secret, text string) error {
	target, err := url.Parse(webhook.Reveal())
	if err != nil || target.Host == "" || (target.Scheme != "https" && target.Scheme != "http") {
		return &NotifyError{Reason: "webhook secret is not an http(s) URL"}
	}

	body, err := json.Marshal(slackPayload{Text: text, Username: s.username, IconEmoji: s.iconEmoji})
	if err != nil {
		return &NotifyError{Err: fmt.Errorf("encoding payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return &NotifyError{Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// Transport errors carry the URL, which is the secret.
		return &NotifyError{Err: redact(err, target.String())}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err := ValidateResponse(resp.StatusCode, respBody); err != nil {
		return err
	}

	s.logger.Debug().Int("status", resp.StatusCode).Msg("notification delivered")
	return nil
}

// ValidateResponse checks the status and Slack's soft failure pattern, where
// the call returns 200 but the body reports an error.
func ValidateResponse(statusCode int, body []byte) error {
	text := strings.TrimSpace(string(body))

	if statusCode < 200 || statusCode >= 300 {
		return &NotifyError{StatusCode: statusCode, Reason: text}
	}

	if text == "" || text == "ok" {
		return nil
	}

	var resp struct {
		OK    *bool  `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.OK != nil && !*resp.OK {
		reason := resp.Error
		if reason == "" {
			reason = "unknown error"
		}
		return &NotifyError{StatusCode: statusCode, Reason: reason}
	}

	for _, known := range slackSoftErrors {
		if text == known {
			return &NotifyError{StatusCode: statusCode, Reason: text}
		}
	}

	return nil
}

func redact(err error, rawURL string) error {
	msg := err.Error()
	if !strings.Contains(msg, rawURL) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, rawURL, "***REDACTED***"))
}
