package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherflows/weatherflows/internal/notify"
	"github.com/weatherflows/weatherflows/internal/provider/resilience"
	"github.com/weatherflows/weatherflows/internal/secrets"
)

func newSlack() *notify.Slack {
	cfg := resilience.DefaultClientConfig("test-slack")
	cfg.InitialInterval = 5 * time.Millisecond
	cfg.MaxInterval = 10 * time.Millisecond
	return notify.NewSlack(notify.SlackConfig{
		HTTPClient: resilience.NewClient(cfg),
		Username:   "weather-flows",
		Logger:     zerolog.Nop(),
	})
}

func TestSlack_Notify(t *testing.T) {
	payloads := make(chan map[string]string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/services/T000/B000/XXXX", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var got map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		payloads <- got
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	err := newSlack().Notify(context.Background(), secrets.New(server.URL+"/services/T000/B000/XXXX"), "take your umbrella")
	require.NoError(t, err)

	got := <-payloads
	assert.Equal(t, "take your umbrella", got["text"])
	assert.Equal(t, "weather-flows", got["username"])
	_, hasIcon := got["icon_emoji"]
	assert.False(t, hasIcon)
}

func TestSlack_NotifyClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer server.Close()

	err := newSlack().Notify(context.Background(), secrets.New(server.URL), "hello")

	var notifyErr *notify.NotifyError
	require.True(t, errors.As(err, &notifyErr))
	assert.Equal(t, http.StatusForbidden, notifyErr.StatusCode)
	assert.Equal(t, "invalid_token", notifyErr.Reason)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSlack_NotifyServerErrorUsesHTTPLayerRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	require.NoError(t, newSlack().Notify(context.Background(), secrets.New(server.URL), "hello"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSlack_NotifyInvalidWebhook(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://example.com/hook", "/relative"} {
		err := newSlack().Notify(context.Background(), secrets.New(raw), "hello")

		var notifyErr *notify.NotifyError
		assert.True(t, errors.As(err, &notifyErr), raw)
	}
}

func TestSlack_NotifyTransportErrorRedactsURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	hook := server.URL + "/services/T000/B000/SECRETPATH"
	server.Close()

	cfg := resilience.DefaultClientConfig("test-slack-down")
	cfg.MaxRetries = 0
	n := notify.NewSlack(notify.SlackConfig{HTTPClient: resilience.NewClient(cfg), Logger: zerolog.Nop()})

	err := n.Notify(context.Background(), secrets.New(hook), "hello")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRETPATH")
}

func TestValidateResponse(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"plain ok", http.StatusOK, "ok", ""},
		{"empty body", http.StatusOK, "", ""},
		{"json ok", http.StatusOK, `{"ok":true}`, ""},
		{"json soft failure", http.StatusOK, `{"ok":false,"error":"channel_not_found"}`, "channel_not_found"},
		{"json soft failure without reason", http.StatusOK, `{"ok":false}`, "unknown error"},
		{"plain soft failure", http.StatusOK, "no_text", "no_text"},
		{"unrecognised text", http.StatusOK, "accepted", ""},
		{"not found", http.StatusNotFound, "no_service", "status 404: no_service"},
		{"server error", http.StatusInternalServerError, "", "status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := notify.ValidateResponse(tt.status, []byte(tt.body))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNotifyError(t *testing.T) {
	cause := errors.New("connection reset")
	err := &notify.NotifyError{Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "webhook delivery failed: connection reset", err.Error())
	assert.Equal(t, "webhook delivery failed: status 502", (&notify.NotifyError{StatusCode: 502}).Error())
}

func TestLog_Notify(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewLog(zerolog.New(&buf))

	require.NoError(t, n.Notify(context.Background(), secrets.New("https://hooks.slack.com/x"), "snow incoming"))

	assert.Contains(t, buf.String(), "snow incoming")
	assert.NotContains(t, buf.String(), "hooks.slack.com")
}
