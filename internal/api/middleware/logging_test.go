package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherflows/weatherflows/internal/api/middleware"
)

func logEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestLogger_LogsRequestWithRoute(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(zerolog.New(&buf)))
	r.Get("/v1/runs/{runId}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("response body"))
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/abc", http.NoBody)
	req.Header.Set("User-Agent", "test-agent")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entry := logEntry(t, &buf)
	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/v1/runs/abc", entry["path"])
	assert.Equal(t, "/v1/runs/{runId}", entry["route"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, float64(13), entry["bytes"])
	assert.Equal(t, "test-agent", entry["user_agent"])
	assert.NotEmpty(t, entry["request_id"])
	assert.NotContains(t, entry, "operator")
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		path   string
		status int
		level  string
	}{
		{"/v1/workflows", http.StatusOK, "info"},
		{"/v1/ops/health", http.StatusOK, "debug"},
		{"/v1/workflows/x/runs", http.StatusNotFound, "warn"},
		{"/v1/workflows/snow/runs", http.StatusBadGateway, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var buf bytes.Buffer
			handler := middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			entry := logEntry(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, tt.path, entry["route"])
		})
	}
}

func TestLogger_IncludesOperator(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.Logger(zerolog.New(&buf))(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/workflows/snow/runs", http.NoBody)
	req = req.WithContext(middleware.WithOperator(req.Context(), "ops@example.com"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "ops@example.com", logEntry(t, &buf)["operator"])
}
