package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherflows/weatherflows/internal/api/middleware"
	"github.com/weatherflows/weatherflows/internal/auth"
	"github.com/weatherflows/weatherflows/internal/secrets"
)

func newTokenService(t *testing.T, now func() time.Time) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(auth.JWTConfig{
		SigningKey: secrets.New("middleware-test-signing-key-0123456789"),
		Issuer:     "weatherflows",
		Audience:   "weatherflows-operators",
		Now:        now,
	})
	require.NoError(t, err)
	return svc
}

func protected(t *testing.T, svc middleware.TokenValidator) (http.Handler, *string) {
	t.Helper()
	var operator string
	h := middleware.RequireScope(svc, auth.ScopeTrigger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator = middleware.GetOperator(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return h, &operator
}

func TestRequireScope_ValidToken(t *testing.T) {
	svc := newTokenService(t, nil)
	token, _, err := svc.IssueToken("ops@example.com", time.Hour)
	require.NoError(t, err)
	handler, operator := protected(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/workflows/snow/runs", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops@example.com", *operator)
}

func TestRequireScope_CaseInsensitiveScheme(t *testing.T) {
	svc := newTokenService(t, nil)
	token, _, err := svc.IssueToken("ops@example.com", time.Hour)
	require.NoError(t, err)
	handler, _ := protected(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireScope_Rejections(t *testing.T) {
	issuedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	past := newTokenService(t, func() time.Time { return issuedAt })
	expired, _, err := past.IssueToken("ops@example.com", time.Minute)
	require.NoError(t, err)

	svc := newTokenService(t, nil)
	readOnly, _, err := svc.IssueToken("ops@example.com", time.Hour, "workflows:read")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		detail string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing authorization header"},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "invalid authorization header format"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "missing bearer token"},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized, "invalid operator token"},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "operator token has expired"},
		{"wrong scope", "Bearer " + readOnly, http.StatusForbidden, "workflows:trigger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, operator := protected(t, svc)
			req := httptest.NewRequest(http.MethodPost, "/v1/workflows/snow/runs", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.detail)
			assert.Empty(t, *operator)
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
}

func TestGetOperator_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	assert.Empty(t, middleware.GetOperator(req.Context()))
}
