package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherflows/weatherflows/internal/auth"
	"github.com/weatherflows/weatherflows/internal/secrets"
)

const testKey = "test-secret-key-for-testing-only-0123456789"

func newService(t *testing.T, mutate func(*auth.JWTConfig)) *auth.JWTService {
	t.Helper()
	cfg := auth.JWTConfig{
		SigningKey: secrets.New(testKey),
		Issuer:     "weatherflows",
		Audience:   "weatherflows-operators",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := auth.NewJWTService(cfg)
	require.NoError(t, err)
	return svc
}

func TestJWTService_IssueAndValidate(t *testing.T) {
	svc := newService(t, nil)

	token, expiresAt, err := svc.IssueToken("oncall@example.com", 15*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "oncall@example.com", claims.Subject)
	assert.Equal(t, "weatherflows", claims.Issuer)
	assert.True(t, claims.HasScope(auth.ScopeTrigger))
	assert.NotEmpty(t, claims.ID)
}

func TestJWTService_DefaultTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := newService(t, func(c *auth.JWTConfig) { c.Now = func() time.Time { return now } })

	_, expiresAt, err := svc.IssueToken("ops", 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(auth.DefaultTokenTTL), expiresAt)
}

func TestJWTService_CustomScopes(t *testing.T) {
	svc := newService(t, nil)

	token, _, err := svc.IssueToken("ops", time.Minute, "workflows:read")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, claims.HasScope("workflows:read"))
	assert.False(t, claims.HasScope(auth.ScopeTrigger))
}

func TestJWTService_EmptySubject(t *testing.T) {
	svc := newService(t, nil)

	_, _, err := svc.IssueToken("", time.Minute)
	assert.ErrorIs(t, err, auth.ErrEmptySubject)
}

func TestNewJWTService_ShortKey(t *testing.T) {
	_, err := auth.NewJWTService(auth.JWTConfig{SigningKey: secrets.New("short")})
	assert.ErrorIs(t, err, auth.ErrSigningKeyLength)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := newService(t, nil)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestJWTService_Expired(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	issuer := newService(t, func(c *auth.JWTConfig) { c.Now = func() time.Time { return issued } })

	token, _, err := issuer.IssueToken("ops", time.Hour)
	require.NoError(t, err)

	_, err = newService(t, nil).ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestJWTService_WrongSigningKey(t *testing.T) {
	token, _, err := newService(t, nil).IssueToken("ops", time.Minute)
	require.NoError(t, err)

	other := newService(t, func(c *auth.JWTConfig) { c.SigningKey = secrets.New(strings.Repeat("k", 40)) })
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTService_WrongIssuer(t *testing.T) {
	token, _, err := newService(t, nil).IssueToken("ops", time.Minute)
	require.NoError(t, err)

	other := newService(t, func(c *auth.JWTConfig) { c.Issuer = "someone-else" })
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTService_WrongAudience(t *testing.T) {
	token, _, err := newService(t, nil).IssueToken("ops", time.Minute)
	require.NoError(t, err)

	other := newService(t, func(c *auth.JWTConfig) { c.Audience = "dashboards" })
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestJWTService_RejectsNoneAlgorithm(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Issuer:    "weatherflows",
		Subject:   "ops",
		Audience:  jwt.ClaimStrings{"weatherflows-operators"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newService(t, nil).ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
