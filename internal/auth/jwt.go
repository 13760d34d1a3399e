// Package auth issues and validates the operator tokens that guard the manual
// trigger endpoint.
//
// Tokens are HS256 JWTs carrying the operator as subject and a space-separated
// scope list. There are no refresh tokens: operators mint a short-lived token
// with `flow token` when they need one.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/weatherflows/weatherflows/internal/secrets"
)

// DefaultTokenTTL is used when IssueToken is called with a zero TTL.
const DefaultTokenTTL = time.Hour

// ScopeTrigger allows starting workflow runs.
const ScopeTrigger = "workflows:trigger"

// MinSigningKeyLength is the shortest accepted HMAC key.
const MinSigningKeyLength = 32

// Predefined JWT errors.
var (
	ErrInvalidToken     = errors.New("invalid operator token")
	ErrTokenExpired     = errors.New("operator token has expired")
	ErrMissingScope     = errors.New("operator token lacks the required scope")
	ErrSigningKeyLength = fmt.Errorf("signing key must be at least %d bytes", MinSigningKeyLength)
	ErrEmptySubject     = errors.New("token subject is required")
)

// Claims represents the claims in an operator token.
type Claims struct {
	jwt.RegisteredClaims

	// Scope is a space-separated list of granted scopes.
	Scope string `json:"scope"`
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(strings.Fields(c.Scope), scope)
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the HMAC key used to sign tokens.
	SigningKey secrets.Secret

	// Issuer is the issuer claim for tokens (e.g., "weatherflows").
	Issuer string

	// Audience is the audience claim for tokens (e.g., "weatherflows-operators").
	Audience string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// JWTService handles operator token creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if len(cfg.SigningKey.Reveal()) < MinSigningKeyLength {
		return nil, ErrSigningKeyLength
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &JWTService{
		signingKey: []byte(cfg.SigningKey.Reveal()),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		now:        cfg.Now,
	}, nil
}

// IssueToken creates a token for subject with the given scopes.
func (s *JWTService) IssueToken(subject string, ttl time.Duration, scopes ...string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, ErrEmptySubject
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeTrigger}
	}

	now := s.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		Scope: strings.Join(scopes, " "),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing operator token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a token and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// generateTokenID generates a unique token ID.
func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
