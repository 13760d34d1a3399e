package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/weatherflows/weatherflows/internal/api/models"
	"github.com/weatherflows/weatherflows/internal/auth"
)

// TokenValidator checks an operator bearer token.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// operatorKey is the context key for the authenticated operator subject.
type operatorKey struct{}

// RequireScope authenticates the bearer token with validator and rejects
// tokens that do not grant scope. The token subject is stored in the
// context for GetOperator.
func RequireScope(validator TokenValidator, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, detail := bearerToken(r)
			if detail != "" {
				writeUnauthorized(w, r, detail)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "operator token has expired")
				case errors.Is(err, auth.ErrInvalidToken):
					writeUnauthorized(w, r, "invalid operator token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			if !claims.HasScope(scope) {
				problem := models.NewForbidden(GetRequestID(r.Context()), "token lacks the "+scope+" scope")
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}

			ctx := WithOperator(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header. A non-empty
// detail explains why the header was rejected.
func bearerToken(r *http.Request) (token, detail string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}

	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "invalid authorization header format"
	}

	token = strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// writeUnauthorized is here rather than in response to avoid an import cycle.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	w.Header().Set("WWW-Authenticate", `Bearer realm="weatherflows"`)
	problem.Write(w)
}

// WithOperator returns a copy of ctx carrying the operator subject.
func WithOperator(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, operatorKey{}, subject)
}

// GetOperator returns the authenticated operator subject, or an empty
// string if the request was not authenticated.
func GetOperator(ctx context.Context) string {
	if subject, ok := ctx.Value(operatorKey{}).(string); ok {
		return subject
	}
	return ""
}
