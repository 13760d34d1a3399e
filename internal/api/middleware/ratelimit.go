package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/weatherflows/weatherflows/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// DefaultTriggerRateLimit bounds manual runs, which each call the weather
// provider and possibly the webhook.
var DefaultTriggerRateLimit = RateLimitConfig{
	RequestLimit: 10,
	WindowLength: time.Minute,
}

// ReadRateLimit applies to the listing and lookup endpoints.
var ReadRateLimit = RateLimitConfig{
	RequestLimit: 100,
	WindowLength: time.Minute,
}

// RateLimitByIP limits by client IP. Place it after chi's RealIP middleware
// so X-Forwarded-For is honoured.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded(cfg)),
	)
}

// RateLimitByOperator limits by the authenticated operator, falling back to
// the client IP. Place it after RequireScope.
func RateLimitByOperator(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByOperatorOrIP),
		httprate.WithLimitHandler(limitExceeded(cfg)),
	)
}

func keyByOperatorOrIP(r *http.Request) (string, error) {
	if operator := GetOperator(r.Context()); operator != "" {
		return "operator:" + operator, nil
	}
	return httprate.KeyByRealIP(r)
}

// limitExceeded writes a 429 problem. httprate does not expose the exact
// reset time so Retry-After is the full window.
func limitExceeded(cfg RateLimitConfig) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(cfg.WindowLength.Round(time.Second).Seconds()))
	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path
		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}
