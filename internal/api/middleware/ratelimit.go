package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/zenithpw/zenithpw/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// PerMinute returns a limit of n requests per minute.
func PerMinute(n int) RateLimitConfig {
	return RateLimitConfig{RequestLimit: n, WindowLength: time.Minute}
}

// RateLimitByIP creates a rate limiter middleware using client IP address.
// Uses X-Forwarded-For header if present (extracted by chi's RealIP middleware).
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceededHandler(cfg.WindowLength)),
	)
}

// RateLimitByAPIKey creates a rate limiter keyed by the accepted API key.
// It must run after APIKey; requests without a key fall back to the client IP.
func RateLimitByAPIKey(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(keyByAPIKeyOrIP),
		httprate.WithLimitHandler(limitExceededHandler(cfg.WindowLength)),
	)
}

func keyByAPIKeyOrIP(r *http.Request) (string, error) {
	if key := GetAPIKey(r.Context()); key != "" {
		return "key:" + key, nil
	}
	return httprate.KeyByRealIP(r)
}

// limitExceededHandler writes an RFC7807 Problem response when rate limit is exceeded.
// httprate does not expose the exact reset time, so Retry-After is the window length.
func limitExceededHandler(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(max(1, int(window.Seconds())))
	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
		w.Header().Set("Retry-After", retryAfter)
		writeProblem(w, r, problem)
	}
}
