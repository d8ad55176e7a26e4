package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// Login attempts allowed per client IP and window.
const (
	LoginAttempts = 5
	LoginWindow   = 15 * time.Minute
)

// LoginRateLimit limits login attempts per client IP.
func LoginRateLimit() func(http.Handler) http.Handler {
	return RateLimit(LoginAttempts, LoginWindow, "Too many login attempts from this IP. Please try again later.")
}

// RateLimit allows limit requests per window and client IP, answering 429
// with Retry-After and msg beyond that.
func RateLimit(limit int, window time.Duration, msg string) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			writeError(w, http.StatusTooManyRequests, msg)
		}),
	)
}
