package middleware

import (
	"net/http"

	"github.com/wolfman30/wellness-crm/internal/apperr"
	"github.com/wolfman30/wellness-crm/internal/observability/metrics"
	"github.com/wolfman30/wellness-crm/internal/ratelimit"
)

// RateLimitPolicy names a limiter and the message callers see when over it.
type RateLimitPolicy struct {
	Name    string
	Limiter ratelimit.Limiter
	Message string
	// Key derives the limiter key; defaults to the client IP.
	Key func(r *http.Request) string
}

// RateLimit rejects requests over the policy with 429 and {"error": Message}.
func RateLimit(policy RateLimitPolicy, m *metrics.CRMMetrics) func(http.Handler) http.Handler {
	key := policy.Key
	if key == nil {
		key = ClientIP
	}
	message := policy.Message
	if message == "" {
		message = "Too many requests. Please wait a moment before trying again."
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy.Limiter != nil && !policy.Limiter.Allow(r.Context(), key(r)) {
				m.ObserveRateLimited(policy.Name)
				apperr.Write(w, apperr.RateLimited(message), "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
