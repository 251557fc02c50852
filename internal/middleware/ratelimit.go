package middleware

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/serenify-auth/internal/apperr"
	"github.com/AnshRaj112/serenify-auth/internal/ratelimit"
	"github.com/AnshRaj112/serenify-auth/internal/response"
)

// RateLimit counts every request under policy, keyed by client IP. Allowed
// responses carry the X-RateLimit-* headers; rejected ones also carry
// Retry-After. Limiter errors fail open.
func RateLimit(limiter ratelimit.Limiter, policy ratelimit.Policy, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := limiter.Allow(r.Context(), policy, ratelimit.IPKey(ClientIPFrom(r.Context())))
			if err != nil {
				logger.Warn().Err(err).Str("policy", policy.Name).Msg("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			SetRateLimitHeaders(w, d)
			if !d.Allowed {
				e := apperr.RateLimited(policy.Message, d.RetryAfterSeconds())
				response.RetryAfter(w, e.RetryAfter)
				response.Fail(w, e.Status(), e.Message, e.Errors...)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func SetRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}
