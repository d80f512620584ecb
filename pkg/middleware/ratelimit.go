package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/asque/asque/pkg/contextkeys"
	"github.com/asque/asque/pkg/httputil"
	"github.com/asque/asque/pkg/observability"
	"github.com/asque/asque/pkg/ratelimit"
)

// Rate limit response headers.
const (
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// RateLimit throttles requests under the given class, keyed by the
// authenticated user id. Admitted responses carry the remaining-request
// header; rejections answer 429 with remaining=0 and the reset time.
// Run it after Auth.
func RateLimit(limiter ratelimit.Limiter, metrics *observability.Metrics, class ratelimit.Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !CheckRate(r.Context(), w, limiter, metrics, class) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CheckRate runs one rate limit check and writes the limit headers. It
// returns false after writing the 429 response. Handlers that pick the
// class at runtime (quote creation selects by tier) call this directly.
func CheckRate(ctx context.Context, w http.ResponseWriter, limiter ratelimit.Limiter, metrics *observability.Metrics, class ratelimit.Class) bool {
	identifier := contextkeys.GetUserID(ctx)
	if identifier == "" {
		// Unauthenticated callers share one bucket per class.
		identifier = "anonymous"
	}

	result, err := ratelimit.CheckLimit(ctx, limiter, identifier, class)
	if err != nil {
		// A broken limiter backend must not take the API down.
		observability.GetLogger(ctx).WithError(err).Error("rate limiter check failed")
		return true
	}

	w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
	if !result.Allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues(string(class)).Inc()
		w.Header().Set(HeaderRateLimitReset, result.ResetAt.UTC().Format(time.RFC3339))
		httputil.WriteErrorBody(w, http.StatusTooManyRequests,
			"too many requests, please try again later", nil,
			contextkeys.GetRequestID(ctx))
		return false
	}
	return true
}
