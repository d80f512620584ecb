package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/asque/asque/pkg/contextkeys"
	"github.com/asque/asque/pkg/observability"
)

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging emits one structured record per request and feeds the HTTP
// metrics. The request-scoped logger carries the correlation id and is
// stored on the context for handlers.
func Logging(logger *observability.Logger, metrics *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := contextkeys.GetRequestID(r.Context())

			reqLogger := logger.WithFields(map[string]interface{}{
				"request_id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			ctx := observability.WithLogger(r.Context(), reqLogger)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			duration := time.Since(start)
			routePath := routeTemplate(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, routePath, strconv.Itoa(recorder.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, routePath).Observe(duration.Seconds())

			reqLogger.WithFields(map[string]interface{}{
				"status":      recorder.status,
				"duration_ms": duration.Milliseconds(),
			}).Info("request completed")
		})
	}
}

// routeTemplate returns the mux route pattern so metrics cardinality
// stays bounded regardless of path parameters.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
