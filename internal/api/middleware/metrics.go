package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/roadwatch/internal/metrics"
)

// metricsWriter wraps http.ResponseWriter to capture status code for metrics.
type metricsWriter struct {
	http.ResponseWriter
	status int
}

func (w *metricsWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Prometheus returns a middleware that records HTTP request metrics on
// the given collector.
func Prometheus(mc *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			mc.HTTPRequestsInFlight.Inc()
			defer mc.HTTPRequestsInFlight.Dec()

			wrapped := &metricsWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			path := getRoutePattern(r)

			mc.HTTPRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(wrapped.status),
			).Inc()

			mc.HTTPRequestDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(duration)
		})
	}
}

// getRoutePattern extracts the route pattern from chi context.
// Falls back to the request path if no pattern is available.
func getRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}
