// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// responseWriter wraps http.ResponseWriter to capture status and size.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// RequestLogger tags each request with a short request ID, echoed in
// the X-Request-ID header, and logs errored requests. In verbose mode
// every request is logged. Health probe polling is logged only in
// verbose mode regardless of status.
func RequestLogger(verbose bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rid := uuid.New().String()[:8]
			w.Header().Set("X-Request-ID", rid)

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			if !verbose && (wrapped.status < 400 || strings.HasPrefix(r.URL.Path, "/health")) {
				return
			}
			log.Printf("http rid=%s %s %s status=%d bytes=%d dur=%v",
				rid, r.Method, r.URL.Path, wrapped.status, wrapped.size, time.Since(start))
		})
	}
}
