// Package middleware holds the HTTP middleware chain.
package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/nodpt/llmserve/internal/metrics"
)

// Logging logs every request and feeds its outcome into the metrics
// collector.
type Logging struct {
	logger  *log.Logger
	metrics *metrics.Metrics
}

// NewLogging creates the logging middleware. metrics may be nil when no
// collector is wired.
func NewLogging(logger *log.Logger, m *metrics.Metrics) *Logging {
	return &Logging{logger: logger, metrics: m}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.written {
		rw.statusCode = statusCode
		rw.written = true
		rw.ResponseWriter.WriteHeader(statusCode)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Wrap returns next with request logging and metrics recording applied.
func (l *Logging) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		l.logger.Printf(
			"%s %s %d %s %s",
			r.Method,
			r.URL.Path,
			wrapped.statusCode,
			duration,
			r.RemoteAddr,
		)

		if l.metrics != nil {
			l.metrics.Record(duration.Milliseconds(), wrapped.statusCode < http.StatusInternalServerError)
		}
	})
}
