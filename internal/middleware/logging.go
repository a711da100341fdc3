// Package middleware holds the HTTP middleware shared by the admin API and webhook ingress
package middleware

import (
	"net/http"
	"time"

	"trigger-engine/internal/common/logging"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Logging logs every request with method, path, status and duration
func Logging(logger logging.Logger) func(http.Handler) http.Handler {
	logger = logging.OrGlobal(logger).WithFields(logging.Field{"component", "http"})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			fields := []logging.Field{
				{"method", r.Method},
				{"path", r.URL.Path},
				{"status", wrapped.statusCode},
				{"duration_ms", time.Since(start).Milliseconds()},
				{"remote_addr", r.RemoteAddr},
			}
			if r.URL.RawQuery != "" {
				fields = append(fields, logging.Field{"query", r.URL.RawQuery})
			}
			if ua := r.Header.Get("User-Agent"); ua != "" {
				fields = append(fields, logging.Field{"user_agent", ua})
			}
			if subject := SubjectFromContext(r.Context()); subject != "" {
				fields = append(fields, logging.Field{"subject", subject})
			}

			l := logger.WithContext(r.Context())
			switch {
			case wrapped.statusCode >= 500:
				l.Error("HTTP request completed", nil, fields...)
			case wrapped.statusCode >= 400:
				l.Warn("HTTP request completed", fields...)
			default:
				l.Info("HTTP request completed", fields...)
			}
		})
	}
}
