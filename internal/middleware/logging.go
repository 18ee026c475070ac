package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tangled.org/agora.social/agora/internal/metrics"
	"tangled.org/agora.social/agora/internal/tracing"

	"github.com/rs/zerolog"
)

type clientIPKey struct{}

// ClientIPMiddleware resolves the caller's address once per request. The
// X-Forwarded-For and X-Real-IP headers are honoured only when trustProxy is
// set; otherwise any client could pick its own rate-limit key.
func ClientIPMiddleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trustProxy)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip)))
		})
	}
}

// GetClientIP returns the address resolved by ClientIPMiddleware, or
// RemoteAddr without its port when the middleware did not run.
func GetClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return resolveClientIP(r, false)
}

// resolveClientIP prefers the first X-Forwarded-For hop, then X-Real-IP,
// when trustProxy is set.
func resolveClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// redactedHeaders are never written to debug logs
var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
}

// eventFor picks the log level for a response status
func eventFor(logger zerolog.Logger, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.Error()
	case status >= 400:
		return logger.Warn()
	default:
		return logger.Info()
	}
}

// LoggingMiddleware writes one structured access log line per request and
// records the HTTP metrics.
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)
			elapsed := time.Since(start)

			event := eventFor(logger, rw.statusCode).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.statusCode).
				Dur("duration", elapsed).
				Str("client_ip", GetClientIP(r)).
				Int64("bytes_written", rw.bytesWritten)

			if r.URL.RawQuery != "" {
				event.Str("query", r.URL.RawQuery)
			}
			if ua := r.UserAgent(); ua != "" {
				event.Str("user_agent", ua)
			}
			if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
				event.Str("request_id", reqID)
			}
			if traceID := tracing.TraceID(r.Context()); traceID != "" {
				event.Str("trace_id", traceID)
			}
			if principal, ok := PrincipalFromContext(r.Context()); ok {
				event.Str("principal", principal)
			}
			if logger.GetLevel() == zerolog.DebugLevel {
				headers := make(map[string]string, len(r.Header))
				for name, values := range r.Header {
					if !redactedHeaders[name] {
						headers[name] = strings.Join(values, ", ")
					}
				}
				event.Interface("headers", headers)
			}

			event.Msgf("HTTP request: %s %s %d", r.Method, r.URL.Path, rw.statusCode)

			path := metrics.NormalizePath(r.URL.Path)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())
		})
	}
}

// responseWriter records the status code and body size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
