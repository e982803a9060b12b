package middleware

import (
	"net/http"
	"time"
)

type accessLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type logData struct {
	responseStatus int
	responseSize   int
}

type logWriter struct {
	http.ResponseWriter
	data logData
}

func (w *logWriter) Write(p []byte) (int, error) {
	size, err := w.ResponseWriter.Write(p)
	w.data.responseSize += size
	return size, err
}

func (w *logWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.data.responseStatus = statusCode
}

// LoggerMiddleware writes one access log line per request.
// Server errors are logged at error level, client errors at warn.
func LoggerMiddleware(l accessLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lw := &logWriter{
				ResponseWriter: w,
				data:           logData{responseStatus: http.StatusOK, responseSize: 0},
			}

			next.ServeHTTP(lw, r)

			args := []any{
				"method", r.Method,
				"uri", r.RequestURI,
				"duration", time.Since(start),
				"status", lw.data.responseStatus,
				"size", lw.data.responseSize,
			}
			if key := r.Header.Get(IdempotencyKeyHeader); key != "" {
				args = append(args, "idempotency_key", key, "replayed", lw.Header().Get(ReplayedHeader) == "true")
			}

			switch {
			case lw.data.responseStatus >= http.StatusInternalServerError:
				l.Error("got HTTP request", args...)
			case lw.data.responseStatus >= http.StatusBadRequest:
				l.Warn("got HTTP request", args...)
			default:
				l.Info("got HTTP request", args...)
			}
		})
	}
}
