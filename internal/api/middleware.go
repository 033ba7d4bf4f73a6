package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/logutil"
)

// LoggingMiddleware stores a request logger carrying the trace id in the
// context and logs one line per request.
func LoggingMiddleware(base *zap.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = zap.L()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			traceID := r.Header.Get("X-Request-ID")
			if traceID == "" {
				traceID = uuid.NewString()
			}
			ww.Header().Set("X-Request-ID", traceID)

			logger := base.With(
				zap.String("trace_id", traceID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			r = r.WithContext(logutil.WithLogger(r.Context(), logger))

			next.ServeHTTP(ww, r)

			logger.Info("HTTP request complete",
				zap.Int("status", ww.status),
				zap.Duration("duration_ms", time.Since(start)),
			)
		})
	}
}

// statusWriter captures the HTTP status for logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack is needed by the websocket upgrader.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
