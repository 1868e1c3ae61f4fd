package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/authgate/pkg/auth"
)

// Logging returns middleware that emits one structured log entry per
// request with method, path, status, duration, request ID and the
// authenticated subject, if any.
//
// The caller slot is installed here so that the identity recorded by the
// auth chain further in is still visible when the entry is written.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := auth.WithCaller(r.Context())

			lw := &loggingWriter{ResponseWriter: w}
			next.ServeHTTP(lw, r.WithContext(ctx))

			status := lw.status
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
			}
			if p := auth.CurrentPrincipal(ctx); p != nil && p.IsAuthenticated() {
				attrs = append(attrs,
					slog.String("subject", p.Name()),
					slog.String("auth_scheme", p.AuthenticationType()),
				)
			}

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(ctx, level, "request completed", attrs...)
		})
	}
}

// loggingWriter captures the status code written by the handler.
type loggingWriter struct {
	http.ResponseWriter
	status int
}

func (w *loggingWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *loggingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter.
func (w *loggingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
