package auth

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rhuss/authgate/pkg/observability"
)

// MiddlewareConfig configures the net/http adapter of a chain.
type MiddlewareConfig struct {
	// Limiter is applied after the chain lets a request through. Optional.
	Limiter RateLimiter

	// BypassEndpoints are paths served without running the chain.
	BypassEndpoints []string

	// TrustForwardedProto makes X-Forwarded-Proto the request scheme, for
	// deployments behind a TLS-terminating proxy.
	TrustForwardedProto bool

	// Logger receives adapter diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// Middleware creates HTTP middleware that runs every request through chain.
// The wrapped handler is the chain's terminal handler; its response is
// buffered so outbound hooks can transform it before it reaches the client.
//
// Chain errors become 500 responses. Cancelled requests get no response.
func Middleware(chain *Chain, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(cfg.BypassEndpoints))
	for _, ep := range cfg.BypassEndpoints {
		bypass[ep] = true
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		terminal := func(ctx context.Context, req *Request) (*Response, error) {
			if cfg.Limiter != nil {
				id := IdentityFromContext(ctx)
				if err := cfg.Limiter.Allow(ctx, id); err != nil {
					tier := "default"
					if id != nil && id.ServiceTier != "" {
						tier = id.ServiceTier
					}
					logger.Warn("rate limit exceeded", "subject", id.Name(), "tier", tier)
					observability.RateLimitRejectedTotal.WithLabelValues(tier).Inc()
					return ErrorResponse(http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded"), nil
				}
			}

			bw := newBufferedWriter()
			next.ServeHTTP(bw, req.Request.WithContext(ctx))
			return bw.response(req), nil
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithCaller(r.Context())
			r = r.WithContext(ctx)
			if cfg.TrustForwardedProto {
				r = withForwardedProto(r)
			}

			resp, err := chain.Process(ctx, NewRequest(r), terminal)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					logger.Debug("request cancelled in auth chain", "path", r.URL.Path, "error", err)
					return
				}
				logger.Error("auth chain failed", "path", r.URL.Path, "remote_addr", r.RemoteAddr, "error", err)
				resp = ErrorResponse(http.StatusInternalServerError, "server_error", "internal authentication error")
			}
			if resp == nil {
				logger.Error("auth chain produced no response", "path", r.URL.Path)
				resp = ErrorResponse(http.StatusInternalServerError, "server_error", "internal authentication error")
			}

			if err := resp.Write(w); err != nil {
				logger.Debug("writing response failed", "path", r.URL.Path, "error", err)
			}
		})
	}
}

// withForwardedProto returns r with URL.Scheme set from the first
// X-Forwarded-Proto value, if any.
func withForwardedProto(r *http.Request) *http.Request {
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		return r
	}
	if i := strings.IndexByte(proto, ','); i >= 0 {
		proto = proto[:i]
	}
	r2 := r.Clone(r.Context())
	r2.URL.Scheme = strings.ToLower(strings.TrimSpace(proto))
	return r2
}

// bufferedWriter captures a handler's response in memory.
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header)}
}

func (w *bufferedWriter) Header() http.Header { return w.header }

func (w *bufferedWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(b)
}

func (w *bufferedWriter) response(req *Request) *Response {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{
		StatusCode: status,
		Header:     w.header,
		Body:       w.body.Bytes(),
		Request:    req,
	}
}

// RequireAuthenticated wraps h so that callers nobody has authenticated get
// a 401. Install it behind Middleware; links then add their challenges to
// the 401 on the way out.
func RequireAuthenticated(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAuthenticated(CurrentPrincipal(r.Context())) {
			slog.Debug("rejecting anonymous caller", "path", r.URL.Path, "error", ErrUnauthenticated)
			if err := Unauthorized(ErrUnauthenticated.Error()).Write(w); err != nil {
				slog.Debug("writing response failed", "path", r.URL.Path, "error", err)
			}
			return
		}
		h.ServeHTTP(w, r)
	})
}
