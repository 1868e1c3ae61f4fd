package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rhuss/authgate/pkg/debug"
	"github.com/rhuss/authgate/pkg/observability"
)

// Link is one scheme-specific step of the authentication chain.
//
// Implementations are shared by all requests and must be safe for concurrent
// use. Embed Base to get the default hooks and helpers.
type Link interface {
	// AuthScheme returns the fixed identifier of the scheme.
	AuthScheme() string

	// IncludeByDefault reports whether the chain applies this link to
	// routes that do not name it explicitly.
	IncludeByDefault() bool

	// ForceSSL reports whether the link only authenticates over HTTPS.
	ForceSSL() bool

	// BypassAntiForgeryToken reports whether callers authenticated by this
	// scheme are exempt from anti-forgery checks.
	BypassAntiForgeryToken() bool

	// OnInboundRequest inspects the request before the rest of the chain.
	// A nil response lets the request proceed; a non-nil response ends
	// processing and is returned to the client as is.
	OnInboundRequest(ctx context.Context, req *Request) (*Response, error)

	// OnOutboundResponse may transform the response on its way back.
	OnOutboundResponse(ctx context.Context, resp *Response) (*Response, error)
}

// HandlerFunc is the continuation of a chain: the remaining links plus the
// terminal handler.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// Sentinel errors.
var (
	ErrEmptyScheme     = errors.New("auth scheme must not be empty")
	ErrDuplicateScheme = errors.New("duplicate auth scheme in chain")
	ErrNoCallerScope   = errors.New("context carries no caller slot")
	ErrNilRequest      = errors.New("nil request")
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Process runs link for one request. The inbound hook runs first; if it
// answers, that response is returned and next is never called. Otherwise
// next produces the response, which is passed through the outbound hook.
//
// A done ctx fails the call with the context error before the inbound hook
// and before the outbound hook; no response is returned in that case.
func Process(ctx context.Context, link Link, req *Request, next HandlerFunc) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := link.OnInboundRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if resp != nil {
		// Links further out inspect the original request through the response.
		if resp.Request == nil {
			resp.Request = req
		}
		return resp, nil
	}

	raw, err := next(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return link.OnOutboundResponse(ctx, raw)
}

// LinkConfig holds the construction-time settings of a link.
type LinkConfig struct {
	// AuthScheme identifies the link; required and unique within a chain.
	AuthScheme string

	// IncludeByDefault makes the link apply without explicit opt-in.
	IncludeByDefault bool

	// ForceSSL restricts authentication to HTTPS requests.
	ForceSSL bool
}

// Base implements the default behavior of a Link. Concrete schemes embed it
// and override the hooks they need.
type Base struct {
	config LinkConfig
	logger *slog.Logger
}

// NewBase validates cfg and returns a Base. A nil logger means slog.Default
// at the time of use.
func NewBase(cfg LinkConfig, logger *slog.Logger) (Base, error) {
	if strings.TrimSpace(cfg.AuthScheme) == "" {
		return Base{}, ErrEmptyScheme
	}
	return Base{config: cfg, logger: logger}, nil
}

// AuthScheme returns the scheme identifier.
func (b Base) AuthScheme() string { return b.config.AuthScheme }

// IncludeByDefault reports whether the link applies without opt-in.
func (b Base) IncludeByDefault() bool { return b.config.IncludeByDefault }

// ForceSSL reports whether the link requires HTTPS.
func (b Base) ForceSSL() bool { return b.config.ForceSSL }

// BypassAntiForgeryToken returns false.
func (b Base) BypassAntiForgeryToken() bool { return false }

// OnInboundRequest returns nil: no opinion.
func (b Base) OnInboundRequest(context.Context, *Request) (*Response, error) {
	return nil, nil
}

// OnOutboundResponse returns resp unchanged.
func (b Base) OnOutboundResponse(_ context.Context, resp *Response) (*Response, error) {
	return resp, nil
}

// Logger returns the link's logger.
func (b Base) Logger() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.Default()
}

// NeedsAuthentication reports whether the link should authenticate req: the
// SSL policy must be satisfied and the current caller must be absent or
// unauthenticated.
//
// When the link requires HTTPS and req is plain HTTP the link declines to
// act, so credentials are never requested over an insecure channel.
func (b Base) NeedsAuthentication(ctx context.Context, req *Request) bool {
	if b.sslSatisfied(req) {
		return !isAuthenticated(CurrentPrincipal(ctx))
	}

	observability.SSLDeclinedTotal.WithLabelValues(b.config.AuthScheme).Inc()
	if logger := b.Logger(); logger.Enabled(ctx, debug.LevelTrace) {
		logger.Log(ctx, debug.LevelTrace, "SSL policy declined authentication",
			"scheme", b.config.AuthScheme,
			"force_ssl", b.config.ForceSSL,
			"request_scheme", req.Scheme(),
		)
	}
	return false
}

func (b Base) sslSatisfied(req *Request) bool {
	return !b.config.ForceSSL || strings.EqualFold(req.Scheme(), "https")
}

const (
	requestedWithHeader = "X-Requested-With"
	xmlHTTPRequestValue = "XmlHttpRequest"
)

// IsXMLHTTPRequest reports whether req was issued by browser script: its
// first X-Requested-With value equals XmlHttpRequest, ignoring case.
func IsXMLHTTPRequest(req *Request) bool {
	if req == nil || req.Request == nil {
		return false
	}
	values := req.Header.Values(requestedWithHeader)
	if len(values) == 0 {
		return false
	}
	return strings.EqualFold(values[0], xmlHTTPRequestValue)
}

// SetCurrentPrincipal records p as the caller of the unit of work ctx
// belongs to and attaches it to req. Either both writes happen or neither.
func SetCurrentPrincipal(ctx context.Context, p Principal, req *Request) error {
	if req == nil {
		return ErrNilRequest
	}
	slot := slotFromContext(ctx)
	if slot == nil {
		return ErrNoCallerScope
	}
	slot.set(p)
	req.setUser(p)
	if isAuthenticated(p) {
		observability.AuthenticatedTotal.WithLabelValues(p.AuthenticationType()).Inc()
	}
	return nil
}

// Challenge returns a 401 response carrying a WWW-Authenticate header.
func Challenge(challenge, message string) *Response {
	resp := Unauthorized(message)
	resp.Header.Set("WWW-Authenticate", challenge)
	return resp
}

// IsUnauthorized reports whether resp is a 401.
func IsUnauthorized(resp *Response) bool {
	return resp != nil && resp.StatusCode == http.StatusUnauthorized
}
