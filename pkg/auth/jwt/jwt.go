// Package jwt provides a chain link that authenticates bearer tokens
// signed by an OIDC provider, verified against its JWKS endpoint.
//
// Only RSA-signed tokens are accepted. Issuer and audience are checked when
// configured, and subject, tenant, tier and scopes are read from
// configurable claims.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/authgate/pkg/auth"
)

// Scheme is the AuthScheme of the JWT link.
const Scheme = "JWT"

// ErrNoJWKSURL is returned by New when no key set endpoint is configured.
var ErrNoJWKSURL = errors.New("jwt: jwks_url is required")

// Config holds the JWT link configuration.
type Config struct {
	// IncludeByDefault makes the link apply to every route.
	IncludeByDefault bool

	// ForceSSL restricts token authentication to HTTPS.
	ForceSSL bool

	// Issuer is the expected iss claim. Not validated if empty.
	Issuer string

	// Audience is the expected aud claim. Not validated if empty.
	Audience string

	// JWKSURL is where the signing keys are published.
	JWKSURL string

	// UserClaim names the subject claim. Default: "sub".
	UserClaim string

	// TenantClaim names the tenant claim. Default: "tenant_id".
	TenantClaim string

	// TierClaim names the service tier claim. Default: "tier".
	TierClaim string

	// ScopesClaim names the scopes claim, either a space-separated string
	// or an array. Default: "scope".
	ScopesClaim string

	// CacheTTL is the background refresh interval of the key set.
	// Default: 1 hour.
	CacheTTL time.Duration

	// HTTPClient fetches the key set. Default: http.DefaultClient.
	HTTPClient *http.Client

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Link validates bearer tokens and records the token subject as the
// current caller.
type Link struct {
	auth.Base
	config Config
	keys   *keySet
}

var _ auth.Link = (*Link)(nil)

// New creates a JWT link.
func New(cfg Config) (*Link, error) {
	if cfg.JWKSURL == "" {
		return nil, ErrNoJWKSURL
	}
	cfg.applyDefaults()

	base, err := auth.NewBase(auth.LinkConfig{
		AuthScheme:       Scheme,
		IncludeByDefault: cfg.IncludeByDefault,
		ForceSSL:         cfg.ForceSSL,
	}, cfg.Logger)
	if err != nil {
		return nil, err
	}

	keys, err := newKeySet(cfg)
	if err != nil {
		return nil, err
	}

	return &Link{Base: base, config: cfg, keys: keys}, nil
}

// Close stops refreshing the key set.
func (l *Link) Close() error {
	l.keys.close()
	return nil
}

// BypassAntiForgeryToken returns true: bearer tokens are not sent
// automatically by browsers.
func (l *Link) BypassAntiForgeryToken() bool { return true }

// OnInboundRequest authenticates a bearer token if present. Requests
// without one pass through untouched; invalid tokens get a 401.
func (l *Link) OnInboundRequest(ctx context.Context, req *auth.Request) (*auth.Response, error) {
	if !l.NeedsAuthentication(ctx, req) {
		return nil, nil
	}

	token, ok := bearerToken(req.Header.Get("Authorization"))
	if !ok {
		return nil, nil
	}
	if token == "" {
		return invalidToken("empty bearer token"), nil
	}

	id, err := l.validate(ctx, token)
	if errors.Is(err, ErrKeySetUnavailable) {
		return nil, err
	}
	if err != nil {
		l.Logger().Debug("JWT validation failed", "error", err)
		return invalidToken("invalid token"), nil
	}

	return nil, auth.SetCurrentPrincipal(ctx, id, req)
}

// bearerToken extracts the token of a Bearer Authorization header. ok is
// false when the header uses another scheme.
func bearerToken(header string) (token string, ok bool) {
	scheme, rest, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func invalidToken(message string) *auth.Response {
	return auth.Challenge(`Bearer error="invalid_token"`, message)
}

func (l *Link) validate(ctx context.Context, tokenStr string) (*auth.Identity, error) {
	token, err := jwtlib.Parse(tokenStr, l.keys.keyfunc.KeyfuncCtx(ctx), l.parserOptions()...)
	if err != nil {
		if !l.keys.available(ctx) {
			return nil, fmt.Errorf("%w: %w", ErrKeySetUnavailable, err)
		}
		return nil, err
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid JWT claims")
	}

	subject := claimString(claims, l.config.UserClaim)
	if subject == "" {
		return nil, fmt.Errorf("JWT missing %q claim", l.config.UserClaim)
	}

	id := &auth.Identity{
		Subject:     subject,
		AuthType:    Scheme,
		ServiceTier: claimString(claims, l.config.TierClaim),
		Scopes:      extractScopes(claims, l.config.ScopesClaim),
		Metadata:    make(map[string]string),
	}
	if tenant := claimString(claims, l.config.TenantClaim); tenant != "" {
		id.Metadata["tenant_id"] = tenant
	}
	return id, nil
}

func (l *Link) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwtlib.WithLeeway(30 * time.Second),
	}
	if l.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(l.config.Issuer))
	}
	if l.config.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(l.config.Audience))
	}
	return opts
}

func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// extractScopes reads a space-separated string or an array of strings.
func extractScopes(claims jwtlib.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		if parts := strings.Fields(v); len(parts) > 0 {
			return parts
		}
	case []any:
		var scopes []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}
