// Package apikey provides a chain link that authenticates API keys sent in
// a request header and resolved through a KeyStore.
package apikey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/authgate/pkg/auth"
)

// Scheme is the AuthScheme of the API key link.
const Scheme = "APIKey"

// DefaultHeader carries the key when Config.Header is empty.
const DefaultHeader = "X-API-Key"

// ErrKeyNotFound is returned by a KeyStore for unknown or revoked keys.
var ErrKeyNotFound = errors.New("api key not found")

// KeyStore resolves raw API keys to identities.
type KeyStore interface {
	// Lookup returns the identity owning key, or ErrKeyNotFound.
	Lookup(ctx context.Context, key string) (*auth.Identity, error)
}

// Config holds the API key link configuration.
type Config struct {
	IncludeByDefault bool
	ForceSSL         bool

	// Header names the request header carrying the key.
	Header string

	Store  KeyStore
	Logger *slog.Logger
}

// Link authenticates API keys.
type Link struct {
	auth.Base
	header string
	store  KeyStore
}

var _ auth.Link = (*Link)(nil)

// New creates an API key link.
func New(cfg Config) (*Link, error) {
	if cfg.Store == nil {
		return nil, errors.New("apikey: key store is required")
	}
	base, err := auth.NewBase(auth.LinkConfig{
		AuthScheme:       Scheme,
		IncludeByDefault: cfg.IncludeByDefault,
		ForceSSL:         cfg.ForceSSL,
	}, cfg.Logger)
	if err != nil {
		return nil, err
	}

	header := cfg.Header
	if header == "" {
		header = DefaultHeader
	}
	return &Link{Base: base, header: http.CanonicalHeaderKey(header), store: cfg.Store}, nil
}

// BypassAntiForgeryToken returns true: browsers never attach API keys on
// their own.
func (l *Link) BypassAntiForgeryToken() bool { return true }

// OnInboundRequest resolves the key header. Requests without it pass
// through, unknown keys get a 401 and store failures are returned as
// errors.
func (l *Link) OnInboundRequest(ctx context.Context, req *auth.Request) (*auth.Response, error) {
	if !l.NeedsAuthentication(ctx, req) {
		return nil, nil
	}

	key := req.Header.Get(l.header)
	if key == "" {
		return nil, nil
	}

	id, err := l.store.Lookup(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		l.Logger().Debug("unknown API key", "header", l.header)
		return auth.Unauthorized("invalid API key"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up API key: %w", err)
	}

	id.AuthType = Scheme
	return nil, auth.SetCurrentPrincipal(ctx, id, req)
}
