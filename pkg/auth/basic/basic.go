// Package basic provides a chain link for HTTP Basic authentication
// against a fixed set of users with hashed passwords.
//
// The link only acts over HTTPS unless AllowPlainHTTP is set. On the way
// out it adds a Basic challenge to 401 responses, except for script
// requests, so browsers do not show a login dialog for XHR calls.
package basic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/rhuss/authgate/pkg/auth"
)

// Scheme is the AuthScheme of the Basic link.
const Scheme = "Basic"

// DefaultRealm is used when Config.Realm is empty.
const DefaultRealm = "authgate"

// User is one account the link can authenticate.
type User struct {
	Name string

	// PasswordHash is a bcrypt or Argon2id encoded hash.
	PasswordHash string

	TenantID    string
	ServiceTier string
	Scopes      []string
}

// Config holds the Basic link configuration.
type Config struct {
	IncludeByDefault bool

	// AllowPlainHTTP lets the link authenticate over plain HTTP.
	AllowPlainHTTP bool

	Realm  string
	Users  []User
	Logger *slog.Logger
}

// Link authenticates Authorization: Basic credentials.
type Link struct {
	auth.Base
	realm     string
	challenge string
	users     map[string]User
}

var _ auth.Link = (*Link)(nil)

// New creates a Basic link. User names must be unique, ignoring case, and
// every user needs a well-formed bcrypt or Argon2id hash.
func New(cfg Config) (*Link, error) {
	base, err := auth.NewBase(auth.LinkConfig{
		AuthScheme:       Scheme,
		IncludeByDefault: cfg.IncludeByDefault,
		ForceSSL:         !cfg.AllowPlainHTTP,
	}, cfg.Logger)
	if err != nil {
		return nil, err
	}

	realm := cfg.Realm
	if realm == "" {
		realm = DefaultRealm
	}

	users := make(map[string]User, len(cfg.Users))
	for _, u := range cfg.Users {
		key := strings.ToLower(u.Name)
		if key == "" {
			return nil, errors.New("basic: user name must not be empty")
		}
		if u.PasswordHash == "" {
			return nil, fmt.Errorf("basic: user %q has no password hash", u.Name)
		}
		if err := CheckHash(u.PasswordHash); err != nil {
			return nil, fmt.Errorf("basic: user %q: %w", u.Name, err)
		}
		if _, dup := users[key]; dup {
			return nil, fmt.Errorf("basic: duplicate user %q", u.Name)
		}
		users[key] = u
	}

	return &Link{
		Base:      base,
		realm:     realm,
		challenge: fmt.Sprintf("Basic realm=%q", realm),
		users:     users,
	}, nil
}

// OnInboundRequest verifies Basic credentials when present. Requests
// without them pass through; wrong credentials get a 401.
func (l *Link) OnInboundRequest(ctx context.Context, req *auth.Request) (*auth.Response, error) {
	if !l.NeedsAuthentication(ctx, req) {
		return nil, nil
	}

	name, password, ok := req.BasicAuth()
	if !ok {
		return nil, nil
	}

	user, found := l.users[strings.ToLower(name)]
	if !found {
		l.Logger().Debug("unknown basic auth user", "user", name)
		return l.reject(req), nil
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		l.Logger().Debug("basic auth failed", "user", name, "error", err)
		return l.reject(req), nil
	}

	id := &auth.Identity{
		Subject:     user.Name,
		AuthType:    Scheme,
		ServiceTier: user.ServiceTier,
		Scopes:      slices.Clone(user.Scopes),
		Metadata:    map[string]string{},
	}
	if user.TenantID != "" {
		id.Metadata["tenant_id"] = user.TenantID
	}
	return nil, auth.SetCurrentPrincipal(ctx, id, req)
}

// OnOutboundResponse adds the Basic challenge to 401 responses.
func (l *Link) OnOutboundResponse(_ context.Context, resp *auth.Response) (*auth.Response, error) {
	if auth.IsUnauthorized(resp) {
		l.addChallenge(resp)
	}
	return resp, nil
}

func (l *Link) reject(req *auth.Request) *auth.Response {
	resp := auth.Unauthorized("invalid credentials")
	resp.Request = req
	l.addChallenge(resp)
	return resp
}

// addChallenge sets WWW-Authenticate unless the originating request came
// from script or a Basic challenge is already present.
func (l *Link) addChallenge(resp *auth.Response) {
	if resp.Request != nil && auth.IsXMLHTTPRequest(resp.Request) {
		return
	}
	for _, v := range resp.Header.Values("WWW-Authenticate") {
		if strings.HasPrefix(v, "Basic ") {
			return
		}
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Add("WWW-Authenticate", l.challenge)
}

// Realm returns the protection space announced in challenges.
func (l *Link) Realm() string { return l.realm }
