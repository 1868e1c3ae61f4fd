// Package antiforgery protects state-changing requests from cross-site
// request forgery with a double-submit token: the token issued in a cookie
// must be echoed in a request header.
//
// The check only applies to callers authenticated by a link that does not
// bypass anti-forgery tokens. Schemes whose credentials browsers never send
// on their own (bearer tokens, API keys) opt out through
// auth.Link.BypassAntiForgeryToken.
package antiforgery

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rhuss/authgate/pkg/auth"
	"github.com/rhuss/authgate/pkg/observability"
	"github.com/rhuss/authgate/pkg/transport"
)

// Defaults for Config.
const (
	DefaultCookieName = "authgate_csrf"
	DefaultHeaderName = "X-CSRF-Token"
)

const tokenBytes = 32

// LinkResolver finds the link registered for a scheme. *auth.Chain
// implements it.
type LinkResolver interface {
	Link(scheme string) (auth.Link, bool)
}

// Config configures token issuing and validation.
type Config struct {
	CookieName string
	HeaderName string

	// Secure marks the token cookie as HTTPS-only.
	Secure bool

	// Links decides which callers are exempt.
	Links LinkResolver

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.HeaderName == "" {
		c.HeaderName = DefaultHeaderName
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// NewToken returns a random URL-safe token.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Middleware rejects unsafe requests from affected callers with 403 unless
// the header token matches the cookie token. It must run after the auth
// chain has recorded the caller.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	cfg.applyDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) || !cfg.applies(r) {
				next.ServeHTTP(w, r)
				return
			}

			if !cfg.valid(r) {
				observability.AntiForgeryRejectedTotal.Inc()
				cfg.Logger.Warn("anti-forgery token rejected",
					"request_id", transport.RequestIDFromContext(r.Context()),
					"path", r.URL.Path,
					"subject", auth.CurrentPrincipal(r.Context()).Name(),
				)
				transport.WriteError(w, http.StatusForbidden, transport.ErrorTypeForbidden, "anti-forgery token missing or invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// applies reports whether the caller of r must present a token.
func (c *Config) applies(r *http.Request) bool {
	p := auth.CurrentPrincipal(r.Context())
	if p == nil || !p.IsAuthenticated() {
		return false
	}
	if c.Links == nil {
		return true
	}
	link, ok := c.Links.Link(p.AuthenticationType())
	return !ok || !link.BypassAntiForgeryToken()
}

func (c *Config) valid(r *http.Request) bool {
	cookie, err := r.Cookie(c.CookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	header := r.Header.Get(c.HeaderName)
	if header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) == 1
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// TokenResponse is the body written by IssueHandler.
type TokenResponse struct {
	Token      string `json:"token"`
	HeaderName string `json:"header_name"`
}

// IssueHandler returns a handler that sets a fresh token cookie and returns
// the same token in the JSON body for script to echo.
func IssueHandler(cfg Config) http.Handler {
	cfg.applyDefaults()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := NewToken()
		if err != nil {
			cfg.Logger.Error("generating anti-forgery token", "error", err)
			transport.WriteErrorType(w, transport.ErrorTypeServerError, "could not issue token")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     cfg.CookieName,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			Secure:   cfg.Secure,
			SameSite: http.SameSiteStrictMode,
		})
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(TokenResponse{Token: token, HeaderName: cfg.HeaderName})
	})
}
