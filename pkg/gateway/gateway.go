// Package gateway assembles an authentication chain and its supporting
// middleware from configuration.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/rhuss/authgate/pkg/antiforgery"
	"github.com/rhuss/authgate/pkg/auth"
	"github.com/rhuss/authgate/pkg/auth/apikey"
	"github.com/rhuss/authgate/pkg/auth/apikey/postgres"
	"github.com/rhuss/authgate/pkg/auth/basic"
	"github.com/rhuss/authgate/pkg/auth/jwt"
	"github.com/rhuss/authgate/pkg/auth/noop"
	"github.com/rhuss/authgate/pkg/config"
)

// Gateway owns the chain built from configuration and the resources its
// links hold.
type Gateway struct {
	chain       *auth.Chain
	middleware  auth.MiddlewareConfig
	antiforgery *antiforgery.Config
	stores      []*postgres.Store
	closers     []io.Closer
	logger      *slog.Logger
}

// New builds every configured link in chain order. Resources opened for
// earlier links are released if a later one fails.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{logger: logger}

	links := make([]auth.Link, 0, len(cfg.Auth.Links))
	for i, lc := range cfg.Auth.Links {
		link, err := g.buildLink(ctx, lc)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("auth.links[%d] (%s): %w", i, lc.Type, err)
		}
		links = append(links, link)
		if c, ok := link.(io.Closer); ok {
			g.closers = append(g.closers, c)
		}
		logger.Info("auth link configured",
			"scheme", link.AuthScheme(),
			"include_by_default", link.IncludeByDefault(),
			"force_ssl", link.ForceSSL(),
		)
	}

	chain, err := auth.NewChain(links...)
	if err != nil {
		g.Close()
		return nil, err
	}
	g.chain = chain

	g.middleware = auth.MiddlewareConfig{
		Limiter:             newLimiter(cfg.Auth.RateLimit),
		BypassEndpoints:     cfg.Auth.Bypass,
		TrustForwardedProto: cfg.Server.TrustForwardedProto,
		Logger:              logger,
	}

	if af := cfg.Auth.AntiForgery; af.Enabled {
		g.antiforgery = &antiforgery.Config{
			CookieName: af.CookieName,
			HeaderName: af.HeaderName,
			Secure:     anySSL(links),
			Links:      chain,
			Logger:     logger,
		}
	}

	return g, nil
}

func (g *Gateway) buildLink(ctx context.Context, lc config.LinkConfig) (auth.Link, error) {
	switch lc.Type {
	case config.LinkTypeJWT:
		return jwt.New(jwt.Config{
			IncludeByDefault: lc.IncludedByDefault(),
			ForceSSL:         lc.SSLRequired(),
			Issuer:           lc.Issuer,
			Audience:         lc.Audience,
			JWKSURL:          lc.JWKSURL,
			CacheTTL:         lc.CacheTTL,
			Logger:           g.logger,
		})

	case config.LinkTypeBasic:
		users := make([]basic.User, 0, len(lc.Users))
		for _, u := range lc.Users {
			users = append(users, basic.User{
				Name:         u.Name,
				PasswordHash: u.PasswordHash,
				TenantID:     u.TenantID,
				ServiceTier:  u.ServiceTier,
				Scopes:       u.Scopes,
			})
		}
		return basic.New(basic.Config{
			IncludeByDefault: lc.IncludedByDefault(),
			AllowPlainHTTP:   !lc.SSLRequired(),
			Realm:            lc.Realm,
			Users:            users,
			Logger:           g.logger,
		})

	case config.LinkTypeAPIKey:
		store, err := g.buildKeyStore(ctx, lc)
		if err != nil {
			return nil, err
		}
		return apikey.New(apikey.Config{
			IncludeByDefault: lc.IncludedByDefault(),
			ForceSSL:         lc.SSLRequired(),
			Header:           lc.Header,
			Store:            store,
			Logger:           g.logger,
		})

	case config.LinkTypeNone:
		return noop.New(g.logger), nil
	}
	return nil, fmt.Errorf("unknown link type %q", lc.Type)
}

func (g *Gateway) buildKeyStore(ctx context.Context, lc config.LinkConfig) (apikey.KeyStore, error) {
	switch lc.StoreKind() {
	case config.StoreMemory:
		entries := make([]apikey.RawKeyEntry, 0, len(lc.Keys))
		for _, k := range lc.Keys {
			entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: keyIdentity(k)})
		}
		store := apikey.NewMemoryStore(entries)
		g.logger.Debug("api key store loaded", "store", config.StoreMemory, "keys", store.Len())
		return store, nil

	case config.StorePostgres:
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            lc.Postgres.DSN,
			MaxConns:       lc.Postgres.MaxConns,
			MigrateOnStart: lc.Postgres.MigrateOnStart,
		}, g.logger)
		if err != nil {
			return nil, err
		}
		g.stores = append(g.stores, store)

		// Keys listed in the file seed the database.
		for _, k := range lc.Keys {
			err := store.Add(ctx, k.Key, keyIdentity(k))
			if err != nil && !errors.Is(err, postgres.ErrDuplicateKey) {
				return nil, fmt.Errorf("seeding key for %s: %w", k.Subject, err)
			}
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown key store %q", lc.Store)
}

func keyIdentity(k config.APIKeyConfig) auth.Identity {
	id := auth.Identity{
		Subject:     k.Subject,
		ServiceTier: k.ServiceTier,
		Scopes:      k.Scopes,
	}
	if k.TenantID != "" {
		id.Metadata = map[string]string{"tenant_id": k.TenantID}
	}
	return id
}

func newLimiter(rl config.RateLimitConfig) auth.RateLimiter {
	if rl.DefaultRPM == 0 && len(rl.Tiers) == 0 {
		return nil
	}
	tiers := make(map[string]auth.TierConfig, len(rl.Tiers))
	for name, t := range rl.Tiers {
		tiers[name] = auth.TierConfig{RequestsPerMinute: t.RequestsPerMinute}
	}
	return auth.NewInProcessLimiter(tiers, rl.DefaultRPM)
}

// anySSL reports whether any link insists on HTTPS, in which case the
// anti-forgery cookie is marked Secure.
func anySSL(links []auth.Link) bool {
	for _, l := range links {
		if l.ForceSSL() {
			return true
		}
	}
	return false
}

// Chain returns the full chain.
func (g *Gateway) Chain() *auth.Chain { return g.chain }

// Protect wraps app with the links included by default plus the opt-in
// schemes, followed by the anti-forgery check when enabled.
func (g *Gateway) Protect(app http.Handler, optIn ...string) http.Handler {
	if g.antiforgery != nil {
		app = antiforgery.Middleware(*g.antiforgery)(app)
	}
	return auth.Middleware(g.chain.Select(optIn...), g.middleware)(app)
}

// AntiForgeryHandler returns the token issuing endpoint, or nil when
// anti-forgery is disabled.
func (g *Gateway) AntiForgeryHandler() http.Handler {
	if g.antiforgery == nil {
		return nil
	}
	return antiforgery.IssueHandler(*g.antiforgery)
}

// Ready checks the key stores backing the chain.
func (g *Gateway) Ready(ctx context.Context) error {
	var errs []error
	for _, s := range g.stores {
		if err := s.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api key store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the key stores and stops background key refreshes.
func (g *Gateway) Close() error {
	var errs []error
	for _, c := range g.closers {
		errs = append(errs, c.Close())
	}
	g.closers = nil
	for _, s := range g.stores {
		errs = append(errs, s.Close())
	}
	g.stores = nil
	return errors.Join(errs...)
}
