// Package noop provides a development link that records every caller as an
// authenticated "anonymous" identity. It must come last in a chain.
package noop

import (
	"context"
	"log/slog"

	"github.com/rhuss/authgate/pkg/auth"
)

// Scheme is the AuthScheme of the no-op link.
const Scheme = "None"

// Subject is recorded for every caller.
const Subject = "anonymous"

// Link authenticates every caller nobody else has.
type Link struct {
	auth.Base
}

var _ auth.Link = (*Link)(nil)

// New creates a no-op link that applies to every route.
func New(logger *slog.Logger) *Link {
	base, _ := auth.NewBase(auth.LinkConfig{AuthScheme: Scheme, IncludeByDefault: true}, logger)
	return &Link{Base: base}
}

// OnInboundRequest records the anonymous identity as the caller unless an
// earlier link already authenticated the request. It never answers.
func (l *Link) OnInboundRequest(ctx context.Context, req *auth.Request) (*auth.Response, error) {
	if !l.NeedsAuthentication(ctx, req) {
		return nil, nil
	}
	return nil, auth.SetCurrentPrincipal(ctx, &auth.Identity{
		Subject:     Subject,
		AuthType:    Scheme,
		ServiceTier: "default",
	}, req)
}
