// Package auth provides the authentication chain for authgate.
//
// A chain is an ordered list of links, one per supported authentication
// scheme. Each link sees the inbound request before the application does and
// may answer it directly (a 401 challenge, a 403), which stops the chain: no
// later link and no application handler runs. Otherwise the request continues
// and, on the way back, every link that let it through gets a chance to
// rewrite the outbound response, in reverse order.
//
//	chain, _ := auth.NewChain(jwtLink, basicLink)
//	// Inbound:  jwt → basic → terminal
//	// Outbound: terminal → basic → jwt
//
// Links are built once and shared by every request; all per-request data
// lives on the Request, the Response and the context.Context passed through
// the chain. The authenticated caller is recorded twice by
// SetCurrentPrincipal: in the caller slot carried by the request's context
// (see WithCaller and CurrentPrincipal) and on the Request itself (see
// Request.User), so both views always agree.
//
// Concrete schemes live in sub-packages (basic, jwt, apikey, noop) and embed
// Base to inherit the default hooks and the decision helpers.
//
// Middleware adapts a chain to net/http, buffering the application response
// so outbound hooks can transform it before it is written.
package auth
