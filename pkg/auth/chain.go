package auth

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhuss/authgate/pkg/debug"
	"github.com/rhuss/authgate/pkg/observability"
)

const tracerName = "github.com/rhuss/authgate/pkg/auth"

// Chain is an ordered, immutable list of links with unique schemes.
type Chain struct {
	links    []Link
	byScheme map[string]Link
}

// NewChain assembles links in the given order. Every link must have a
// non-empty scheme that no other link in the chain uses.
func NewChain(links ...Link) (*Chain, error) {
	c := &Chain{
		links:    make([]Link, 0, len(links)),
		byScheme: make(map[string]Link, len(links)),
	}
	for i, l := range links {
		scheme := l.AuthScheme()
		if scheme == "" {
			return nil, fmt.Errorf("link %d: %w", i, ErrEmptyScheme)
		}
		if _, dup := c.byScheme[scheme]; dup {
			return nil, fmt.Errorf("link %d (%s): %w", i, scheme, ErrDuplicateScheme)
		}
		c.byScheme[scheme] = l
		c.links = append(c.links, l)
	}
	return c, nil
}

// Links returns the links in chain order.
func (c *Chain) Links() []Link {
	return slices.Clone(c.links)
}

// Link returns the link registered for scheme.
func (c *Chain) Link(scheme string) (Link, bool) {
	l, ok := c.byScheme[scheme]
	return l, ok
}

// Select returns the sub-chain applying to a route: every link included by
// default plus the links named in optIn, in chain order. Unknown names are
// ignored.
func (c *Chain) Select(optIn ...string) *Chain {
	sub := &Chain{byScheme: make(map[string]Link)}
	for _, l := range c.links {
		if l.IncludeByDefault() || slices.Contains(optIn, l.AuthScheme()) {
			sub.links = append(sub.links, l)
			sub.byScheme[l.AuthScheme()] = l
		}
	}
	return sub
}

// Process runs req through every link and then terminal. The context gets
// a caller slot if it does not carry one yet.
func (c *Chain) Process(ctx context.Context, req *Request, terminal HandlerFunc) (*Response, error) {
	ctx = WithCaller(ctx)
	next := terminal
	for i := len(c.links) - 1; i >= 0; i-- {
		next = step(c.links[i], next)
	}
	return next(ctx, req)
}

// Then returns the chain bound to terminal as a single continuation.
func (c *Chain) Then(terminal HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) (*Response, error) {
		return c.Process(ctx, req, terminal)
	}
}

// step wraps one link with tracing and short-circuit accounting.
func step(link Link, next HandlerFunc) HandlerFunc {
	scheme := link.AuthScheme()
	return func(ctx context.Context, req *Request) (*Response, error) {
		ctx, span := otel.Tracer(tracerName).Start(ctx, "auth.link",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attribute.String("auth.scheme", scheme)),
		)
		defer span.End()

		proceeded := false
		resp, err := Process(ctx, link, req, func(ctx context.Context, req *Request) (*Response, error) {
			proceeded = true
			return next(ctx, req)
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		span.SetAttributes(attribute.Bool("auth.short_circuit", !proceeded))
		if !proceeded {
			observability.ShortCircuitTotal.WithLabelValues(scheme, strconv.Itoa(resp.StatusCode)).Inc()
			debug.Log("chain", "link answered request", "scheme", scheme, "status", resp.StatusCode)
		}
		return resp, nil
	}
}
