package auth

import (
	"context"
	"sync"
)

// callerKey is a private type for the caller slot context key.
type callerKey struct{}

// callerSlot holds the current caller of one unit of work. It is installed
// once per request and written in place, so every context derived from the
// request context observes the same caller.
type callerSlot struct {
	mu        sync.RWMutex
	principal Principal
}

// WithCaller returns a context carrying an empty caller slot. If ctx already
// carries one, ctx is returned unchanged.
func WithCaller(ctx context.Context) context.Context {
	if slotFromContext(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, callerKey{}, &callerSlot{})
}

// CurrentPrincipal returns the caller recorded for the unit of work ctx
// belongs to. Returns nil if no caller slot is installed or nobody has been
// recorded yet.
func CurrentPrincipal(ctx context.Context) Principal {
	slot := slotFromContext(ctx)
	if slot == nil {
		return nil
	}
	slot.mu.RLock()
	defer slot.mu.RUnlock()
	return slot.principal
}

// IdentityFromContext returns the current caller as an *Identity.
// Returns nil if there is no caller or it is not an *Identity.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := CurrentPrincipal(ctx).(*Identity); ok {
		return id
	}
	return nil
}

func slotFromContext(ctx context.Context) *callerSlot {
	if ctx == nil {
		return nil
	}
	slot, _ := ctx.Value(callerKey{}).(*callerSlot)
	return slot
}

func (s *callerSlot) set(p Principal) {
	s.mu.Lock()
	s.principal = p
	s.mu.Unlock()
}
