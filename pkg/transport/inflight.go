package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// InFlightRegistry tracks in-flight requests so they can be cancelled
// explicitly, for example when a graceful shutdown runs out of time. It
// maps request IDs to their cancel functions.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		entries: make(map[string]context.CancelFunc),
	}
}

// Register adds an in-flight request to the registry.
func (r *InFlightRegistry) Register(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = cancel
}

// Cancel cancels an in-flight request by calling its cancel function.
// Returns true if the request was found and cancelled, false if the ID
// was not registered (either already completed or never existed).
func (r *InFlightRegistry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.entries[id]
	if !ok {
		return false
	}
	cancel()
	delete(r.entries, id)
	return true
}

// CancelAll cancels every registered request and returns how many there
// were.
func (r *InFlightRegistry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	for id, cancel := range r.entries {
		cancel()
		delete(r.entries, id)
	}
	return n
}

// Len returns the number of registered requests.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Remove removes a request from the registry without cancelling it.
// Called when a request completes normally.
func (r *InFlightRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Track returns middleware that gives each request a cancellable context
// registered in reg for the duration of the request. Requests are keyed by
// their request ID when RequestID runs earlier in the chain.
func Track(reg *InFlightRegistry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithCancel(r.Context())
			defer cancel()

			// Client IDs may repeat; the registry key must not.
			key := RequestIDFromContext(ctx) + "/" + uuid.NewString()
			reg.Register(key, cancel)
			defer reg.Remove(key)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
