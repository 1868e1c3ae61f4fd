// Package transport provides the net/http middleware that surrounds the
// authentication chain in authgate.
//
// # Middleware
//
// Middleware wraps an http.Handler with cross-cutting behavior. Chain
// composes middleware so the first one listed is the outermost. Built-in
// middleware provides panic recovery, request ID assignment (X-Request-ID),
// structured access logging via log/slog and in-flight request tracking for
// cancellation at shutdown.
//
// Logging installs the per-request caller slot of package auth before the
// rest of the stack runs, so the subject recorded by the chain is visible to
// the access log once the request completes.
//
// # Errors
//
// WriteError writes the JSON error envelope shared with the auth chain:
//
//	{"error":{"type":"server_error","message":"internal server error"}}
package transport
