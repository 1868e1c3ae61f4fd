package auth

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
)

// Request is an inbound HTTP message travelling through the chain.
//
// The embedded *http.Request is read-only from a link's point of view. The
// user slot is the request's own record of the authenticated caller and is
// safe to read from any goroutine holding the Request.
type Request struct {
	*http.Request

	mu   sync.RWMutex
	user Principal
}

// NewRequest wraps r for processing by a chain.
func NewRequest(r *http.Request) *Request {
	return &Request{Request: r}
}

// Scheme returns the effective URI scheme of the request: URL.Scheme when
// set, otherwise "https" for TLS connections and "http" for the rest.
func (r *Request) Scheme() string {
	if r == nil || r.Request == nil {
		return ""
	}
	if r.URL != nil && r.URL.Scheme != "" {
		return r.URL.Scheme
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// User returns the principal attached to this request, or nil.
func (r *Request) User() Principal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.user
}

func (r *Request) setUser(p Principal) {
	r.mu.Lock()
	r.user = p
	r.mu.Unlock()
}

// Response is an outbound HTTP message travelling back through the chain.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Request is the request that produced this response. Process fills it
	// in for responses returned by an inbound hook.
	Request *Request
}

// NewResponse returns an empty response with the given status.
func NewResponse(status int) *Response {
	return &Response{StatusCode: status, Header: make(http.Header)}
}

// ErrorResponse builds a JSON error response in the
// {"error":{"type":...,"message":...}} envelope.
func ErrorResponse(status int, errType, message string) *Response {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", "application/json")
	resp.Body = body
	return resp
}

// Unauthorized builds the standard 401 error response.
func Unauthorized(message string) *Response {
	return ErrorResponse(http.StatusUnauthorized, "invalid_request", message)
}

// Write copies the response to w.
func (r *Response) Write(w http.ResponseWriter) error {
	h := w.Header()
	for k, vv := range r.Header {
		h[k] = append([]string(nil), vv...)
	}
	if len(r.Body) > 0 && h.Get("Content-Length") == "" {
		h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}
	status := r.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(r.Body) == 0 {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}
