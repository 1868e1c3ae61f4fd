package transport

import (
	"encoding/json"
	"net/http"
)

// Error types used in the JSON error envelope.
const (
	ErrorTypeInvalidRequest  = "invalid_request"
	ErrorTypeForbidden       = "forbidden"
	ErrorTypeTooManyRequests = "too_many_requests"
	ErrorTypeServerError     = "server_error"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// HTTPStatusFromErrorType maps an error type to its HTTP status code.
func HTTPStatusFromErrorType(errType string) int {
	switch errType {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, statusCode int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{Type: errType, Message: message}})
}

// WriteErrorType writes a JSON error response, deriving the status code
// from the error type.
func WriteErrorType(w http.ResponseWriter, errType, message string) {
	WriteError(w, HTTPStatusFromErrorType(errType), errType, message)
}
