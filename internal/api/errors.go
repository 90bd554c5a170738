package api

import "net/http"

// Error codes carried in error bodies.
const (
	CodeValidation   = "validation_error"
	CodeNotFound     = "not_found"
	CodeDuplicate    = "duplicate"
	CodeUnauthorized = "unauthorized"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal_error"
)

// Error is the JSON error body returned by the server.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds an Error with the code implied by status.
func NewError(status int, message string) *Error {
	return &Error{Status: status, Code: codeForStatus(status), Message: message}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeValidation
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeDuplicate
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeUnauthorized
	case http.StatusTooManyRequests:
		return CodeRateLimited
	default:
		return CodeInternal
	}
}
