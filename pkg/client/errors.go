package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrRequestFailed wraps every transport failure, timeout and non-2xx
	// response that is not an authentication problem.
	ErrRequestFailed = errors.New("request failed")

	// ErrAuthFailed is returned when login or registration is rejected.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrSessionExpired is returned when the backend rejects the bearer token.
	ErrSessionExpired = errors.New("session expired")

	// ErrNotFound is returned for 404 responses. It also matches ErrRequestFailed.
	ErrNotFound = errors.New("not found")
)

// APIError is a non-2xx response, carrying the backend's error message.
type APIError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.kind, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.kind, e.StatusCode, e.Message)
}

// Unwrap exposes the sentinel category so callers can use errors.Is.
func (e *APIError) Unwrap() []error {
	if e.StatusCode == http.StatusNotFound {
		return []error{e.kind, ErrNotFound}
	}
	return []error{e.kind}
}

// ValidationError is a client-side rejection of a field value. It is
// produced before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// newAPIError decodes an error body. The backend normally sends
// {"error": "..."} but plain text bodies are tolerated.
func newAPIError(status int, body []byte) *APIError {
	msg := strings.TrimSpace(string(body))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Error != "":
			msg = payload.Error
		case payload.Message != "":
			msg = payload.Message
		}
	}
	return &APIError{StatusCode: status, Message: msg, kind: ErrRequestFailed}
}

// mentionsToken reports whether a 401/403 rejection is about the bearer
// token rather than, say, insufficient role.
func mentionsToken(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "token")
}
