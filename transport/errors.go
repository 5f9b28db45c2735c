package transport

import (
	"fmt"
)

// Transport failures are transient in the protocol's taxonomy: the caller
// may retry the whole handshake with fresh key material. They are typed so
// callers can tell them apart from the fatal cryptographic kinds.

// ConnectionError represents a network-level failure or cancellation
type ConnectionError struct {
	URL   string `json:"url"`
	Cause error  `json:"cause"`
}

// NewConnectionError creates a new connection error
func NewConnectionError(url string, cause error) *ConnectionError {
	return &ConnectionError{URL: url, Cause: cause}
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection_error: request to %s failed (caused by: %v)", e.URL, e.Cause)
}

// Unwrap implements the error unwrapping interface
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// StatusError represents a non-success HTTP status from the service
type StatusError struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
}

// NewStatusError creates a new status error
func NewStatusError(url string, status int) *StatusError {
	return &StatusError{URL: url, Status: status}
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return fmt.Sprintf("status_error: request to %s returned %d", e.URL, e.Status)
}

// MalformedResponseError represents a structurally invalid service response,
// caught before any field is interpreted. Unlike connection failures this is
// fatal once inspected.
type MalformedResponseError struct {
	Message string `json:"message"`
	Cause   error  `json:"cause,omitempty"`
}

// NewMalformedResponseError creates a new malformed response error
func NewMalformedResponseError(message string, cause error) *MalformedResponseError {
	return &MalformedResponseError{Message: message, Cause: cause}
}

// Error implements the error interface
func (e *MalformedResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed_response: %s (caused by: %v)", e.Message, e.Cause)
	}
	return fmt.Sprintf("malformed_response: %s", e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *MalformedResponseError) Unwrap() error {
	return e.Cause
}
