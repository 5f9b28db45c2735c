package discovery

import (
	"fmt"
)

// DiscoveryError is the base error type for discovery protocol failures
type DiscoveryError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Cause   error  `json:"cause,omitempty"`
}

// Error implements the error interface
func (e *DiscoveryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *DiscoveryError) Unwrap() error {
	return e.Cause
}

// DecryptionFailureError represents an integrity-tag failure on the
// discovery response. No plaintext exists when this is returned.
type DecryptionFailureError struct {
	*DiscoveryError
}

// NewDecryptionFailureError creates a new decryption failure error
func NewDecryptionFailureError(cause error) *DecryptionFailureError {
	return &DecryptionFailureError{
		DiscoveryError: &DiscoveryError{
			Type:    "decryption_failure",
			Message: "discovery response failed authenticated decryption",
			Cause:   cause,
		},
	}
}

// ResponseLengthError represents a decrypted response whose length does not
// match the number of entries sent. Positional correspondence is broken, so
// the response is unusable; it is never truncated or padded to fit.
type ResponseLengthError struct {
	*DiscoveryError
	Expected int `json:"expected"`
	Actual   int `json:"actual"`
}

// NewResponseLengthError creates a new response length error
func NewResponseLengthError(expected, actual int) *ResponseLengthError {
	return &ResponseLengthError{
		DiscoveryError: &DiscoveryError{
			Type:    "response_length_mismatch",
			Message: fmt.Sprintf("decrypted response has %d bytes for %d entries", actual, expected),
		},
		Expected: expected,
		Actual:   actual,
	}
}

// InvalidEntryError represents a candidate identifier that cannot be
// normalized into the fixed-width encoding
type InvalidEntryError struct {
	*DiscoveryError
	Entry string `json:"entry"`
}

// NewInvalidEntryError creates a new invalid entry error
func NewInvalidEntryError(entry, message string) *InvalidEntryError {
	return &InvalidEntryError{
		DiscoveryError: &DiscoveryError{
			Type:    "invalid_entry",
			Message: fmt.Sprintf("invalid address book entry %q: %s", entry, message),
		},
		Entry: entry,
	}
}
