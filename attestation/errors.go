package attestation

import (
	"fmt"
)

// Every fatal verification condition gets its own error kind so callers can
// distinguish them with errors.As. A quote that fails any check must never
// be used to derive keys, so all of these abort the handshake.

// AttestationError is the base error type for attestation failures
type AttestationError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Cause   error  `json:"cause,omitempty"`
}

// Error implements the error interface
func (e *AttestationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *AttestationError) Unwrap() error {
	return e.Cause
}

// MalformedQuoteError represents a structurally invalid or untrustworthy
// quote: wrong length, unknown version or signature-type tag, out-of-range
// field, debug attribute set, or a report body that does not bind the
// server's static key.
type MalformedQuoteError struct {
	*AttestationError
}

// NewMalformedQuoteError creates a new malformed quote error
func NewMalformedQuoteError(message string, cause error) *MalformedQuoteError {
	return &MalformedQuoteError{
		AttestationError: &AttestationError{
			Type:    "malformed_quote",
			Message: message,
			Cause:   cause,
		},
	}
}

// MeasurementMismatchError represents a quote whose mrenclave does not match
// the expected enclave identity
type MeasurementMismatchError struct {
	*AttestationError
	Expected string `json:"expected"` // hex
	Actual   string `json:"actual"`   // hex
}

// NewMeasurementMismatchError creates a new measurement mismatch error
func NewMeasurementMismatchError(expected, actual string) *MeasurementMismatchError {
	return &MeasurementMismatchError{
		AttestationError: &AttestationError{
			Type:    "measurement_mismatch",
			Message: fmt.Sprintf("quote measurement %s does not match expected enclave identity %s", actual, expected),
		},
		Expected: expected,
		Actual:   actual,
	}
}

// SignatureChainInvalidError represents a certificate chain or signature
// verification failure over the attested body
type SignatureChainInvalidError struct {
	*AttestationError
}

// NewSignatureChainInvalidError creates a new signature chain error
func NewSignatureChainInvalidError(message string, cause error) *SignatureChainInvalidError {
	return &SignatureChainInvalidError{
		AttestationError: &AttestationError{
			Type:    "signature_chain_invalid",
			Message: message,
			Cause:   cause,
		},
	}
}
