package discovery

import (
	"context"

	"cds-client/attestation"
)

// The core consumes the authenticated service channel through these
// interfaces. Transport concerns (TLS, framing, retries) live behind them;
// a transport failure is transient and the caller may retry the whole
// handshake with fresh key material, never resuming mid-handshake.

// CredentialsProvider supplies the bearer-style auth token for service calls
type CredentialsProvider interface {
	GetAuthToken() (string, error)
}

// AttestationService exchanges the client's public key for attestation
// material from the named enclave
type AttestationService interface {
	FetchAttestation(ctx context.Context, enclaveID string, clientPublic []byte, authToken string) (*attestation.AttestationMaterial, error)
}

// DiscoveryService submits an encrypted discovery request to the named
// enclave, carrying the attestation session cookies
type DiscoveryService interface {
	SendDiscoveryRequest(ctx context.Context, enclaveID string, authToken string, request *Request, cookies []string) (*Response, error)
}

// FeedbackStatus identifies one of the directory feedback endpoints
type FeedbackStatus string

const (
	FeedbackMatch            FeedbackStatus = "match"
	FeedbackMismatch         FeedbackStatus = "mismatch"
	FeedbackAttestationError FeedbackStatus = "attestation-error"
	FeedbackUnexpectedError  FeedbackStatus = "unexpected-error"
)

// FeedbackService delivers best-effort diagnostics; reason is empty for
// match/mismatch
type FeedbackService interface {
	SendFeedback(ctx context.Context, status FeedbackStatus, reason string) error
}

// Service is the full transport surface one client needs
type Service interface {
	AttestationService
	DiscoveryService
	FeedbackService
}
