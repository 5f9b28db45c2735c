// Package discovery implements the attested contact-discovery call: it
// drives the handshake from ephemeral key generation through attestation
// verification to the encrypted positional exchange, and interprets the
// result. Each call is self-contained; nothing cryptographic survives it.
package discovery

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cds-client/attestation"
	"cds-client/shared"
)

// Phase is the position of a discovery call in its state machine. A call
// only moves forward; any verification failure is terminal and a retry
// starts over from PhaseInit with a fresh key pair.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseKeyGenerated
	PhaseAttestationFetched
	PhaseQuoteVerified
	PhaseSignatureVerified
	PhaseKeysDerived
	PhaseRequestEncoded
	PhaseResponseReceived
	PhaseResponseDecoded
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "Init"
	case PhaseKeyGenerated:
		return "KeyGenerated"
	case PhaseAttestationFetched:
		return "AttestationFetched"
	case PhaseQuoteVerified:
		return "QuoteVerified"
	case PhaseSignatureVerified:
		return "SignatureVerified"
	case PhaseKeysDerived:
		return "KeysDerived"
	case PhaseRequestEncoded:
		return "RequestEncoded"
	case PhaseResponseReceived:
		return "ResponseReceived"
	case PhaseResponseDecoded:
		return "ResponseDecoded"
	case PhaseDone:
		return "Done"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ClientConfig carries the per-enclave trust configuration. Expected
// measurement and trust root are explicit values, pinned before use.
type ClientConfig struct {
	EnclaveID           string
	ExpectedMeasurement []byte
	Trust               attestation.TrustRoot
}

// Client runs attested discovery calls against one enclave. It holds no
// per-call state: concurrent calls are independent, each owning its own
// key pair, attestation material, and derived keys.
type Client struct {
	config      ClientConfig
	service     Service
	credentials CredentialsProvider
	feedback    *FeedbackReporter
	logger      *shared.Logger
}

// NewClient creates a discovery client over the given service transport
func NewClient(config ClientConfig, service Service, credentials CredentialsProvider, logger *shared.Logger) *Client {
	if logger == nil {
		logger = shared.NewNopLogger()
	}
	return &Client{
		config:      config,
		service:     service,
		credentials: credentials,
		feedback:    NewFeedbackReporter(service, logger.Component("feedback")),
		logger:      logger,
	}
}

// Feedback exposes the reporter so callers can send match/mismatch after
// comparing the discovery result against their own expectations
func (c *Client) Feedback() *FeedbackReporter {
	return c.feedback
}

// GetRegisteredContacts runs one complete discovery call and returns the
// registered identifiers, '+'-prefixed, in input order. Duplicate inputs are
// scored independently by position. On any verification failure the call
// fails closed with a distinct error kind; attestation failures and
// post-attestation protocol failures are additionally reported through the
// feedback channel before propagating.
func (c *Client) GetRegisteredContacts(ctx context.Context, numbers []string) ([]string, error) {
	results, err := c.Discover(ctx, numbers)
	if err != nil {
		return nil, err
	}

	registered := make([]string, 0, len(results))
	for _, result := range results {
		if result.Registered {
			registered = append(registered, result.Entry.E164())
		}
	}
	return registered, nil
}

// Discover runs one complete discovery call and returns the per-entry
// results, one per input, in input order.
func (c *Client) Discover(ctx context.Context, numbers []string) ([]MatchResult, error) {
	call := uuid.NewString()
	logger := c.logger.WithCall(call)
	phase := PhaseInit

	fail := func(err error) ([]MatchResult, error) {
		logger.Warn("discovery call failed",
			zap.String("phase", phase.String()),
			zap.Error(err))
		return nil, err
	}

	entries, err := NormalizeEntries(numbers)
	if err != nil {
		return fail(err)
	}

	keyPair, err := attestation.GenerateKeyPair()
	if err != nil {
		return fail(err)
	}
	phase = PhaseKeyGenerated

	authToken, err := c.credentials.GetAuthToken()
	if err != nil {
		return fail(err)
	}

	material, err := c.service.FetchAttestation(ctx, c.config.EnclaveID, keyPair.PublicKey(), authToken)
	if err != nil {
		return fail(err)
	}
	phase = PhaseAttestationFetched

	quote, err := attestation.ParseQuote(material.Quote)
	if err != nil {
		c.feedback.ReportAttestationError(ctx, err.Error())
		return fail(err)
	}
	if quote.IsDebug() {
		err = attestation.NewMalformedQuoteError("quote was produced by a debug-mode enclave", nil)
		c.feedback.ReportAttestationError(ctx, err.Error())
		return fail(err)
	}
	if err := quote.VerifyMeasurement(c.config.ExpectedMeasurement); err != nil {
		c.feedback.ReportAttestationError(ctx, err.Error())
		return fail(err)
	}
	phase = PhaseQuoteVerified

	if err := attestation.VerifyQuoteSignature(c.config.Trust, material.CertificateChain, material.SignatureBody, material.Signature, quote); err != nil {
		c.feedback.ReportAttestationError(ctx, err.Error())
		return fail(err)
	}
	if err := attestation.VerifyStaticKeyBinding(quote, material.ServerStaticPublic); err != nil {
		c.feedback.ReportAttestationError(ctx, err.Error())
		return fail(err)
	}
	phase = PhaseSignatureVerified

	keys, err := attestation.DeriveSessionKeys(keyPair, material.ServerEphemeralPublic, material.ServerStaticPublic, material.Quote)
	if err != nil {
		return fail(err)
	}
	remote := &attestation.RemoteAttestation{
		RequestID:  keys.RequestID,
		SendKey:    keys.SendKey,
		ReceiveKey: keys.ReceiveKey,
		Cookies:    material.Cookies,
	}
	phase = PhaseKeysDerived
	logger.Debug("attestation verified, session keys derived",
		zap.String("enclave_id", c.config.EnclaveID),
		zap.Int("entries", len(entries)))

	request, err := BuildRequest(entries, remote)
	if err != nil {
		return fail(err)
	}
	phase = PhaseRequestEncoded

	response, err := c.service.SendDiscoveryRequest(ctx, c.config.EnclaveID, authToken, request, remote.Cookies)
	if err != nil {
		return fail(err)
	}
	phase = PhaseResponseReceived

	results, err := ParseResponse(response, remote, entries)
	if err != nil {
		var decryptionErr *DecryptionFailureError
		var lengthErr *ResponseLengthError
		if errors.As(err, &decryptionErr) || errors.As(err, &lengthErr) {
			c.feedback.ReportUnexpectedError(ctx, err.Error())
		}
		return fail(err)
	}
	phase = PhaseResponseDecoded
	logger.Debug("response decoded", zap.String("phase", phase.String()))

	phase = PhaseDone
	logger.Info("discovery call complete",
		zap.String("phase", phase.String()),
		zap.Int("entries", len(entries)))
	return results, nil
}
