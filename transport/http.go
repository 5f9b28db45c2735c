// Package transport is the thin authenticated HTTP adapter behind the
// discovery core's service interfaces. It attaches credentials and session
// cookies, enforces the configured timeout, and supports cancelling every
// in-flight request sharing one transport. Retries and backoff are
// deliberately absent: a failed exchange is reported as transient and the
// caller restarts the handshake from scratch.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"cds-client/attestation"
	"cds-client/discovery"
	"cds-client/shared"
)

const (
	attestationPathFormat = "/v1/attestation/%s"
	discoveryPathFormat   = "/v1/discovery/%s"
	feedbackPathFormat    = "/v1/directory/feedback/%s"

	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "cds-client"
)

// Config is the process-wide transport configuration. Configure once before
// issuing calls; mutating it while calls are in flight is not supported.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// TLSClientConfig pins the connection to the directory service when set.
	// Nil uses the default verification.
	TLSClientConfig *tls.Config
}

// HTTPService implements discovery.Service over plain authenticated HTTP
type HTTPService struct {
	config    Config
	client    *http.Client
	logger    *shared.Logger
	cancelCtx context.Context
	cancelAll context.CancelFunc
}

// NewHTTPService creates a transport for the configured service
func NewHTTPService(config Config, logger *shared.Logger) *HTTPService {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = shared.NewNopLogger()
	}
	cancelCtx, cancelAll := context.WithCancel(context.Background())
	client := &http.Client{Timeout: config.Timeout}
	if config.TLSClientConfig != nil {
		client.Transport = &http.Transport{TLSClientConfig: config.TLSClientConfig}
	}
	return &HTTPService{
		config:    config,
		client:    client,
		logger:    logger,
		cancelCtx: cancelCtx,
		cancelAll: cancelAll,
	}
}

// CancelAllRequests aborts every in-flight request on this transport. Calls
// interrupted this way fail with a transient cancellation error rather than
// hanging. The transport is unusable afterwards.
func (s *HTTPService) CancelAllRequests() {
	s.cancelAll()
}

// attestationRequest is the body of the attestation exchange
type attestationRequest struct {
	ClientPublic []byte `json:"clientPublic"`
}

// attestationEnvelope is the attestation exchange response body
type attestationEnvelope struct {
	ServerEphemeralPublic []byte `json:"serverEphemeralPublic"`
	ServerStaticPublic    []byte `json:"serverStaticPublic"`
	Quote                 []byte `json:"quote"`
	Certificates          string `json:"certificates"` // PEM bundle, leaf first
	SignatureBody         string `json:"signatureBody"`
	Signature             []byte `json:"signature"`
}

// FetchAttestation exchanges the client public key for attestation material
// and captures the session cookies that pin follow-up requests to the same
// enclave instance
func (s *HTTPService) FetchAttestation(ctx context.Context, enclaveID string, clientPublic []byte, authToken string) (*attestation.AttestationMaterial, error) {
	body, err := json.Marshal(attestationRequest{ClientPublic: clientPublic})
	if err != nil {
		return nil, fmt.Errorf("failed to encode attestation request: %w", err)
	}

	respBody, cookies, err := s.put(ctx, fmt.Sprintf(attestationPathFormat, enclaveID), authToken, nil, body)
	if err != nil {
		return nil, err
	}

	if err := ValidateAttestationEnvelope(respBody); err != nil {
		return nil, err
	}

	var envelope attestationEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, NewMalformedResponseError("attestation response is not valid JSON", err)
	}

	return &attestation.AttestationMaterial{
		ServerEphemeralPublic: envelope.ServerEphemeralPublic,
		ServerStaticPublic:    envelope.ServerStaticPublic,
		Quote:                 envelope.Quote,
		CertificateChain:      []byte(envelope.Certificates),
		SignatureBody:         []byte(envelope.SignatureBody),
		Signature:             envelope.Signature,
		Cookies:               cookies,
	}, nil
}

// SendDiscoveryRequest submits the encrypted request under the attestation
// session cookies and returns the encrypted response
func (s *HTTPService) SendDiscoveryRequest(ctx context.Context, enclaveID string, authToken string, request *discovery.Request, cookies []string) (*discovery.Response, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode discovery request: %w", err)
	}

	respBody, _, err := s.put(ctx, fmt.Sprintf(discoveryPathFormat, enclaveID), authToken, cookies, body)
	if err != nil {
		return nil, err
	}

	var response discovery.Response
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, NewMalformedResponseError("discovery response is not valid JSON", err)
	}
	return &response, nil
}

// feedbackRequest is the optional body of a feedback call
type feedbackRequest struct {
	Reason string `json:"reason,omitempty"`
}

// SendFeedback posts one diagnostic to the directory feedback endpoint. The
// caller treats failures as ignorable; this method just reports them.
func (s *HTTPService) SendFeedback(ctx context.Context, status discovery.FeedbackStatus, reason string) error {
	var body []byte
	if reason != "" {
		var err error
		body, err = json.Marshal(feedbackRequest{Reason: reason})
		if err != nil {
			return fmt.Errorf("failed to encode feedback request: %w", err)
		}
	}
	_, _, err := s.put(ctx, fmt.Sprintf(feedbackPathFormat, status), "", nil, body)
	return err
}

// put issues one authenticated PUT and returns the response body and any
// session cookies set by the server
func (s *HTTPService) put(ctx context.Context, path, authToken string, cookies []string, body []byte) ([]byte, []string, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// propagate the transport-wide cancellation into this request
	stop := context.AfterFunc(s.cancelCtx, cancel)
	defer stop()

	url := s.config.BaseURL + path
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.config.UserAgent)
	if authToken != "" {
		req.Header.Set("Authorization", authToken)
	}
	for _, cookie := range cookies {
		req.Header.Add("Cookie", cookie)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, NewConnectionError(url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, NewConnectionError(url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("service returned non-success status",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return nil, nil, NewStatusError(url, resp.StatusCode)
	}

	var setCookies []string
	for _, cookie := range resp.Cookies() {
		setCookies = append(setCookies, cookie.String())
	}
	return respBody, setCookies, nil
}
