package attestation

import (
	"bytes"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"time"
)

// defaultMaxBodyAge bounds how old a signed attestation body may be before
// it is rejected as stale
const defaultMaxBodyAge = 24 * time.Hour

// bodyTimestampFormat is the timestamp layout used inside the signed body
const bodyTimestampFormat = "2006-01-02T15:04:05.999999"

// quoteStatusOK is the only acceptable verdict in the signed body
const quoteStatusOK = "OK"

// TrustRoot is the pinned trust anchor for signature verification. It is
// explicit configuration: the verifier never discovers roots at runtime.
type TrustRoot struct {
	// RootCertPEM holds the pinned root certificate(s), PEM encoded
	RootCertPEM []byte
	// MaxBodyAge overrides the staleness window; zero means the default
	MaxBodyAge time.Duration
}

// signedQuoteBody is the JSON document the attestation signature covers. It
// embeds the exact quote body being vouched for.
type signedQuoteBody struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Version     int    `json:"version"`
	QuoteStatus string `json:"isvEnclaveQuoteStatus"`
	QuoteBody   []byte `json:"isvEnclaveQuoteBody"`
}

// VerifyQuoteSignature validates the certificate chain up to the pinned
// trust root, verifies the detached signature over the signed body against
// the leaf certificate, and checks that the body vouches for exactly the
// quote bytes being trusted, with an OK status and a fresh timestamp. Any
// failure is a SignatureChainInvalidError and aborts the handshake.
func VerifyQuoteSignature(trust TrustRoot, certChainPEM, signatureBody, signature []byte, quote *Quote) error {
	chain, err := parseCertificateChain(certChainPEM)
	if err != nil {
		return NewSignatureChainInvalidError("failed to parse certificate chain", err)
	}
	if len(chain) == 0 {
		return NewSignatureChainInvalidError("certificate chain is empty", nil)
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(trust.RootCertPEM) {
		return NewSignatureChainInvalidError("pinned trust root contains no certificates", nil)
	}

	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}

	leaf := chain[0]
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
	}); err != nil {
		return NewSignatureChainInvalidError("certificate chain does not validate to pinned root", err)
	}

	var algo x509.SignatureAlgorithm
	switch leaf.PublicKeyAlgorithm {
	case x509.RSA:
		algo = x509.SHA256WithRSA
	case x509.ECDSA:
		algo = x509.ECDSAWithSHA256
	default:
		return NewSignatureChainInvalidError(fmt.Sprintf("unsupported leaf key algorithm: %s", leaf.PublicKeyAlgorithm), nil)
	}
	if err := leaf.CheckSignature(algo, signatureBody, signature); err != nil {
		return NewSignatureChainInvalidError("signature over attested body does not verify", err)
	}

	// Only now is the body's content trustworthy.
	var body signedQuoteBody
	if err := json.Unmarshal(signatureBody, &body); err != nil {
		return NewSignatureChainInvalidError("signed body is not valid JSON", err)
	}

	if body.QuoteStatus != quoteStatusOK {
		return NewSignatureChainInvalidError(fmt.Sprintf("quote status is %q, not %q", body.QuoteStatus, quoteStatusOK), nil)
	}

	timestamp, err := time.Parse(bodyTimestampFormat, body.Timestamp)
	if err != nil {
		return NewSignatureChainInvalidError("signed body carries an unparseable timestamp", err)
	}
	maxAge := trust.MaxBodyAge
	if maxAge == 0 {
		maxAge = defaultMaxBodyAge
	}
	if time.Since(timestamp) > maxAge {
		return NewSignatureChainInvalidError(fmt.Sprintf("signed body is stale: %s is older than %s", body.Timestamp, maxAge), nil)
	}

	if !bytes.Equal(body.QuoteBody, quote.SignedBody()) {
		return NewSignatureChainInvalidError("signed body does not cover the received quote", nil)
	}

	return nil
}

// parseCertificateChain decodes a PEM bundle, leaf first
func parseCertificateChain(pemBytes []byte) ([]*x509.Certificate, error) {
	var chain []*x509.Certificate
	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("invalid certificate in chain: %w", err)
		}
		chain = append(chain, cert)
	}
	return chain, nil
}
