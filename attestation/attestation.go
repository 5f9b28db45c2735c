// Package attestation implements the client side of the attested-discovery
// handshake: single-use key agreement, quote and signature-chain
// verification against a pinned enclave identity, and derivation of the
// handshake-bound session keys.
package attestation

import (
	"bytes"
	"crypto/sha256"
)

// AttestationMaterial is the raw result of the attestation exchange, as
// returned by the service. It is consumed once to produce a
// RemoteAttestation and holds no trust by itself.
type AttestationMaterial struct {
	ServerEphemeralPublic []byte
	ServerStaticPublic    []byte
	Quote                 []byte
	CertificateChain      []byte // PEM bundle, leaf first
	SignatureBody         []byte
	Signature             []byte
	Cookies               []string
}

// RemoteAttestation is the binding artifact of a verified handshake: the
// request identifier, the two directional session keys, and the session
// cookies that route follow-up requests to the same enclave instance.
// Lifetime is one discovery call.
type RemoteAttestation struct {
	RequestID  []byte
	SendKey    []byte
	ReceiveKey []byte
	Cookies    []string
}

// Config pins the enclave identity and trust anchor a client requires.
// Both are explicit configuration, never discovered at runtime.
type Config struct {
	ExpectedMeasurement []byte
	Trust               TrustRoot
}

// VerifyStaticKeyBinding checks that the verified quote's report data binds
// the server's static public key: the first 32 bytes of report data must be
// SHA-256 of the static key. Without this check the static key mixed into
// the key schedule would be unauthenticated.
func VerifyStaticKeyBinding(quote *Quote, serverStaticPublic []byte) error {
	digest := sha256.Sum256(serverStaticPublic)
	if !bytes.Equal(quote.ReportData[:len(digest)], digest[:]) {
		return NewMalformedQuoteError("quote report data does not bind server static key", nil)
	}
	return nil
}
