package attestation

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/crypto/hkdf"
)

// PublicKeyLength is the length of an X25519 public key on the wire
const PublicKeyLength = 32

const (
	// sessionKeyLength is the length of each directional AES-256 key
	sessionKeyLength = 32
	// requestIDLength is the length of the derived request identifier
	requestIDLength = 32

	// hkdfLabel domain-separates the discovery session schedule from any
	// other use of the same key material
	hkdfLabel = "cds-discovery-session-v1"
)

// EphemeralKeyPair is a single-use X25519 key pair for one discovery call.
// DeriveSessionKeys consumes it; a consumed pair refuses to derive again, so
// key reuse across handshakes is impossible by construction.
type EphemeralKeyPair struct {
	privateKey *ecdh.PrivateKey
	consumed   atomic.Bool
}

// GenerateKeyPair generates a fresh X25519 key pair from crypto/rand
func GenerateKeyPair() (*EphemeralKeyPair, error) {
	privateKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key pair: %w", err)
	}
	return &EphemeralKeyPair{privateKey: privateKey}, nil
}

// PublicKey returns a copy of the public key bytes
func (kp *EphemeralKeyPair) PublicKey() []byte {
	pub := kp.privateKey.PublicKey().Bytes()
	out := make([]byte, len(pub))
	copy(out, pub)
	return out
}

// SessionKeys holds the handshake-bound key material for one discovery call.
// The keys are meaningless outside the attestation exchange that produced
// them: the raw quote is mixed into the derivation, so a different quote (or
// a replayed one under different keys) yields different output.
type SessionKeys struct {
	RequestID  []byte // request identifier, also the AEAD associated data
	SendKey    []byte // client -> server
	ReceiveKey []byte // server -> client
}

// DeriveSessionKeys performs the two X25519 agreements (local private key
// against the server's ephemeral and static public keys), concatenates the
// shared secrets, and runs one HKDF-SHA256 read over them salted with all
// three public keys and bound to the raw quote. Deterministic given the same
// inputs. Consumes the key pair.
func DeriveSessionKeys(kp *EphemeralKeyPair, serverEphemeralPublic, serverStaticPublic, rawQuote []byte) (*SessionKeys, error) {
	if kp.consumed.Swap(true) {
		return nil, errors.New("ephemeral key pair already consumed")
	}

	curve := ecdh.X25519()

	ephemeralKey, err := curve.NewPublicKey(serverEphemeralPublic)
	if err != nil {
		return nil, fmt.Errorf("invalid server ephemeral public key: %w", err)
	}
	staticKey, err := curve.NewPublicKey(serverStaticPublic)
	if err != nil {
		return nil, fmt.Errorf("invalid server static public key: %w", err)
	}

	ephemeralShared, err := kp.privateKey.ECDH(ephemeralKey)
	if err != nil {
		return nil, fmt.Errorf("ephemeral key agreement failed: %w", err)
	}
	staticShared, err := kp.privateKey.ECDH(staticKey)
	if err != nil {
		return nil, fmt.Errorf("static key agreement failed: %w", err)
	}

	// ikm = ephemeral DH || static DH, so the output is bound to the
	// server's long-lived identity as well as the per-handshake key
	ikm := make([]byte, 0, len(ephemeralShared)+len(staticShared))
	ikm = append(ikm, ephemeralShared...)
	ikm = append(ikm, staticShared...)

	clientPublic := kp.privateKey.PublicKey().Bytes()
	salt := make([]byte, 0, len(clientPublic)+len(serverEphemeralPublic)+len(serverStaticPublic))
	salt = append(salt, clientPublic...)
	salt = append(salt, serverEphemeralPublic...)
	salt = append(salt, serverStaticPublic...)

	quoteDigest := sha256.Sum256(rawQuote)
	info := append([]byte(hkdfLabel), quoteDigest[:]...)

	reader := hkdf.New(sha256.New, ikm, salt, info)
	material := make([]byte, sessionKeyLength+sessionKeyLength+requestIDLength)
	if _, err := io.ReadFull(reader, material); err != nil {
		return nil, fmt.Errorf("session key derivation failed: %w", err)
	}

	return &SessionKeys{
		SendKey:    material[0:sessionKeyLength],
		ReceiveKey: material[sessionKeyLength : 2*sessionKeyLength],
		RequestID:  material[2*sessionKeyLength:],
	}, nil
}
