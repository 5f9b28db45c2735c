package discovery

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"cds-client/attestation"
)

const (
	gcmNonceLength = 12
	gcmTagLength   = 16
)

// Request is the wire-level ciphertext envelope for one discovery call
type Request struct {
	AddressCount int    `json:"addressCount"`
	RequestID    []byte `json:"requestId"`
	IV           []byte `json:"iv"`
	Data         []byte `json:"data"`
	MAC          []byte `json:"mac"`
}

// Response is the wire-level ciphertext envelope of the service's answer
type Response struct {
	IV   []byte `json:"iv"`
	Data []byte `json:"data"`
	MAC  []byte `json:"mac"`
}

// BuildRequest encodes the entries in order into one fixed-width buffer and
// encrypts it under the attestation's send key, with the request identifier
// as associated data and a fresh random nonce. Pure function of its inputs
// apart from the nonce; the entry sequence is used exactly as given.
func BuildRequest(entries []AddressBookEntry, att *attestation.RemoteAttestation) (*Request, error) {
	plaintext, err := encodeEntries(entries)
	if err != nil {
		return nil, err
	}

	aead, err := newGCM(att.SendKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcmNonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate request nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, att.RequestID)
	tagStart := len(sealed) - gcmTagLength

	return &Request{
		AddressCount: len(entries),
		RequestID:    att.RequestID,
		IV:           nonce,
		Data:         sealed[:tagStart],
		MAC:          sealed[tagStart:],
	}, nil
}

// ParseResponse decrypts the response under the attestation's receive key
// and interprets the plaintext positionally: byte i answers for entry i,
// non-zero meaning registered. It fails closed: a tag failure yields a
// DecryptionFailureError and no plaintext, and a plaintext whose length is
// not exactly one byte per entry yields a ResponseLengthError rather than a
// guessed alignment.
func ParseResponse(resp *Response, att *attestation.RemoteAttestation, entries []AddressBookEntry) ([]MatchResult, error) {
	aead, err := newGCM(att.ReceiveKey)
	if err != nil {
		return nil, err
	}
	if len(resp.IV) != gcmNonceLength {
		return nil, NewDecryptionFailureError(fmt.Errorf("response nonce has %d bytes, want %d", len(resp.IV), gcmNonceLength))
	}

	sealed := make([]byte, 0, len(resp.Data)+len(resp.MAC))
	sealed = append(sealed, resp.Data...)
	sealed = append(sealed, resp.MAC...)

	plaintext, err := aead.Open(nil, resp.IV, sealed, att.RequestID)
	if err != nil {
		return nil, NewDecryptionFailureError(err)
	}

	if len(plaintext) != len(entries) {
		return nil, NewResponseLengthError(len(entries), len(plaintext))
	}

	results := make([]MatchResult, len(entries))
	for i, entry := range entries {
		results[i] = MatchResult{Entry: entry, Registered: plaintext[i] != 0}
	}
	return results, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
