package attestation

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"testing"
)

func serverKeys(t *testing.T) (ephemeral, static *ecdh.PrivateKey) {
	t.Helper()
	ephemeral, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate server ephemeral key: %v", err)
	}
	static, err = ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate server static key: %v", err)
	}
	return ephemeral, static
}

func TestGenerateKeyPairUnique(t *testing.T) {
	first, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}
	second, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}

	if bytes.Equal(first.PublicKey(), second.PublicKey()) {
		t.Fatal("two generated key pairs share a public key")
	}
	if len(first.PublicKey()) != PublicKeyLength {
		t.Fatalf("public key has %d bytes", len(first.PublicKey()))
	}
}

func TestPublicKeyReturnsCopy(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}

	pub := kp.PublicKey()
	pub[0] ^= 0xFF
	if bytes.Equal(pub, kp.PublicKey()) {
		t.Fatal("mutating the returned public key affected the key pair")
	}
}

func TestDeriveSessionKeys(t *testing.T) {
	ephemeral, static := serverKeys(t)
	quote := []byte("not a real quote, but derivation only hashes it")

	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}

	keys, err := DeriveSessionKeys(kp, ephemeral.PublicKey().Bytes(), static.PublicKey().Bytes(), quote)
	if err != nil {
		t.Fatalf("derivation failed: %v", err)
	}

	if len(keys.SendKey) != 32 || len(keys.ReceiveKey) != 32 || len(keys.RequestID) != 32 {
		t.Fatalf("unexpected output lengths: %d/%d/%d", len(keys.SendKey), len(keys.ReceiveKey), len(keys.RequestID))
	}
	if bytes.Equal(keys.SendKey, keys.ReceiveKey) {
		t.Fatal("send and receive keys are identical")
	}
}

func TestDeriveSessionKeysConsumesKeyPair(t *testing.T) {
	ephemeral, static := serverKeys(t)
	quote := []byte("quote")

	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}

	if _, err := DeriveSessionKeys(kp, ephemeral.PublicKey().Bytes(), static.PublicKey().Bytes(), quote); err != nil {
		t.Fatalf("first derivation failed: %v", err)
	}
	if _, err := DeriveSessionKeys(kp, ephemeral.PublicKey().Bytes(), static.PublicKey().Bytes(), quote); err == nil {
		t.Fatal("second derivation from a consumed key pair succeeded")
	}
}

func TestDeriveSessionKeysDeterministic(t *testing.T) {
	ephemeral, static := serverKeys(t)
	quote := []byte("quote")

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("failed to read seed: %v", err)
	}
	privateKey, err := ecdh.X25519().NewPrivateKey(seed)
	if err != nil {
		t.Fatalf("failed to build private key: %v", err)
	}

	first, err := DeriveSessionKeys(&EphemeralKeyPair{privateKey: privateKey}, ephemeral.PublicKey().Bytes(), static.PublicKey().Bytes(), quote)
	if err != nil {
		t.Fatalf("first derivation failed: %v", err)
	}
	second, err := DeriveSessionKeys(&EphemeralKeyPair{privateKey: privateKey}, ephemeral.PublicKey().Bytes(), static.PublicKey().Bytes(), quote)
	if err != nil {
		t.Fatalf("second derivation failed: %v", err)
	}

	if !bytes.Equal(first.SendKey, second.SendKey) || !bytes.Equal(first.ReceiveKey, second.ReceiveKey) || !bytes.Equal(first.RequestID, second.RequestID) {
		t.Fatal("derivation is not deterministic for identical inputs")
	}
}

func TestDeriveSessionKeysBindsQuote(t *testing.T) {
	ephemeral, static := serverKeys(t)

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("failed to read seed: %v", err)
	}
	privateKey, err := ecdh.X25519().NewPrivateKey(seed)
	if err != nil {
		t.Fatalf("failed to build private key: %v", err)
	}

	first, err := DeriveSessionKeys(&EphemeralKeyPair{privateKey: privateKey}, ephemeral.PublicKey().Bytes(), static.PublicKey().Bytes(), []byte("quote one"))
	if err != nil {
		t.Fatalf("first derivation failed: %v", err)
	}
	second, err := DeriveSessionKeys(&EphemeralKeyPair{privateKey: privateKey}, ephemeral.PublicKey().Bytes(), static.PublicKey().Bytes(), []byte("quote two"))
	if err != nil {
		t.Fatalf("second derivation failed: %v", err)
	}

	if bytes.Equal(first.SendKey, second.SendKey) {
		t.Fatal("different quotes produced the same send key")
	}
	if bytes.Equal(first.RequestID, second.RequestID) {
		t.Fatal("different quotes produced the same request id")
	}
}

func TestDeriveSessionKeysRejectsBadServerKeys(t *testing.T) {
	_, static := serverKeys(t)

	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}
	if _, err := DeriveSessionKeys(kp, []byte("short"), static.PublicKey().Bytes(), []byte("quote")); err == nil {
		t.Fatal("derivation accepted a malformed server ephemeral key")
	}
}
