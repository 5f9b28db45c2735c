// Package testutil fakes the enclave side of the attested-discovery
// protocol so tests can exercise the full client pipeline without a
// service: synthetic quotes, a pinned certificate chain, the server half of
// the key schedule, and the encrypted positional response.
package testutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"encoding/json"
	"encoding/pem"
	"io"
	"math/big"
	"testing"
	"time"

	"golang.org/x/crypto/hkdf"

	"cds-client/attestation"
	"cds-client/discovery"
)

// sessionLabel must match the client's HKDF domain-separation label
const sessionLabel = "cds-discovery-session-v1"

// QuoteConfig controls the synthetic quote layout
type QuoteConfig struct {
	Version         uint16 // 0 means 2
	SignatureType   uint16
	Flags           uint64
	Measurement     []byte // 32 bytes
	Mrsigner        []byte // 32 bytes
	ReportData      []byte // up to 64 bytes
	SignatureLength int    // 0 means 64
}

// BuildQuote produces quote bytes in the fixed-offset binary layout
func BuildQuote(cfg QuoteConfig) []byte {
	if cfg.Version == 0 {
		cfg.Version = 2
	}
	sigLen := cfg.SignatureLength
	if sigLen == 0 {
		sigLen = 64
	}

	quote := make([]byte, 436+sigLen)
	binary.LittleEndian.PutUint16(quote[0:], cfg.Version)
	binary.LittleEndian.PutUint16(quote[2:], cfg.SignatureType)
	binary.LittleEndian.PutUint32(quote[4:], 0x0b0b) // gid
	binary.LittleEndian.PutUint16(quote[8:], 1)      // qe svn
	binary.LittleEndian.PutUint16(quote[10:], 2)     // pce svn
	copy(quote[16:48], []byte("synthetic-basename")) // basename
	copy(quote[48:64], []byte("cpusvn-0123456789"))  // cpu svn
	binary.LittleEndian.PutUint64(quote[96:], cfg.Flags)
	binary.LittleEndian.PutUint64(quote[104:], 7) // xfrm
	copy(quote[112:144], cfg.Measurement)
	copy(quote[176:208], cfg.Mrsigner)
	binary.LittleEndian.PutUint16(quote[304:], 42) // isv prod id
	binary.LittleEndian.PutUint16(quote[306:], 1)  // isv svn
	copy(quote[368:432], cfg.ReportData)
	binary.LittleEndian.PutUint32(quote[432:], uint32(sigLen))
	for i := 436; i < len(quote); i++ {
		quote[i] = 0xAA
	}
	return quote
}

// Enclave is the fake attested service: it owns ephemeral and static X25519
// keys, a self-signed pinned root, and a leaf signing certificate
type Enclave struct {
	Measurement  []byte
	EphemeralKey *ecdh.PrivateKey
	StaticKey    *ecdh.PrivateKey
	RootPEM      []byte
	LeafPEM      []byte

	leafKey *ecdsa.PrivateKey
}

// NewEnclave creates a fake enclave pinned to the given measurement
func NewEnclave(t *testing.T, measurement []byte) *Enclave {
	t.Helper()

	ephemeralKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate ephemeral key: %v", err)
	}
	staticKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate static key: %v", err)
	}

	now := time.Now()
	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate root key: %v", err)
	}
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Attestation Root"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	if err != nil {
		t.Fatalf("failed to create root certificate: %v", err)
	}
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		t.Fatalf("failed to parse root certificate: %v", err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate leaf key: %v", err)
	}
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Test Attestation Signer"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, rootCert, &leafKey.PublicKey, rootKey)
	if err != nil {
		t.Fatalf("failed to create leaf certificate: %v", err)
	}

	return &Enclave{
		Measurement:  measurement,
		EphemeralKey: ephemeralKey,
		StaticKey:    staticKey,
		RootPEM:      pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: rootDER}),
		LeafPEM:      pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leafDER}),
		leafKey:      leafKey,
	}
}

// QuoteBytes builds a quote whose report data binds the enclave's static key
func (e *Enclave) QuoteBytes() []byte {
	reportData := make([]byte, 64)
	digest := sha256.Sum256(e.StaticKey.PublicKey().Bytes())
	copy(reportData, digest[:])
	return BuildQuote(QuoteConfig{
		Measurement: e.Measurement,
		Mrsigner:    bytesRepeat(0x5b, 32),
		ReportData:  reportData,
	})
}

// SignBody produces the signed attestation body covering the quote, plus the
// leaf signature over it
func (e *Enclave) SignBody(t *testing.T, quote []byte, status string, timestamp time.Time) (body, signature []byte) {
	t.Helper()

	body, err := json.Marshal(map[string]interface{}{
		"id":                    "165011016905419234971967611219796",
		"timestamp":             timestamp.UTC().Format("2006-01-02T15:04:05.999999"),
		"version":               3,
		"isvEnclaveQuoteStatus": status,
		"isvEnclaveQuoteBody":   quote[:432],
	})
	if err != nil {
		t.Fatalf("failed to marshal signed body: %v", err)
	}

	digest := sha256.Sum256(body)
	signature, err = ecdsa.SignASN1(rand.Reader, e.leafKey, digest[:])
	if err != nil {
		t.Fatalf("failed to sign body: %v", err)
	}
	return body, signature
}

// AttestationMaterial assembles a complete, valid attestation exchange
// result for the enclave
func (e *Enclave) AttestationMaterial(t *testing.T) *attestation.AttestationMaterial {
	t.Helper()

	quote := e.QuoteBytes()
	body, signature := e.SignBody(t, quote, "OK", time.Now())
	return &attestation.AttestationMaterial{
		ServerEphemeralPublic: e.EphemeralKey.PublicKey().Bytes(),
		ServerStaticPublic:    e.StaticKey.PublicKey().Bytes(),
		Quote:                 quote,
		CertificateChain:      e.LeafPEM,
		SignatureBody:         body,
		Signature:             signature,
		Cookies:               []string{"session=0xdeadbeef"},
	}
}

// SessionKeys runs the server half of the key schedule against a client
// public key; it must agree byte for byte with the client's derivation
func (e *Enclave) SessionKeys(t *testing.T, clientPublic, rawQuote []byte) *attestation.SessionKeys {
	t.Helper()

	clientKey, err := ecdh.X25519().NewPublicKey(clientPublic)
	if err != nil {
		t.Fatalf("invalid client public key: %v", err)
	}
	ephemeralShared, err := e.EphemeralKey.ECDH(clientKey)
	if err != nil {
		t.Fatalf("ephemeral agreement failed: %v", err)
	}
	staticShared, err := e.StaticKey.ECDH(clientKey)
	if err != nil {
		t.Fatalf("static agreement failed: %v", err)
	}

	ikm := append(append([]byte(nil), ephemeralShared...), staticShared...)
	salt := append(append(append([]byte(nil), clientPublic...), e.EphemeralKey.PublicKey().Bytes()...), e.StaticKey.PublicKey().Bytes()...)
	quoteDigest := sha256.Sum256(rawQuote)
	info := append([]byte(sessionLabel), quoteDigest[:]...)

	reader := hkdf.New(sha256.New, ikm, salt, info)
	material := make([]byte, 96)
	if _, err := io.ReadFull(reader, material); err != nil {
		t.Fatalf("server key derivation failed: %v", err)
	}
	return &attestation.SessionKeys{
		SendKey:    material[0:32],
		ReceiveKey: material[32:64],
		RequestID:  material[64:96],
	}
}

// HandleDiscoveryRequest decrypts the client's request (failing the test on
// a bad envelope) and returns the encrypted positional response for the
// given registration bytes
func (e *Enclave) HandleDiscoveryRequest(t *testing.T, keys *attestation.SessionKeys, request *discovery.Request, registered []byte) *discovery.Response {
	t.Helper()

	sendAEAD := newGCM(t, keys.SendKey)
	sealed := append(append([]byte(nil), request.Data...), request.MAC...)
	plaintext, err := sendAEAD.Open(nil, request.IV, sealed, request.RequestID)
	if err != nil {
		t.Fatalf("server failed to decrypt discovery request: %v", err)
	}
	if len(plaintext) != request.AddressCount*8 {
		t.Fatalf("request plaintext has %d bytes for %d addresses", len(plaintext), request.AddressCount)
	}

	receiveAEAD := newGCM(t, keys.ReceiveKey)
	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		t.Fatalf("failed to generate response nonce: %v", err)
	}
	sealedResp := receiveAEAD.Seal(nil, nonce, registered, keys.RequestID)
	tagStart := len(sealedResp) - 16
	return &discovery.Response{
		IV:   nonce,
		Data: sealedResp[:tagStart],
		MAC:  sealedResp[tagStart:],
	}
}

func newGCM(t *testing.T, key []byte) cipher.AEAD {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("failed to create GCM: %v", err)
	}
	return aead
}

func bytesRepeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
