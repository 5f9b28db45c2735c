package attestation_test

import (
	"errors"
	"testing"
	"time"

	"cds-client/attestation"
	"cds-client/testutil"
)

func enclaveAndQuote(t *testing.T) (*testutil.Enclave, *attestation.Quote) {
	t.Helper()
	enclave := testutil.NewEnclave(t, testMeasurement())
	quote, err := attestation.ParseQuote(enclave.QuoteBytes())
	if err != nil {
		t.Fatalf("failed to parse quote: %v", err)
	}
	return enclave, quote
}

func TestVerifyQuoteSignature(t *testing.T) {
	enclave, quote := enclaveAndQuote(t)
	body, signature := enclave.SignBody(t, quote.Raw(), "OK", time.Now())

	trust := attestation.TrustRoot{RootCertPEM: enclave.RootPEM}
	if err := attestation.VerifyQuoteSignature(trust, enclave.LeafPEM, body, signature, quote); err != nil {
		t.Fatalf("valid chain and signature rejected: %v", err)
	}
}

func TestVerifyQuoteSignatureTamperedSignature(t *testing.T) {
	enclave, quote := enclaveAndQuote(t)
	body, signature := enclave.SignBody(t, quote.Raw(), "OK", time.Now())
	signature[len(signature)/2] ^= 0x01

	trust := attestation.TrustRoot{RootCertPEM: enclave.RootPEM}
	var chainErr *attestation.SignatureChainInvalidError
	if err := attestation.VerifyQuoteSignature(trust, enclave.LeafPEM, body, signature, quote); !errors.As(err, &chainErr) {
		t.Fatalf("expected SignatureChainInvalidError, got %v", err)
	}
}

func TestVerifyQuoteSignatureWrongRoot(t *testing.T) {
	enclave, quote := enclaveAndQuote(t)
	body, signature := enclave.SignBody(t, quote.Raw(), "OK", time.Now())

	// pin a different root: the chain must not validate even though the
	// signature itself is genuine
	other := testutil.NewEnclave(t, testMeasurement())
	trust := attestation.TrustRoot{RootCertPEM: other.RootPEM}

	var chainErr *attestation.SignatureChainInvalidError
	if err := attestation.VerifyQuoteSignature(trust, enclave.LeafPEM, body, signature, quote); !errors.As(err, &chainErr) {
		t.Fatalf("expected SignatureChainInvalidError, got %v", err)
	}
}

func TestVerifyQuoteSignatureBadStatus(t *testing.T) {
	enclave, quote := enclaveAndQuote(t)
	body, signature := enclave.SignBody(t, quote.Raw(), "GROUP_OUT_OF_DATE", time.Now())

	trust := attestation.TrustRoot{RootCertPEM: enclave.RootPEM}
	var chainErr *attestation.SignatureChainInvalidError
	if err := attestation.VerifyQuoteSignature(trust, enclave.LeafPEM, body, signature, quote); !errors.As(err, &chainErr) {
		t.Fatalf("expected SignatureChainInvalidError, got %v", err)
	}
}

func TestVerifyQuoteSignatureStaleBody(t *testing.T) {
	enclave, quote := enclaveAndQuote(t)
	body, signature := enclave.SignBody(t, quote.Raw(), "OK", time.Now().Add(-25*time.Hour))

	trust := attestation.TrustRoot{RootCertPEM: enclave.RootPEM}
	var chainErr *attestation.SignatureChainInvalidError
	if err := attestation.VerifyQuoteSignature(trust, enclave.LeafPEM, body, signature, quote); !errors.As(err, &chainErr) {
		t.Fatalf("expected SignatureChainInvalidError, got %v", err)
	}

	// a wider configured window accepts the same body
	relaxed := attestation.TrustRoot{RootCertPEM: enclave.RootPEM, MaxBodyAge: 48 * time.Hour}
	if err := attestation.VerifyQuoteSignature(relaxed, enclave.LeafPEM, body, signature, quote); err != nil {
		t.Fatalf("body within the configured window rejected: %v", err)
	}
}

func TestVerifyQuoteSignatureBodyCoversDifferentQuote(t *testing.T) {
	enclave, quote := enclaveAndQuote(t)

	// sign a different quote's body and present it with ours
	otherQuote := testutil.BuildQuote(testutil.QuoteConfig{Measurement: testutil.NewEnclave(t, testMeasurement()).Measurement, ReportData: []byte("other report data")})
	body, signature := enclave.SignBody(t, otherQuote, "OK", time.Now())

	trust := attestation.TrustRoot{RootCertPEM: enclave.RootPEM}
	var chainErr *attestation.SignatureChainInvalidError
	if err := attestation.VerifyQuoteSignature(trust, enclave.LeafPEM, body, signature, quote); !errors.As(err, &chainErr) {
		t.Fatalf("expected SignatureChainInvalidError, got %v", err)
	}
}

func TestVerifyQuoteSignatureEmptyChain(t *testing.T) {
	enclave, quote := enclaveAndQuote(t)
	body, signature := enclave.SignBody(t, quote.Raw(), "OK", time.Now())

	trust := attestation.TrustRoot{RootCertPEM: enclave.RootPEM}
	var chainErr *attestation.SignatureChainInvalidError
	if err := attestation.VerifyQuoteSignature(trust, nil, body, signature, quote); !errors.As(err, &chainErr) {
		t.Fatalf("expected SignatureChainInvalidError, got %v", err)
	}
}

func TestValidMeasurementInvalidChainStillRejected(t *testing.T) {
	// A valid measurement never rescues a quote with an invalid chain.
	enclave, quote := enclaveAndQuote(t)
	if err := quote.VerifyMeasurement(testMeasurement()); err != nil {
		t.Fatalf("measurement should verify: %v", err)
	}

	body, signature := enclave.SignBody(t, quote.Raw(), "OK", time.Now())
	signature[0] ^= 0x01

	trust := attestation.TrustRoot{RootCertPEM: enclave.RootPEM}
	var chainErr *attestation.SignatureChainInvalidError
	if err := attestation.VerifyQuoteSignature(trust, enclave.LeafPEM, body, signature, quote); !errors.As(err, &chainErr) {
		t.Fatalf("expected SignatureChainInvalidError, got %v", err)
	}
}
