package attestation_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"cds-client/attestation"
	"cds-client/testutil"
)

func testMeasurement() []byte {
	m := make([]byte, attestation.MeasurementLength)
	for i := range m {
		m[i] = byte(i + 1)
	}
	return m
}

func TestParseQuoteFields(t *testing.T) {
	measurement := testMeasurement()
	raw := testutil.BuildQuote(testutil.QuoteConfig{
		Version:       2,
		SignatureType: 1,
		Measurement:   measurement,
	})

	quote, err := attestation.ParseQuote(raw)
	if err != nil {
		t.Fatalf("failed to parse quote: %v", err)
	}

	if quote.Version != 2 {
		t.Errorf("wrong version: %d", quote.Version)
	}
	if !quote.SignatureLinkable {
		t.Error("signature type 1 should be linkable")
	}
	if quote.PCESVN != 2 {
		t.Errorf("wrong pce svn: %d", quote.PCESVN)
	}
	if quote.IsDebug() {
		t.Error("debug flag should be clear")
	}
	if err := quote.VerifyMeasurement(measurement); err != nil {
		t.Errorf("measurement should verify: %v", err)
	}
	if len(quote.SignedBody()) != 432 {
		t.Errorf("signed body has %d bytes", len(quote.SignedBody()))
	}
}

func TestParseQuoteTooShort(t *testing.T) {
	raw := testutil.BuildQuote(testutil.QuoteConfig{Measurement: testMeasurement()})

	var malformed *attestation.MalformedQuoteError
	if _, err := attestation.ParseQuote(raw[:435]); !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedQuoteError, got %v", err)
	}
	if _, err := attestation.ParseQuote(nil); !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedQuoteError for empty quote, got %v", err)
	}
}

func TestParseQuoteUnknownVersion(t *testing.T) {
	raw := testutil.BuildQuote(testutil.QuoteConfig{Version: 3, Measurement: testMeasurement()})

	var malformed *attestation.MalformedQuoteError
	if _, err := attestation.ParseQuote(raw); !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedQuoteError, got %v", err)
	}
}

func TestParseQuoteUnknownSignatureType(t *testing.T) {
	raw := testutil.BuildQuote(testutil.QuoteConfig{SignatureType: 9, Measurement: testMeasurement()})

	var malformed *attestation.MalformedQuoteError
	if _, err := attestation.ParseQuote(raw); !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedQuoteError, got %v", err)
	}
}

func TestParseQuoteSignatureLengthMismatch(t *testing.T) {
	raw := testutil.BuildQuote(testutil.QuoteConfig{Measurement: testMeasurement()})
	// declare more signature bytes than the quote carries
	binary.LittleEndian.PutUint32(raw[432:], 1024)

	var malformed *attestation.MalformedQuoteError
	if _, err := attestation.ParseQuote(raw); !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedQuoteError, got %v", err)
	}

	// trailing garbage beyond the declared signature
	raw = testutil.BuildQuote(testutil.QuoteConfig{Measurement: testMeasurement()})
	raw = append(raw, 0x00)
	if _, err := attestation.ParseQuote(raw); !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedQuoteError for trailing bytes, got %v", err)
	}
}

func TestDebugQuote(t *testing.T) {
	raw := testutil.BuildQuote(testutil.QuoteConfig{Flags: 0x02, Measurement: testMeasurement()})

	quote, err := attestation.ParseQuote(raw)
	if err != nil {
		t.Fatalf("failed to parse quote: %v", err)
	}
	if !quote.IsDebug() {
		t.Error("debug flag should be set")
	}
}

func TestMeasurementMismatchSingleByte(t *testing.T) {
	measurement := testMeasurement()
	raw := testutil.BuildQuote(testutil.QuoteConfig{Measurement: measurement})
	quote, err := attestation.ParseQuote(raw)
	if err != nil {
		t.Fatalf("failed to parse quote: %v", err)
	}

	// flip one byte at every position; each must be rejected
	for i := range measurement {
		expected := append([]byte(nil), measurement...)
		expected[i] ^= 0x01

		var mismatch *attestation.MeasurementMismatchError
		if err := quote.VerifyMeasurement(expected); !errors.As(err, &mismatch) {
			t.Fatalf("byte %d: expected MeasurementMismatchError, got %v", i, err)
		}
	}
}

func TestMeasurementWrongLength(t *testing.T) {
	raw := testutil.BuildQuote(testutil.QuoteConfig{Measurement: testMeasurement()})
	quote, err := attestation.ParseQuote(raw)
	if err != nil {
		t.Fatalf("failed to parse quote: %v", err)
	}

	var malformed *attestation.MalformedQuoteError
	if err := quote.VerifyMeasurement(testMeasurement()[:16]); !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedQuoteError, got %v", err)
	}
}
