package attestation

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Fixed offsets of the binary quote layout. All multibyte integers are
// little-endian. The first signedBodyLength bytes are what the attestation
// signature covers; the trailing signature blob (declared by the uint32 at
// sigLengthOffset) must consume the remainder exactly.
const (
	versionOffset    = 0
	signTypeOffset   = 2
	gidOffset        = 4
	qeSvnOffset      = 8
	pceSvnOffset     = 10
	basenameOffset   = 16
	cpuSvnOffset     = 48
	flagsOffset      = 96
	xfrmOffset       = 104
	mrenclaveOffset  = 112
	mrsignerOffset   = 176
	isvProdIDOffset  = 304
	isvSvnOffset     = 306
	reportDataOffset = 368
	sigLengthOffset  = 432
	signatureOffset  = 436
	signedBodyLength = 432
	basenameLength   = 32
	cpuSvnLength     = 16
	reportDataLength = 64
	// MeasurementLength is the length of the mrenclave digest
	MeasurementLength = 32
)

// debugFlag is the report-body attribute bit marking a debuggable enclave.
// A debug enclave's memory is inspectable from outside, so its quotes prove
// nothing.
const debugFlag = uint64(0x02)

// Quote is the parsed, read-only view of an attestation quote. The raw bytes
// are retained because the signature covers (and the key schedule binds) the
// exact bytes received, not the parsed fields.
type Quote struct {
	raw []byte

	Version           uint16
	SignatureLinkable bool
	GID               uint32
	QESVN             uint16
	PCESVN            uint16
	Basename          [basenameLength]byte
	CPUSVN            [cpuSvnLength]byte
	Flags             uint64
	Xfrm              uint64
	Mrenclave         [MeasurementLength]byte
	Mrsigner          [MeasurementLength]byte
	ISVProdID         uint16
	ISVSVN            uint16
	ReportData        [reportDataLength]byte
}

// ParseQuote parses the fixed-offset binary layout. Any structural anomaly
// is a MalformedQuoteError; nothing from a quote that fails here may be
// trusted.
func ParseQuote(raw []byte) (*Quote, error) {
	if len(raw) < signatureOffset {
		return nil, NewMalformedQuoteError(fmt.Sprintf("quote too short: %d bytes, need at least %d", len(raw), signatureOffset), nil)
	}

	version := binary.LittleEndian.Uint16(raw[versionOffset:])
	if version != 1 && version != 2 {
		return nil, NewMalformedQuoteError(fmt.Sprintf("unknown quote version: %d", version), nil)
	}

	signType := binary.LittleEndian.Uint16(raw[signTypeOffset:])
	if signType != 0 && signType != 1 {
		return nil, NewMalformedQuoteError(fmt.Sprintf("unknown signature type: %d", signType), nil)
	}

	sigLength := binary.LittleEndian.Uint32(raw[sigLengthOffset:])
	if uint64(len(raw)) != signatureOffset+uint64(sigLength) {
		return nil, NewMalformedQuoteError(fmt.Sprintf("quote length %d does not match declared signature length %d", len(raw), sigLength), nil)
	}

	q := &Quote{
		raw:               append([]byte(nil), raw...),
		Version:           version,
		SignatureLinkable: signType == 1,
		GID:               binary.LittleEndian.Uint32(raw[gidOffset:]),
		QESVN:             binary.LittleEndian.Uint16(raw[qeSvnOffset:]),
		Flags:             binary.LittleEndian.Uint64(raw[flagsOffset:]),
		Xfrm:              binary.LittleEndian.Uint64(raw[xfrmOffset:]),
		ISVProdID:         binary.LittleEndian.Uint16(raw[isvProdIDOffset:]),
		ISVSVN:            binary.LittleEndian.Uint16(raw[isvSvnOffset:]),
	}
	if version > 1 {
		// reserved in version 1
		q.PCESVN = binary.LittleEndian.Uint16(raw[pceSvnOffset:])
	}
	copy(q.Basename[:], raw[basenameOffset:])
	copy(q.CPUSVN[:], raw[cpuSvnOffset:])
	copy(q.Mrenclave[:], raw[mrenclaveOffset:])
	copy(q.Mrsigner[:], raw[mrsignerOffset:])
	copy(q.ReportData[:], raw[reportDataOffset:])

	return q, nil
}

// Raw returns the quote bytes as received. Callers must treat the result as
// read-only.
func (q *Quote) Raw() []byte {
	return q.raw
}

// SignedBody returns the prefix of the quote covered by the attestation
// signature
func (q *Quote) SignedBody() []byte {
	return q.raw[:signedBodyLength]
}

// IsDebug reports whether the quote was produced by a debug-mode enclave
func (q *Quote) IsDebug() bool {
	return q.Flags&debugFlag != 0
}

// VerifyMeasurement compares the quote's mrenclave against the expected
// enclave identity in constant time. A mismatch means the server is running
// code we did not pin; the quote must not be used.
func (q *Quote) VerifyMeasurement(expected []byte) error {
	if len(expected) != MeasurementLength {
		return NewMalformedQuoteError(fmt.Sprintf("expected enclave identity has wrong length: %d", len(expected)), nil)
	}
	if subtle.ConstantTimeCompare(q.Mrenclave[:], expected) != 1 {
		return NewMeasurementMismatchError(hex.EncodeToString(expected), hex.EncodeToString(q.Mrenclave[:]))
	}
	return nil
}
