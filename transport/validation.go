package transport

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// The attestation envelope is the one response whose fields feed directly
// into cryptographic verification, so its shape is checked against a schema
// before any field is trusted.

const attestationEnvelopeSchema = `{
	"type": "object",
	"required": [
		"serverEphemeralPublic",
		"serverStaticPublic",
		"quote",
		"certificates",
		"signatureBody",
		"signature"
	],
	"properties": {
		"serverEphemeralPublic": {"type": "string", "minLength": 1},
		"serverStaticPublic":    {"type": "string", "minLength": 1},
		"quote":                 {"type": "string", "minLength": 1},
		"certificates":          {"type": "string", "minLength": 1},
		"signatureBody":         {"type": "string", "minLength": 1},
		"signature":             {"type": "string", "minLength": 1}
	}
}`

var (
	attestationSchema     *gojsonschema.Schema
	attestationSchemaOnce sync.Once
	attestationSchemaErr  error
)

// ValidateAttestationEnvelope checks the raw attestation response against
// the envelope schema. Failures are malformed-response errors, not crypto
// errors: nothing from the payload has been interpreted yet.
func ValidateAttestationEnvelope(raw []byte) error {
	attestationSchemaOnce.Do(func() {
		attestationSchema, attestationSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(attestationEnvelopeSchema))
	})
	if attestationSchemaErr != nil {
		return fmt.Errorf("failed to compile attestation envelope schema: %w", attestationSchemaErr)
	}

	result, err := attestationSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return NewMalformedResponseError("attestation response is not valid JSON", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return NewMalformedResponseError("attestation response has invalid shape: "+strings.Join(details, "; "), nil)
	}
	return nil
}
