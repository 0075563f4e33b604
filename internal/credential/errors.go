package credential

import (
	"errors"
	"fmt"
)

// Reason classifies a verification failure.
type Reason string

const (
	ReasonMissing          Reason = "missing"
	ReasonMalformed        Reason = "malformed"
	ReasonExpired          Reason = "expired"
	ReasonSignatureInvalid Reason = "signature_invalid"
	ReasonRevoked          Reason = "revoked"
)

// VerificationError is returned for any credential the verifier rejects.
// Infrastructure failures (revocation lookups) are never VerificationErrors.
type VerificationError struct {
	Reason Reason
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential %s: %v", e.Reason, e.Err)
	}
	return "credential " + string(e.Reason)
}

func (e *VerificationError) Unwrap() error { return e.Err }

func newVerificationError(reason Reason, err error) *VerificationError {
	return &VerificationError{Reason: reason, Err: err}
}

// ReasonOf returns the failure reason, or "" when err is not a VerificationError.
func ReasonOf(err error) Reason {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}
