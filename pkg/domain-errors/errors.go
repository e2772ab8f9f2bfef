// Package domainerrors provides coded errors for the service layer.
//
// Stores return sentinel errors (pkg/platform/sentinel) describing
// infrastructure facts; services translate them into coded domain errors so
// callers can branch on the kind of failure without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	CodeInternal           Code = "internal"
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"

	// CodeIntegrityViolation marks a checksum mismatch on retrieval. The
	// stored ciphertext decrypted, but the plaintext does not hash to the
	// recorded checksum - the record is corrupted.
	CodeIntegrityViolation Code = "integrity_violation"

	// CodeDecryptionFailed marks ciphertext that could not be opened with
	// the current key (tampering, truncation, or key mismatch).
	CodeDecryptionFailed Code = "decryption_failed"

	// CodeMissingConsent marks an operation blocked because no active
	// consent record exists for the data category.
	CodeMissingConsent Code = "missing_consent"
)

// Error is a coded domain error. It optionally wraps a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates err with a code and message while preserving the chain.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is delegates to errors.Is; provided so call sites can stay on one import.
func Is(err, target error) bool { return errors.Is(err, target) }
