// Package domainerrors defines the typed error vocabulary shared by services,
// stores, and transport. Callers receive a Code they can branch on instead of
// matching strings or raw transport errors.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure for callers. The set is closed: transport maps each
// code to an HTTP status, and services never invent ad-hoc codes.
type Code string

const (
	CodeValidation   Code = "validation_error"
	CodeBadRequest   Code = "bad_request"
	CodeNotFound     Code = "not_found"
	CodeUnauthorized Code = "unauthorized"
	CodeInternal     Code = "internal_error"

	// CodeHashMismatch: the ledger already holds a different committed hash for
	// this key. Never auto-resolved; the contradiction is the point.
	CodeHashMismatch Code = "hash_mismatch"

	// CodeAlreadyClaimed: lost the optimistic-concurrency race on claim.
	CodeAlreadyClaimed Code = "already_claimed"

	// CodeInvalidState: the record is not in a state that permits the
	// requested transition.
	CodeInvalidState Code = "invalid_state"

	// CodeUnavailable: peer or store unreachable. Retried with an identical
	// payload up to the attempt budget, then surfaced.
	CodeUnavailable Code = "unavailable"

	CodeTimeout Code = "timeout"

	// CodeUnknownOutcome: a ledger submission was cut off before the commit was
	// observed. The write may still land; reconciliation decides later. This is
	// deliberately distinct from a definite failure.
	CodeUnknownOutcome Code = "unknown_outcome"

	// Reconciliation findings. Surfaced for manual or policy-driven resolution,
	// never auto-corrected.
	CodeIntegrityViolation   Code = "integrity_violation"
	CodeOrphanedVerification Code = "orphaned_verification"
)

// Error carries a code, a caller-safe message, and an optional wrapped cause.
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

// New builds a domain error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the chain
// for errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for errors that
// did not originate in this package.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
