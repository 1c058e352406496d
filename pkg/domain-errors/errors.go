// Package domainerrors provides coded errors for domain logic. Services return
// these so transport layers and callers can branch on the violated guard
// instead of matching error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. Codes are stable API: handlers map them to
// HTTP statuses and clients branch on them.
type Code string

const (
	// CodeValidation marks malformed input. Never retried.
	CodeValidation Code = "validation_error"
	// CodeBadRequest marks a structurally broken request (missing body, bad JSON).
	CodeBadRequest Code = "bad_request"
	// CodeNotFound marks an unknown record id.
	CodeNotFound Code = "not_found"
	// CodeInvalidTransition marks a lifecycle guard failure: the record is not
	// in a state that permits the requested operation.
	CodeInvalidTransition Code = "invalid_transition"
	// CodePrematureMint marks a mint attempted before the freeze window elapsed.
	CodePrematureMint Code = "premature_mint"
	// CodeMismatch marks a settlement confirmation that does not reference the
	// stored anchor. Always fatal; logged as a potential integrity incident.
	CodeMismatch Code = "mismatch"
	// CodeExternalService marks a transient collaborator failure. Retried
	// internally up to the bounded policy before being surfaced.
	CodeExternalService Code = "external_service"
	// CodeConflict marks a lost optimistic-concurrency race.
	CodeConflict Code = "conflict"
	// CodeInternal marks an unexpected failure. Details are never exposed.
	CodeInternal Code = "internal_error"
)

// Error carries a code, an operator-facing message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, err error) error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err or anything in its chain carries the code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first coded error in the chain, or
// CodeInternal when err carries no code.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}

// MessageOf returns the message of the first coded error in the chain.
func MessageOf(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ""
}

// IsRetryable reports whether err represents a transient collaborator failure
// that is safe to retry. Guard and validation failures are never retryable.
func IsRetryable(err error) bool {
	return HasCode(err, CodeExternalService)
}
