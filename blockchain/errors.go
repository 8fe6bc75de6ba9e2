package blockchain

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
type Kind string

const (
	// KindVerification: malformed envelope, bad signature or author mismatch.
	KindVerification Kind = "Verification"
	// KindDecode: payload does not match the shape the service expects.
	KindDecode Kind = "Decode"
	// KindExecution: a transaction was rejected while executing.
	KindExecution Kind = "Execution"
	// KindRegistration: invalid service set at startup.
	KindRegistration Kind = "Registration"
	KindInternal     Kind = "Internal"
)

// Error is the structured error returned by the transaction pipeline.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, code, msg string) error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func wrapError(kind Kind, code, msg string, cause error) error {
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

// DecodeError builds the error a Service returns from Decode.
func DecodeError(code, msg string, cause error) error {
	return &Error{Kind: KindDecode, Code: code, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error of the given Kind.
// An *ExecutionError counts as KindExecution.
func IsKind(err error, kind Kind) bool {
	var ee *ExecutionError
	if kind == KindExecution && errors.As(err, &ee) {
		return true
	}
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Execution error codes. Services may define their own codes from
// CodeServiceBase upwards.
const (
	CodeMalformedConfig        uint8 = 1
	CodeHeightMismatch         uint8 = 2
	CodeActivationNotInFuture  uint8 = 3
	CodeActivationNotMonotonic uint8 = 4
	CodePreviousConfigMismatch uint8 = 5
	CodeInternal               uint8 = 6

	CodePanic       uint8 = 254
	CodeServiceBase uint8 = 32
)

// ExecutionError is the outcome of a transaction that was executed and
// rejected. It is recorded as the transaction result and never aborts a block.
type ExecutionError struct {
	Code        uint8
	Description string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed (code %d): %s", e.Code, e.Description)
}

// NewExecutionError returns an *ExecutionError.
func NewExecutionError(code uint8, format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Code: code, Description: fmt.Sprintf(format, args...)}
}
