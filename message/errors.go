package message

import "errors"

// Kind is a stable category for programmatic error handling.
type Kind string

const (
	// KindVerification covers malformed envelopes and bad signatures.
	KindVerification Kind = "Verification"
	// KindDecode covers wire payloads that do not match the expected layout.
	KindDecode Kind = "Decode"
)

// Error is the package's structured error type.
//
// Code is a stable identifier (e.g. MSG-WIRE-002, MSG-SIG-001). Message is for
// humans; do not match on it.
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
	if cause == nil {
		return newError(kind, code, msg)
	}
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Code returns the stable code of a structured error, or "" if unknown.
func Code(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}
