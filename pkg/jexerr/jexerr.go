// Copyright Contributors to the KubeTask project

// Package jexerr defines the tagged error kind shared by every stage of the
// job-template expansion pipeline.
package jexerr

import "fmt"

// Kind tags the category of failure, mirroring the taxonomy the expansion
// pipeline surfaces to callers: validation problems, unsupported constructs,
// I/O failures, and JSON parse failures are all distinguishable without
// string-matching the error message.
type Kind string

const (
	// TypeMismatch marks a value that does not coerce to its declared type.
	TypeMismatch Kind = "TypeMismatch"
	// OutOfRange marks a value outside a declared bound (min/max, length, placeholder index).
	OutOfRange Kind = "OutOfRange"
	// Reserved marks use of a job-reserved or template-reserved property in the wrong place.
	Reserved Kind = "Reserved"
	// DuplicateName marks a metadata name collision.
	DuplicateName Kind = "DuplicateName"
	// Unsupported marks a construct the pipeline deliberately does not implement
	// (e.g. reference(...) expressions, applicationPackage references).
	Unsupported Kind = "Unsupported"
	// IO marks a failure reading a file or calling an injected collaborator
	// (storage, prompter).
	IO Kind = "IO"
	// Parse marks a failure parsing rendered text as JSON.
	Parse Kind = "Parse"
)

// Error is the error type returned by every package in this module.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, so callers can
// write errors.Is(err, jexerr.New(jexerr.Unsupported, "")) as a kind probe.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error with no cause.
func New(kind Kind, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{Kind: kind, Detail: detail}
}

// Wrap constructs an *Error carrying cause as the wrapped error.
func Wrap(kind Kind, cause error, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}
