// Package apperr defines the error taxonomy shared by services and HTTP handlers.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindCapacityExceeded
	KindOutsideHours
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindOutsideHours:
		return "outside_hours"
	case KindConflict:
		return "conflict"
	case KindInternal:
		return "internal"
	}
	return "internal"
}

// Stable codes for failures that share a kind.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeUnverified         = "unverified"
	CodeInvalidAPIKey      = "invalid_api_key"
)

// Error is an application error with a kind, a stable code and a caller-safe message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and code so sentinel comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func newErr(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Code: kind.String(), Message: msg}
}

// Validation reports malformed or missing input.
func Validation(msg string, fields ...string) *Error {
	e := newErr(KindValidation, msg)
	e.Fields = fields
	return e
}

// MissingFields reports required fields that were absent.
func MissingFields(fields ...string) *Error {
	return Validation("missing required fields: "+strings.Join(fields, ", "), fields...)
}

// Unauthenticated reports a missing or invalid session.
func Unauthenticated(msg string) *Error { return newErr(KindUnauthenticated, msg) }

// Forbidden reports an authenticated caller acting outside its permissions.
func Forbidden(msg string) *Error { return newErr(KindForbidden, msg) }

// NotFound reports an absent entity, or one outside the caller's tenant.
func NotFound(msg string) *Error { return newErr(KindNotFound, msg) }

// CapacityExceeded reports a booking that would overfill a slot.
func CapacityExceeded(msg string) *Error { return newErr(KindCapacityExceeded, msg) }

// OutsideHours reports a booking outside every open window.
func OutsideHours(msg string) *Error { return newErr(KindOutsideHours, msg) }

// Conflict reports a lost concurrent-write race or an illegal state transition.
func Conflict(msg string) *Error { return newErr(KindConflict, msg) }

// Internal wraps an unexpected failure. The message returned to callers is generic.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: KindInternal.String(), Message: "internal error", Err: err}
}

// InvalidCredentials is returned when the password does not match.
func InvalidCredentials() *Error {
	return &Error{Kind: KindUnauthenticated, Code: CodeInvalidCredentials, Message: "invalid credentials"}
}

// Unverified is returned when a pending or invited account attempts to log in.
func Unverified() *Error {
	return &Error{Kind: KindForbidden, Code: CodeUnverified, Message: "account is not verified"}
}

// InvalidAPIKey is returned for any organization id / API key mismatch.
func InvalidAPIKey() *Error {
	return &Error{Kind: KindForbidden, Code: CodeInvalidAPIKey, Message: "invalid API key or organization ID"}
}

// KindOf returns the kind of err, or KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
