package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the routing layer can map it to a stable
// machine-readable response without inspecting error text.
type Kind string

const (
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindInternal          Kind = "internal"
)

// Error carries a failure kind, the operation that produced it, a
// human-readable message and an optional wrapped cause.
type Error struct {
	kind Kind
	op   string
	msg  string
	err  error
}

// New constructs a fault with the given kind, operation and message.
func New(kind Kind, op, msg string) *Error {
	return &Error{kind: kind, op: op, msg: msg}
}

// Wrap constructs a fault around an underlying cause.
func Wrap(kind Kind, op, msg string, cause error) *Error {
	return &Error{kind: kind, op: op, msg: msg, err: cause}
}

// Internal wraps a store or transport failure as an internal fault.
func Internal(op string, cause error) *Error {
	return &Error{kind: KindInternal, op: op, msg: "internal error", err: cause}
}

func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.op, e.msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.op, e.msg, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Op returns the operation code that produced the failure.
func (e *Error) Op() string {
	return e.op
}

// Message returns the human-readable description.
func (e *Error) Message() string {
	return e.msg
}

// KindOf extracts the kind from an error chain, defaulting to internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
