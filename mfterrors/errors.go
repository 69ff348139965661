// Package mfterrors defines the closed error taxonomy shared by every
// package in the engine. Leaf I/O errors are wrapped once with an
// operation-scoped context, matching gcsfuse's fmt.Errorf("doing X: %w", err)
// idiom, but callers that need to branch on *kind* use errors.As against
// *Error rather than string-matching messages.
package mfterrors

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories the engine produces. Kinds are
// not Go types; callers switch on Kind via errors.As(err, &mfterrors.Error{}).
type Kind int

const (
	// KindUnknown is never returned; it's the zero value of Kind.
	KindUnknown Kind = iota
	KindAccessDenied
	KindNotNtfs
	KindNotFound
	KindIoError
	KindCorrupt
	KindJournalReset
	KindOutOfMemory
	KindInvalidPattern
	KindInvalidArgument
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindAccessDenied:
		return "AccessDenied"
	case KindNotNtfs:
		return "NotNtfs"
	case KindNotFound:
		return "NotFound"
	case KindIoError:
		return "IoError"
	case KindCorrupt:
		return "Corrupt"
	case KindJournalReset:
		return "JournalReset"
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindInvalidPattern:
		return "InvalidPattern"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindConflict:
		return "Conflict"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a Kind and an operation-scoped
// message. It satisfies errors.Unwrap so errors.Is/errors.As see through it.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so
// errors.Is(err, mfterrors.New(kind, op, msg)) matches any error of that
// kind whatever its Op and Msg.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New builds an *Error with no underlying cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap builds an *Error that wraps err, preserving it for errors.Unwrap.
func Wrap(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, otherwise
// returns KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err's Kind equals kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
