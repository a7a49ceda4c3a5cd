package asset

import (
	"errors"
	"fmt"
)

// Kind categorizes a domain error. The HTTP adapter translates kinds to
// status codes; the coordinator branches on kinds rather than message text.
type Kind int

const (
	// KindInternal is the zero kind: an unclassified failure.
	KindInternal Kind = iota

	// KindInvalidInput indicates a sanitization failure, missing field, or
	// malformed TTL.
	KindInvalidInput

	// KindForbidden indicates a missing permission or cross-branch access.
	KindForbidden

	// KindNotFound indicates the asset, version, user, or primary blob is
	// absent.
	KindNotFound

	// KindPreconditionFailed indicates a lifecycle transition attempted
	// from the wrong status.
	KindPreconditionFailed

	// KindConflict indicates a uniqueness violation (duplicate username).
	KindConflict

	// KindStorage indicates an object-store failure other than NoChange.
	KindStorage

	// KindUnavailable indicates the storage endpoint is unreachable.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not found"
	case KindPreconditionFailed:
		return "precondition failed"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage error"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal error"
	}
}

// Error is a categorized domain error.
type Error struct {
	Kind    Kind
	Message string
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E constructs a domain error with a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a domain error wrapping a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, or KindInternal if err carries none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
