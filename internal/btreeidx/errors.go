package btreeidx

import (
	"errors"
	"fmt"
)

// ErrKind classifies the failure modes a B+Tree node or index operation can
// produce. The kind, not the message, is what callers branch on.
type ErrKind uint8

const (
	// KindNodeFull means a node has no room for one more entry. It is
	// strictly local: a caller of insert must convert it into a split and
	// never let it escape.
	KindNodeFull ErrKind = iota
	// KindNoSuchRecord means a locate() found no entry with the exact key.
	// Informational — the returned cursor is still valid.
	KindNoSuchRecord
	// KindInvalidCursor means a cursor is out of range or sits on the
	// exhausted sentinel.
	KindInvalidCursor
	// KindInvalidPid means a page id was negative where none is allowed.
	KindInvalidPid
	// KindInvalidArgument means a precondition of a method (e.g. split)
	// was violated by the caller.
	KindInvalidArgument
	// KindIoError wraps a failure from the underlying PageStore.
	KindIoError
	// KindFormatError means a persisted header failed to parse. Open does
	// not surface it: on a corrupt or never-written metadata page it falls
	// back to the empty-index defaults, and no function in this package
	// currently returns this kind.
	KindFormatError
)

func (k ErrKind) String() string {
	switch k {
	case KindNodeFull:
		return "NodeFull"
	case KindNoSuchRecord:
		return "NoSuchRecord"
	case KindInvalidCursor:
		return "InvalidCursor"
	case KindInvalidPid:
		return "InvalidPid"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindIoError:
		return "IoError"
	case KindFormatError:
		return "FormatError"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// Error is the error type produced by this package. It carries a Kind so
// callers can branch with errors.As, while still chaining with %w like any
// other wrapped error.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &Error{Kind: KindNodeFull}) style checks work by
// comparing kinds when both sides are *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func wrapErr(kind ErrKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func KindOf(err error) (ErrKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
