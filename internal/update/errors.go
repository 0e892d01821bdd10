package update

import (
	"errors"
	"fmt"
)

// ErrorKind classifies update failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidVersion
	KindFeedUnavailable
	KindFeedMalformed
	KindTransfer
	KindIntegrity
	KindPathTraversal
	KindCorruptArchive
	KindApplyFailed
	KindIO
)

var kindNames = map[ErrorKind]string{
	KindUnknown:         "unknown",
	KindInvalidVersion:  "invalid version",
	KindFeedUnavailable: "feed unavailable",
	KindFeedMalformed:   "feed malformed",
	KindTransfer:        "transfer error",
	KindIntegrity:       "integrity check failed",
	KindPathTraversal:   "path traversal",
	KindCorruptArchive:  "corrupt archive",
	KindApplyFailed:     "apply failed",
	KindIO:              "i/o error",
}

// String returns a human readable name for the kind.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the error type returned by the update components.
type Error struct {
	Kind ErrorKind
	Op   string // operation that failed, e.g. "resolve" or "extract"
	Err  error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidVersion  = &Error{Kind: KindInvalidVersion}
	ErrFeedUnavailable = &Error{Kind: KindFeedUnavailable}
	ErrFeedMalformed   = &Error{Kind: KindFeedMalformed}
	ErrTransfer        = &Error{Kind: KindTransfer}
	ErrIntegrity       = &Error{Kind: KindIntegrity}
	ErrPathTraversal   = &Error{Kind: KindPathTraversal}
	ErrCorruptArchive  = &Error{Kind: KindCorruptArchive}
	ErrApplyFailed     = &Error{Kind: KindApplyFailed}
	ErrIO              = &Error{Kind: KindIO}
)

// NewError builds an *Error. A nil err is allowed.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind ErrorKind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
