// Package dberrors taxonomizes failures by kind, not by concrete Go type, as
// the storage core's callers need to branch on "is this a deadlock victim"
// or "was the lock illegal", not on which struct implements error.
package dberrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure. See the component design for exactly which
// operations produce which kind.
type Kind int

const (
	// Capacity: the buffer pool has no free, evictable frame.
	Capacity Kind = iota
	// Precondition: an operation's precondition was violated — an unlock
	// rule (the transaction has then been moved to ABORTED), an
	// unregistered or already-aborted transaction, or an invalid heap slot.
	Precondition
	// IllegalLock: a lock acquisition or upgrade request violated the
	// upgrade, isolation or 2PL-phase rules; the transaction has been
	// moved to ABORTED.
	IllegalLock
	// DeadlockVictim: a lock call found its transaction ABORTED — by the
	// deadlock detector, or by an earlier rule violation — and gave up.
	DeadlockVictim
	// IOFailure: the underlying file failed a read or write.
	IOFailure
)

func (k Kind) String() string {
	switch k {
	case Capacity:
		return "capacity"
	case Precondition:
		return "precondition"
	case IllegalLock:
		return "illegal_lock"
	case DeadlockVictim:
		return "deadlock_victim"
	case IOFailure:
		return "io_failure"
	default:
		return "unknown"
	}
}

// Error is the single error type every kind in the error-handling design is
// carried through. "Not found" and "duplicate key" are deliberately absent
// here — per the design those are plain negative results, never errors.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// New builds a dberrors.Error of the given kind with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Newf is New with fmt formatting.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches call-site context to an existing error via pkg/errors and
// tags it with a kind.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, msg: msg, err: errors.Wrap(err, msg)}
}

// KindOf recovers the Kind of err if it is (or wraps) a *Error, and reports
// ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
