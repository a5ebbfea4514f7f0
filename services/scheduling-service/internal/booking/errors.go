package booking

import (
	"errors"
	"fmt"
)

// Kind classifies the expected, user-facing outcomes of engine operations.
// None of these are fatal; callers branch on them to shape responses.
type Kind int

const (
	KindUnknown Kind = iota
	// KindPastSlot: the requested start is not strictly in the future.
	KindPastSlot
	// KindSlotMisaligned: (start,end) is not a generator candidate under the
	// provider's current rule, or the slot falls in a holiday window.
	KindSlotMisaligned
	// KindConflict: the slot was taken by the time the atomic insert ran.
	KindConflict
	// KindInvalidTransition: the status compare-and-set found a different
	// current status (already canceled, already completed).
	KindInvalidTransition
	// KindNotFound: unknown appointment, provider rule, or idempotency key.
	KindNotFound
	// KindStorageUnavailable: the backing store failed after bounded
	// retries. Unlike the kinds above this one is operational, not a
	// business outcome.
	KindStorageUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindPastSlot:
		return "past_slot"
	case KindSlotMisaligned:
		return "slot_misaligned"
	case KindConflict:
		return "conflict"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindNotFound:
		return "not_found"
	case KindStorageUnavailable:
		return "storage_unavailable"
	default:
		return "unknown"
	}
}

// Error carries a Kind plus context. Wrapped causes stay reachable through
// errors.Is/As.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

func WrapError(kind Kind, err error, msg string) error {
	return &Error{Kind: kind, msg: msg, err: err}
}

// KindOf extracts the Kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// errIdempotentReplay is returned by stores when an insert loses the race on
// its idempotency key; the coordinator re-reads and returns the stored
// appointment instead of failing.
var errIdempotentReplay = errors.New("idempotency key already recorded")

// ErrIdempotentReplay exposes the sentinel to store implementations.
func ErrIdempotentReplay() error { return errIdempotentReplay }

// IsIdempotentReplay reports whether err is the replay sentinel.
func IsIdempotentReplay(err error) bool { return errors.Is(err, errIdempotentReplay) }
