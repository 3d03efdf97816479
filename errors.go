package artemis

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies the failure modes exposed across the public API,
// per the error handling design: configuration errors and topology
// conflicts surface synchronously, connect failures are retried and
// logged, link detachments surface to the witnessing operation while
// also triggering recovery, cancellation is never remapped to another
// kind.
type ErrorKind int

const (
	// KindConfiguration covers bad policy parameters, an empty endpoint
	// list, or an invalid message body type.
	KindConfiguration ErrorKind = iota
	// KindConnectFailed covers a transport session that could not be
	// opened; the supervisor retries these under the recovery policy.
	KindConnectFailed
	// KindLinkDetached covers a remote-initiated link close; it is
	// surfaced to the in-flight operation that witnessed it and
	// simultaneously triggers a recovery cycle.
	KindLinkDetached
	// KindCancelled covers caller- or shutdown-driven cancellation.
	KindCancelled
	// KindTopologyConflict covers a rejected management request
	// (address/queue already exists, or missing with auto-create off).
	KindTopologyConflict
	// KindFatal covers an unrecoverable invariant violation inside the
	// supervisor; it is logged and the loop continues on a best-effort
	// basis.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConnectFailed:
		return "connect_failed"
	case KindLinkDetached:
		return "link_detached"
	case KindCancelled:
		return "cancelled"
	case KindTopologyConflict:
		return "topology_conflict"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned across the public surface of
// this module. It wraps an optional cause and stays compatible with
// github.com/pkg/errors (Cause, %+v stack traces) the way the teacher
// library's sentinel errors were.
type Error struct {
	Kind  ErrorKind
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Cause implements the github.com/pkg/errors Causer interface.
func (e *Error) Cause() error { return e.cause }

// Unwrap implements the standard library errors.Unwrap contract so
// errors.Is/errors.As keep working alongside pkg/errors.
func (e *Error) Unwrap() error { return e.cause }

// NewError builds an *Error of the given kind with no cause.
func NewError(kind ErrorKind, msg string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(msg, args...)}
}

// WrapError builds an *Error of the given kind wrapping cause.
func WrapError(kind ErrorKind, cause error, msg string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(msg, args...), cause: cause}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// ErrShutdown is returned by any operation attempted after the owning
// client/producer/consumer has been explicitly closed, mirroring the
// teacher's ErrShutdown sentinel but carrying KindCancelled so it
// composes with IsKind.
var ErrShutdown = NewError(KindCancelled, "client is shut down")
