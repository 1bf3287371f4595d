// Package fault defines the closed error taxonomy shared by all voxroom
// operations. Every failure surfaced by the manager, the arbiter, the bus, or
// a provider adapter carries exactly one [Kind], so callers can branch on the
// category without string matching.
//
// Use [New] or [Errorf] to create errors, [KindOf] to classify any error
// (wrapped or not), and errors.Is with the kind sentinels for tests.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the failure category of an operation.
type Kind int

const (
	// KindUnknown is the zero value; it is reported for errors that were not
	// created by this package.
	KindUnknown Kind = iota

	// KindNotFound — target agent or room does not exist.
	KindNotFound

	// KindAlreadyExists — duplicate id on create, or re-attach to a room.
	KindAlreadyExists

	// KindInvalidArgument — missing persona, empty text, ill-formed payload.
	KindInvalidArgument

	// KindCapacityExceeded — global or per-room agent cap reached.
	KindCapacityExceeded

	// KindBusy — a bounded queue is full or an operation is already running.
	KindBusy

	// KindProviderUnavailable — adapter has no credentials or is not ready.
	KindProviderUnavailable

	// KindProviderError — upstream vendor returned an error or timed out.
	KindProviderError

	// KindRateLimited — a provider-local rate gate rejected the call.
	KindRateLimited

	// KindTransportUnavailable — bus or media transport is down.
	KindTransportUnavailable

	// KindMediaUnrecoverable — reconnect budget exhausted; binding torn down.
	KindMediaUnrecoverable

	// KindCancelled — an explicit cancel or stop interrupted the operation.
	KindCancelled
)

// String returns the stable wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindBusy:
		return "busy"
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindProviderError:
		return "provider_error"
	case KindRateLimited:
		return "rate_limited"
	case KindTransportUnavailable:
		return "transport_unavailable"
	case KindMediaUnrecoverable:
		return "media_unrecoverable"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error pairs a [Kind] with a human-readable message and an optional cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same kind. This lets tests
// write errors.Is(err, &fault.Error{Kind: fault.KindBusy}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf creates an error of the given kind with a formatted message. A final
// %w verb wraps the cause as usual.
func Errorf(kind Kind, format string, args ...any) error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{Kind: kind, Msg: wrapped.Error(), Cause: errors.Unwrap(wrapped)}
}

// Wrap attaches a kind to an existing error, keeping it in the unwrap chain.
// Returns nil when err is nil.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Cause: err}
}

// KindOf returns the kind of err, unwrapping as needed. Errors not created by
// this package report [KindUnknown].
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
