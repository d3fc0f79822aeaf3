// Package b4aeerr defines the B4AE error taxonomy shared by every protocol
// component. Errors carry a Kind so callers can branch on category without
// string matching, while still wrapping the underlying cause for %w chains.
package b4aeerr

import (
	"errors"
	"fmt"
)

// Kind classifies a protocol error. Kinds are not Go error types themselves;
// they let callers use errors.Is against the sentinel values below without
// caring about the wrapped cause.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindCookieStale
	KindCookieForged
	KindCookieReplayed
	KindModeNegotiationFailed
	KindAuthenticationFailed
	KindHandshakeMacFailure
	KindHandshakeProtocol
	KindReplayDetected
	KindSequenceExhausted
	KindApplicationBackpressure
	KindSessionIdle
	KindTransportClosed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindCookieStale:
		return "CookieRejectedStale"
	case KindCookieForged:
		return "CookieRejectedForged"
	case KindCookieReplayed:
		return "CookieRejectedReplayed"
	case KindModeNegotiationFailed:
		return "ModeNegotiationFailed"
	case KindAuthenticationFailed:
		return "AuthenticationFailed"
	case KindHandshakeMacFailure:
		return "HandshakeMacFailure"
	case KindHandshakeProtocol:
		return "HandshakeProtocol"
	case KindReplayDetected:
		return "ReplayDetected"
	case KindSequenceExhausted:
		return "SequenceExhausted"
	case KindApplicationBackpressure:
		return "ApplicationBackpressure"
	case KindSessionIdle:
		return "SessionIdle"
	case KindTransportClosed:
		return "TransportClosed"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every B4AE package.
type Error struct {
	Kind    Kind
	Op      string // component/operation that raised it, e.g. "handshake.Step"
	Cause   error
	Message string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("b4ae: %s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("b4ae: %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, b4aeerr.KindSentinel(b4aeerr.KindReplayDetected))
// style checks by comparing Kind through a sentinel wrapper; see KindSentinel.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// KindSentinel returns a bare *Error carrying only Kind, suitable as the
// target of errors.Is(err, b4aeerr.KindSentinel(b4aeerr.KindReplayDetected)).
func KindSentinel(k Kind) error {
	return &Error{Kind: k}
}

// Is reports whether err carries the given Kind, fatal errors included.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// Fatal reports whether an error kind is fatal to an established session,
// the protocol's fatal/non-fatal error propagation policy: fatal errors terminate the session,
// non-fatal ones (replay, backpressure) are returned without destroying it.
func Fatal(k Kind) bool {
	switch k {
	case KindAuthenticationFailed, KindHandshakeMacFailure, KindHandshakeProtocol,
		KindSessionIdle, KindTransportClosed:
		return true
	case KindSequenceExhausted:
		// Fatal only if the forced rekey itself also fails; callers raise a
		// second, fatal error in that case. The first occurrence is not
		// fatal on its own.
		return false
	default:
		return false
	}
}
