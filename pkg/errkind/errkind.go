// Package errkind defines the error taxonomy shared across the core:
// a closed set of kinds plus an Error type that wraps an underlying
// cause so errors.Is/errors.As keep working against transport, codec,
// and driver errors.
package errkind

import "fmt"

// Kind enumerates the closed set of error kinds the core distinguishes.
type Kind int

const (
	Unknown Kind = iota
	Connection
	Network
	Timeout
	HeartbeatLost
	Protocol
	DataParsing
	Validation
	Backpressure
	SinkTransient
	SinkPermanent
	Config
	Auth
	InvalidState
	InvalidArgument
	TooManyStreams
)

func (k Kind) String() string {
	switch k {
	case Connection:
		return "connection"
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case HeartbeatLost:
		return "heartbeat_lost"
	case Protocol:
		return "protocol"
	case DataParsing:
		return "data_parsing"
	case Validation:
		return "validation"
	case Backpressure:
		return "backpressure"
	case SinkTransient:
		return "sink_transient"
	case SinkPermanent:
		return "sink_permanent"
	case Config:
		return "config"
	case Auth:
		return "auth"
	case InvalidState:
		return "invalid_state"
	case InvalidArgument:
		return "invalid_argument"
	case TooManyStreams:
		return "too_many_streams"
	default:
		return "unknown"
	}
}

// Error is the core's error type: a Kind plus an optional wrapped cause.
type Error struct {
	Kind    Kind
	Op      string
	Field   string // set for Validation errors: the failing field
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (field=%s): %v", e.Op, e.Message, e.Field, e.Cause)
		}
		return fmt.Sprintf("%s: %s (field=%s)", e.Op, e.Message, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap builds an *Error wrapping cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// WithField attaches a failing field name (used for Validation errors).
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// Is lets errors.Is match against another *Error by Kind alone,
// so callers can do errors.Is(err, errkind.New(errkind.Timeout, "", "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Reconnectable reports whether this kind is grounds for a reconnect attempt.
func (k Kind) Reconnectable() bool {
	switch k {
	case Connection, Network, Timeout, HeartbeatLost, Protocol:
		return true
	default:
		return false
	}
}

// Escalates reports whether the kind requires terminal escalation
// rather than local drop-and-continue handling.
func (k Kind) Escalates() bool {
	switch k {
	case Auth, Config:
		return true
	default:
		return false
	}
}

// Local reports whether the kind is handled locally — the offending
// unit of work is dropped, counters incremented, never surfaced.
func (k Kind) Local() bool {
	switch k {
	case DataParsing, Validation:
		return true
	default:
		return false
	}
}
