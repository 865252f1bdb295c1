package session

import (
	"fmt"
)

// ErrorType categorizes session failures.
type ErrorType string

const (
	// ErrConnection means the server was unreachable. Terminal for the
	// session instance.
	ErrConnection ErrorType = "connection_error"
	// ErrPrecondition means a command was issued in a state that forbids
	// it. No state change occurred.
	ErrPrecondition ErrorType = "precondition_error"
	// ErrChannelClosed means the outbound side is gone because the peer
	// terminated or the session is shutting down.
	ErrChannelClosed ErrorType = "channel_closed"
)

// Error is the session-level error taxonomy.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewConnectionError creates a connection error.
func NewConnectionError(message string, err error) *Error {
	return &Error{Type: ErrConnection, Message: message, Err: err}
}

// NewPreconditionError creates a precondition error.
func NewPreconditionError(message string) *Error {
	return &Error{Type: ErrPrecondition, Message: message}
}

// NewChannelClosedError creates a channel-closed error.
func NewChannelClosedError(message string) *Error {
	return &Error{Type: ErrChannelClosed, Message: message}
}

// IsType reports whether err is a session Error of the given type.
func IsType(err error, t ErrorType) bool {
	for err != nil {
		if se, ok := err.(*Error); ok {
			return se.Type == t
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
