package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRegistered is a message other than hello before the nickname
	// was claimed.
	ErrNotRegistered = errors.New("nickname not registered")
	// ErrAlreadyRegistered is a hello on a connection that already holds a
	// nickname.
	ErrAlreadyRegistered = errors.New("nickname already registered on this connection")
	ErrInvalidNickname   = errors.New("invalid nickname")
	ErrMissingSection    = errors.New("missing section")

	// ErrNicknameTaken ends a connection whose hello asked for a nickname
	// held by another session.
	ErrNicknameTaken = errors.New("nickname taken")

	ErrQueueFull     = errors.New("outbound queue full")
	ErrSessionClosed = errors.New("session closed")

	// errDrained stops the writer after it flushed the queue.
	errDrained = errors.New("outbound queue drained")
)

// ProtocolError is a message that violates the conversation rules. It ends
// the connection.
type ProtocolError struct {
	Type string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on %q message: %v", e.Type, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// DeliveryError is a failed hand-off of a message to one recipient. It never
// ends the sender's connection.
type DeliveryError struct {
	Nick string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %q: %v", e.Nick, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func missingSection(typ, name string) error {
	return &ProtocolError{Type: typ, Err: fmt.Errorf("%w %q", ErrMissingSection, name)}
}
