// Package dispatch routes decoded frames to handlers by message type.
package dispatch

import (
	"fmt"
	"sort"

	"github.com/cyberinferno/hashchat/frame"
)

// HandlerFunc handles one frame on behalf of a connection of type C.
type HandlerFunc[C any] func(c C, f *frame.Frame) error

// UnknownMessageTypeError is returned by Dispatch for a frame whose type has
// no registered handler.
type UnknownMessageTypeError struct {
	Type string
}

func (e *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// Table maps message types to handlers. Registration happens once at startup;
// after that a Table is read-only and safe for concurrent use.
type Table[C any] struct {
	handlers map[string]HandlerFunc[C]
}

// NewTable returns an empty Table.
func NewTable[C any]() *Table[C] {
	return &Table[C]{handlers: make(map[string]HandlerFunc[C])}
}

// Register binds typ to h. Registering the same type twice or a nil handler
// is a programming error and panics.
//
// Parameters:
//   - typ: The message type, matched against the frame's type section
//   - h: The handler to run
//
// Returns:
//   - The table, so registrations can be chained
func (t *Table[C]) Register(typ string, h HandlerFunc[C]) *Table[C] {
	if h == nil {
		panic(fmt.Sprintf("dispatch: nil handler for %q", typ))
	}
	if _, ok := t.handlers[typ]; ok {
		panic(fmt.Sprintf("dispatch: duplicate handler for %q", typ))
	}

	t.handlers[typ] = h
	return t
}

// Dispatch runs the handler registered for f's type.
//
// Parameters:
//   - c: The connection the frame arrived on
//   - f: The decoded frame
//
// Returns:
//   - The handler's error, or *UnknownMessageTypeError when none is registered
func (t *Table[C]) Dispatch(c C, f *frame.Frame) error {
	typ := f.Type()
	h, ok := t.handlers[typ]
	if !ok {
		return &UnknownMessageTypeError{Type: typ}
	}

	return h(c, f)
}

// Has reports whether a handler is registered for typ.
func (t *Table[C]) Has(typ string) bool {
	_, ok := t.handlers[typ]
	return ok
}

// Tags returns the registered message types in sorted order.
func (t *Table[C]) Tags() []string {
	tags := make([]string, 0, len(t.handlers))
	for typ := range t.handlers {
		tags = append(tags, typ)
	}
	sort.Strings(tags)

	return tags
}
