// Package frame implements the chat wire protocol: a Frame of named sections,
// the codecs that turn frames into self-delimiting bytes and back, and an
// Assembler that recovers frames from an unbounded byte stream.
package frame

import "bytes"

// TypeSection is the name of the section that identifies the message kind.
const TypeSection = "type"

// Section is a single named part of a frame.
type Section struct {
	Name    string
	Content []byte
}

// Frame is an ordered set of named sections. A section with empty content is
// distinct from an absent one.
type Frame struct {
	sections []Section
}

// New returns a frame whose type section is set to typ.
//
// Parameters:
//   - typ: The message type
//
// Returns:
//   - A new Frame with a single type section
func New(typ string) *Frame {
	return new(Frame).Set(TypeSection, []byte(typ))
}

// Set stores content under name. An existing section keeps its position and
// has its content replaced; a new section is appended. Set returns f so calls
// can be chained.
func (f *Frame) Set(name string, content []byte) *Frame {
	for i := range f.sections {
		if f.sections[i].Name == name {
			f.sections[i].Content = content
			return f
		}
	}

	f.sections = append(f.sections, Section{Name: name, Content: content})
	return f
}

// SetString is Set for string content.
func (f *Frame) SetString(name, content string) *Frame {
	return f.Set(name, []byte(content))
}

// Get returns the content of the named section and whether it is present.
func (f *Frame) Get(name string) ([]byte, bool) {
	for _, s := range f.sections {
		if s.Name == name {
			return s.Content, true
		}
	}

	return nil, false
}

// Has reports whether the named section is present.
func (f *Frame) Has(name string) bool {
	_, ok := f.Get(name)
	return ok
}

// Type returns the content of the type section, or "" when absent.
func (f *Frame) Type() string {
	typ, _ := f.Get(TypeSection)
	return string(typ)
}

// Sections returns the sections in order. The slice must not be modified.
func (f *Frame) Sections() []Section {
	return f.sections
}

// Len returns the number of sections.
func (f *Frame) Len() int {
	return len(f.sections)
}

// Equal reports whether f and other hold the same names with the same
// contents. Section order is not significant.
func (f *Frame) Equal(other *Frame) bool {
	if f == nil || other == nil {
		return f == other
	}
	if len(f.sections) != len(other.sections) {
		return false
	}

	for _, s := range f.sections {
		content, ok := other.Get(s.Name)
		if !ok || !bytes.Equal(content, s.Content) {
			return false
		}
	}

	return true
}
