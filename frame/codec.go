package frame

import (
	"fmt"

	"github.com/cyberinferno/hashchat/streambuf"
)

// Codec converts frames to and from their wire form. A connection uses a
// single codec for its whole lifetime.
type Codec interface {
	// Name returns the codec identifier used in configuration.
	Name() string

	// Encode returns the self-delimiting wire form of f.
	Encode(f *Frame) ([]byte, error)

	// Decode parses exactly one complete wire frame.
	Decode(raw []byte) (*Frame, error)

	// NewSplitter returns a boundary detector for one byte stream.
	NewSplitter() Splitter
}

// Splitter finds frame boundaries in buffered stream data. A Splitter may keep
// state between calls and belongs to a single stream.
type Splitter interface {
	// Split returns the length of the complete frame at the front of buf, or 0
	// when more input is needed. After a non-zero result the caller must
	// consume exactly that many bytes before calling Split again.
	Split(buf *streambuf.Buffer) (int, error)
}

// Codec names accepted by ByName.
const (
	TextCodecName   = "text"
	BinaryCodecName = "binary"
)

// ByName returns the codec registered under name. The binary codec uses the
// default type table.
//
// Parameters:
//   - name: "text" or "binary"
//
// Returns:
//   - The codec, or an error for an unknown name
func ByName(name string) (Codec, error) {
	switch name {
	case TextCodecName, "":
		return Text, nil
	case BinaryCodecName:
		return NewBinary(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
