package frame

import (
	"fmt"

	"github.com/cyberinferno/hashchat/streambuf"
)

const (
	// binaryHeaderSize is the width of the big-endian length prefix.
	binaryHeaderSize = 3
	// MaxBinaryBody is the largest body the 3-byte length prefix can carry
	// alongside the trailing type byte.
	MaxBinaryBody = 1<<24 - 2
)

// EncodeBinary builds a length-prefixed binary frame:
//
//	[3 bytes big-endian len(body)+1][body][tag]
//
// Parameters:
//   - body: The raw message body
//   - tag: The message type tag
//
// Returns:
//   - The encoded frame, or ErrFrameTooLarge if body does not fit the prefix
func EncodeBinary(body []byte, tag byte) ([]byte, error) {
	if len(body) > MaxBinaryBody {
		return nil, fmt.Errorf("%w: body of %d bytes", ErrFrameTooLarge, len(body))
	}

	n := len(body) + 1
	out := make([]byte, 0, binaryHeaderSize+n)
	out = append(out, byte(n>>16), byte(n>>8), byte(n))
	out = append(out, body...)

	return append(out, tag), nil
}

// DecodeTypeAndBody splits a complete binary frame into its type tag and
// body. The body shares memory with raw.
//
// Parameters:
//   - raw: Exactly one encoded frame, length prefix included
//
// Returns:
//   - The type tag and the body, or a *MalformedFrameError
func DecodeTypeAndBody(raw []byte) (byte, []byte, error) {
	if len(raw) < binaryHeaderSize {
		return 0, nil, malformed(0, "short length prefix")
	}

	n := binaryLength(raw)
	if n == 0 {
		return 0, nil, malformed(0, "zero length frame has no type byte")
	}
	if binaryHeaderSize+n != len(raw) {
		return 0, nil, malformed(0, "length prefix %d does not match %d payload bytes", n, len(raw)-binaryHeaderSize)
	}

	end := len(raw) - 1
	return raw[end], raw[binaryHeaderSize:end:end], nil
}

func binaryLength(p []byte) int {
	return int(p[0])<<16 | int(p[1])<<8 | int(p[2])
}

// BinaryType maps a frame type to its binary tag. Payload names the section
// carried as the binary body; an empty Payload means the type has no body.
type BinaryType struct {
	Name    string
	Tag     byte
	Payload string
}

// DefaultBinaryTypes is the tag table of the chat protocol.
var DefaultBinaryTypes = []BinaryType{
	{Name: "active", Tag: 0x00},
	{Name: "hello", Tag: 0x01, Payload: "nick"},
	{Name: "text", Tag: 0x02, Payload: "text"},
}

type binaryCodec struct {
	byName map[string]BinaryType
	byTag  map[byte]BinaryType
}

// NewBinary returns the length-prefixed codec for the given type table, or
// for DefaultBinaryTypes when none is given. A binary frame carries only the
// type and its payload section; other sections are not transmitted.
func NewBinary(types ...BinaryType) Codec {
	if len(types) == 0 {
		types = DefaultBinaryTypes
	}

	c := binaryCodec{
		byName: make(map[string]BinaryType, len(types)),
		byTag:  make(map[byte]BinaryType, len(types)),
	}
	for _, t := range types {
		c.byName[t.Name] = t
		c.byTag[t.Tag] = t
	}

	return c
}

func (binaryCodec) Name() string {
	return BinaryCodecName
}

func (c binaryCodec) Encode(f *Frame) ([]byte, error) {
	t, ok := c.byName[f.Type()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBinaryType, f.Type())
	}

	var body []byte
	if t.Payload != "" {
		body, _ = f.Get(t.Payload)
	}

	return EncodeBinary(body, t.Tag)
}

func (c binaryCodec) Decode(raw []byte) (*Frame, error) {
	tag, body, err := DecodeTypeAndBody(raw)
	if err != nil {
		return nil, err
	}

	t, ok := c.byTag[tag]
	if !ok {
		return nil, malformed(len(raw)-1, "unknown type tag 0x%02x", tag)
	}

	f := New(t.Name)
	if t.Payload != "" {
		f.Set(t.Payload, body)
	} else if len(body) > 0 {
		return nil, malformed(binaryHeaderSize, "type %q carries no body", t.Name)
	}

	return f, nil
}

func (binaryCodec) NewSplitter() Splitter {
	return binarySplitter{}
}

type binarySplitter struct{}

func (binarySplitter) Split(buf *streambuf.Buffer) (int, error) {
	if buf.Len() < binaryHeaderSize {
		return 0, nil
	}

	n := binaryLength(buf.Peek(binaryHeaderSize))
	if n == 0 {
		return 0, malformed(0, "zero length frame has no type byte")
	}

	total := binaryHeaderSize + n
	if buf.Len() < total {
		return 0, nil
	}

	return total, nil
}
