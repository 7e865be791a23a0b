package frame

import (
	"fmt"

	"github.com/cyberinferno/hashchat/streambuf"
)

// DefaultMaxFrameSize bounds the bytes a single frame may occupy (1MB).
const DefaultMaxFrameSize = 1024 * 1024

// Assembler recovers complete frames from a byte stream that may be split
// arbitrarily across reads. It is owned by one connection and is not safe for
// concurrent use.
type Assembler struct {
	codec        Codec
	splitter     Splitter
	buf          *streambuf.Buffer
	maxFrameSize int
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// MaxFrameSizeOption limits the wire size of a single frame. Non-positive
// values keep DefaultMaxFrameSize.
func MaxFrameSizeOption(size int) AssemblerOption {
	return func(a *Assembler) {
		if size > 0 {
			a.maxFrameSize = size
		}
	}
}

// NewAssembler returns an Assembler decoding frames with codec.
func NewAssembler(codec Codec, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		codec:        codec,
		splitter:     codec.NewSplitter(),
		buf:          streambuf.New(),
		maxFrameSize: DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Feed adds newly read bytes and returns every frame completed so far, in
// order. Bytes of an incomplete trailing frame stay buffered for the next
// call. p is copied, so the caller may reuse it.
//
// On error Feed still returns the frames decoded before the failure; the
// stream cannot be resynchronised afterwards.
//
// Parameters:
//   - p: Bytes just read from the transport
//
// Returns:
//   - The complete frames, possibly none
//   - A *MalformedFrameError or ErrFrameTooLarge
func (a *Assembler) Feed(p []byte) ([]*Frame, error) {
	if len(p) > 0 {
		chunk := make([]byte, len(p))
		copy(chunk, p)
		a.buf.Write(chunk)
	}

	var frames []*Frame
	for {
		n, err := a.splitter.Split(a.buf)
		if err != nil {
			return frames, err
		}

		if n == 0 {
			if a.buf.Len() > a.maxFrameSize {
				return frames, fmt.Errorf("%w: %d bytes buffered without a complete frame", ErrFrameTooLarge, a.buf.Len())
			}

			return frames, nil
		}

		if n > a.maxFrameSize {
			return frames, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
		}

		f, err := a.codec.Decode(a.buf.Read(n))
		if err != nil {
			return frames, err
		}

		frames = append(frames, f)
	}
}

// Buffered returns the number of bytes waiting for the rest of their frame.
func (a *Assembler) Buffered() int {
	return a.buf.Len()
}
