package frame

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cyberinferno/hashchat/streambuf"
)

// Wire bytes of the text framing.
const (
	marker     = '#'
	escape     = '\\'
	terminator = '\n'
)

// Text is the delimited text codec:
//
//	#type\n
//	text\n
//	#text\n
//	50\# off\n
//	#\n
//
// Every section starts with a header line holding the marker byte and the
// section name. Section content is escaped in one pass: the escape byte, the
// line terminator and the marker byte are each prefixed with the escape byte.
// A header line with an empty name ends the frame.
var Text Codec = textCodec{}

type textCodec struct{}

func (textCodec) Name() string {
	return TextCodecName
}

func (textCodec) Encode(f *Frame) ([]byte, error) {
	size := 2
	for _, s := range f.sections {
		size += len(s.Name) + 3 + len(s.Content) + len(s.Content)/8
	}

	out := make([]byte, 0, size)
	for _, s := range f.sections {
		if s.Name == "" || strings.IndexByte(s.Name, terminator) >= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSectionName, s.Name)
		}

		out = append(out, marker)
		out = append(out, s.Name...)
		out = append(out, terminator)
		out = appendEscaped(out, s.Content)
		out = append(out, terminator)
	}

	return append(out, marker, terminator), nil
}

func appendEscaped(dst, content []byte) []byte {
	for _, c := range content {
		switch c {
		case escape, terminator, marker:
			dst = append(dst, escape, c)
		default:
			dst = append(dst, c)
		}
	}

	return dst
}

func (textCodec) Decode(raw []byte) (*Frame, error) {
	line, pos, err := nextLine(raw, 0)
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[0] != marker {
		return nil, malformed(0, "expected section header")
	}

	f := &Frame{}
	name := line[1:]
	for len(name) > 0 {
		content := []byte{}
		var header []byte

		for header == nil {
			if pos >= len(raw) {
				return nil, malformed(pos, "missing frame terminator")
			}

			line, pos, err = nextLine(raw, pos)
			if err != nil {
				return nil, err
			}

			if len(line) > 0 && line[0] == marker {
				header = line[1:]
				continue
			}

			content = appendUnescaped(content, line)
		}

		f.Set(string(name), content)
		name = header
	}

	if pos != len(raw) {
		return nil, malformed(pos, "%d bytes after frame terminator", len(raw)-pos)
	}

	return f, nil
}

// nextLine returns the line starting at pos without its terminator and the
// position after the terminator.
func nextLine(raw []byte, pos int) ([]byte, int, error) {
	i := bytes.IndexByte(raw[pos:], terminator)
	if i < 0 {
		return nil, 0, malformed(pos, "missing line terminator")
	}

	return raw[pos : pos+i], pos + i + 1, nil
}

// appendUnescaped appends one body line. A trailing escape byte stands for an
// escaped line terminator; an escape before any byte other than the escape or
// marker byte is kept as is.
func appendUnescaped(dst, line []byte) []byte {
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c != escape {
			dst = append(dst, c)
			continue
		}

		if i == len(line)-1 {
			dst = append(dst, terminator)
			continue
		}

		switch next := line[i+1]; next {
		case escape, marker:
			dst = append(dst, next)
			i++
		default:
			dst = append(dst, c)
		}
	}

	return dst
}

func (textCodec) NewSplitter() Splitter {
	return &textSplitter{lineStart: true}
}

// textSplitter looks for the first physical line equal to "#\n". Body lines
// never start with an unescaped marker, so that line can only be the frame
// terminator. Scanning resumes where the previous call stopped.
type textSplitter struct {
	scanned   int
	lineStart bool
	sawMarker bool
}

func (s *textSplitter) Split(buf *streambuf.Buffer) (int, error) {
	end := buf.IndexFunc(s.scanned, func(c byte) bool {
		switch {
		case c == terminator && s.sawMarker:
			return true
		case c == terminator:
			s.lineStart = true
		case c == marker && s.lineStart:
			s.sawMarker = true
			s.lineStart = false
		default:
			s.lineStart = false
			s.sawMarker = false
		}

		return false
	})

	if end < 0 {
		s.scanned = buf.Len()
		return 0, nil
	}

	s.scanned = 0
	s.lineStart = true
	s.sawMarker = false

	return end + 1, nil
}
