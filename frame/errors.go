package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame matches every *MalformedFrameError via errors.Is.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrFrameTooLarge is returned when a frame exceeds the configured or
	// encodable size.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrInvalidSectionName is returned when encoding a section whose name is
	// empty or contains a line terminator.
	ErrInvalidSectionName = errors.New("invalid section name")
	// ErrUnknownBinaryType is returned when the binary codec has no tag for a
	// frame's type.
	ErrUnknownBinaryType = errors.New("no binary tag for frame type")
)

// MalformedFrameError describes a structural violation found while decoding.
type MalformedFrameError struct {
	Offset int
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame at byte %d: %s", e.Offset, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedFrame) true for any MalformedFrameError.
func (e *MalformedFrameError) Is(target error) bool {
	return target == ErrMalformedFrame
}

func malformed(offset int, format string, args ...any) error {
	return &MalformedFrameError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
