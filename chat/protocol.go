package chat

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/cyberinferno/hashchat/config"
	"github.com/cyberinferno/hashchat/frame"
)

// Message types.
const (
	TypeHello  = "hello"
	TypeText   = "text"
	TypeActive = "active"
)

// Payload section names.
const (
	SectionNick = "nick"
	SectionText = "text"
)

// youSuffix marks the requester in an active reply.
const youSuffix = " (you)"

// HelloFrame builds a hello message claiming nick. The server sends the same
// frame back to reject a taken nickname.
func HelloFrame(nick string) *frame.Frame {
	return frame.New(TypeHello).SetString(SectionNick, nick)
}

// TextFrame builds a text message.
func TextFrame(text string) *frame.Frame {
	return frame.New(TypeText).SetString(SectionText, text)
}

// ActiveFrame builds a roster request.
func ActiveFrame() *frame.Frame {
	return frame.New(TypeActive)
}

// ValidateNickname checks that nick is 1 to config.MaxNicknameLength bytes of
// valid UTF-8, holds no control characters and does not start with '#'.
func ValidateNickname(nick string) error {
	if nick == "" || len(nick) > config.MaxNicknameLength {
		return fmt.Errorf("%w: length must be 1-%d bytes", ErrInvalidNickname, config.MaxNicknameLength)
	}
	if nick[0] == '#' {
		return fmt.Errorf("%w: must not start with '#'", ErrInvalidNickname)
	}
	if !utf8.ValidString(nick) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidNickname)
	}
	for _, r := range nick {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: contains control character %U", ErrInvalidNickname, r)
		}
	}

	return nil
}
