package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cyberinferno/hashchat/dispatch"
	"github.com/cyberinferno/hashchat/frame"
	"github.com/cyberinferno/hashchat/logger"
)

func newHandlerTable() *dispatch.Table[*Session] {
	return dispatch.NewTable[*Session]().
		Register(TypeHello, handleHello).
		Register(TypeText, handleText).
		Register(TypeActive, handleActive)
}

// handleHello claims the requested nickname. A taken nickname is echoed back
// in a hello frame and the connection ends.
func handleHello(s *Session, f *frame.Frame) error {
	if s.State() != StateConnecting {
		return &ProtocolError{Type: TypeHello, Err: ErrAlreadyRegistered}
	}

	raw, ok := f.Get(SectionNick)
	if !ok {
		return missingSection(TypeHello, SectionNick)
	}

	nick := string(raw)
	if err := ValidateNickname(nick); err != nil {
		return &ProtocolError{Type: TypeHello, Err: err}
	}

	if !s.srv.registry.TryClaim(nick, s) {
		if err := s.Send(HelloFrame(nick)); err != nil {
			s.log.Debug("rejection not queued", logger.Err(err))
		}
		return fmt.Errorf("%w: %q", ErrNicknameTaken, nick)
	}

	s.setNick(nick)
	s.setState(StateActive)
	s.log = s.log.With(logger.Field{Key: "nick", Value: nick})
	s.log.Info("client joined")

	return nil
}

// handleText relays the text to the explicit receivers, or to every other
// registered session when there are none. Only the text section is relayed.
func handleText(s *Session, f *frame.Frame) error {
	text, ok := f.Get(SectionText)
	if !ok {
		return missingSection(TypeText, SectionText)
	}

	raw, err := s.srv.codec.Encode(TextFrame(string(text)))
	if err != nil {
		return &ProtocolError{Type: TypeText, Err: err}
	}

	for _, r := range s.recipients() {
		if err := r.session.enqueue(raw); err != nil {
			s.log.Debug("message dropped", logger.Err(&DeliveryError{Nick: r.nick, Err: err}))
		}
	}

	return nil
}

type recipient struct {
	nick    string
	session *Session
}

func (s *Session) recipients() []recipient {
	// Broadcasts skip copying the receiver set.
	if s.receivers.Size() > 0 {
		if nicks := s.receivers.Values(); len(nicks) > 0 {
			return s.explicitRecipients(nicks)
		}
	}

	snap := s.srv.registry.Snapshot()
	out := make([]recipient, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		if e.Session != s {
			out = append(out, recipient{nick: e.Nick, session: e.Session})
		}
	}
	return out
}

func (s *Session) explicitRecipients(nicks []string) []recipient {
	sort.Strings(nicks)

	out := make([]recipient, 0, len(nicks))
	for _, nick := range nicks {
		peer, ok := s.srv.registry.Lookup(nick)
		if !ok {
			s.log.Debug("receiver not connected", logger.Field{Key: "receiver", Value: nick})
			continue
		}
		out = append(out, recipient{nick: nick, session: peer})
	}

	return out
}

// handleActive replies with the sorted roster, one nickname per line, the
// requester marked with " (you)".
func handleActive(s *Session, _ *frame.Frame) error {
	reg := s.srv.registry

	names, err := s.srv.roster.Names(s.ctx, reg.Revision(), func(context.Context) ([]string, error) {
		return reg.Snapshot().Nicknames(), nil
	})
	if err != nil {
		s.log.Warn("roster cache unavailable", logger.Err(err))
		names = reg.Snapshot().Nicknames()
	}

	if err := s.Send(TextFrame(RenderRoster(names, s.Nick()))); err != nil {
		s.log.Warn("roster reply dropped", logger.Err(err))
	}

	return nil
}

// RenderRoster joins names with newlines, ending with one, and appends
// " (you)" to self.
func RenderRoster(names []string, self string) string {
	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		if name == self {
			b.WriteString(youSuffix)
		}
		b.WriteByte('\n')
	}

	return b.String()
}
