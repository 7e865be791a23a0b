package chat

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/hashchat/config"
	"github.com/cyberinferno/hashchat/dispatch"
	"github.com/cyberinferno/hashchat/frame"
)

func pipeSession(t *testing.T, queue int) (*Session, net.Conn) {
	t.Helper()

	cfg := config.Defaults().Server
	cfg.WriteQueueSize = queue
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})

	return newSession(srv, 1, server), client
}

func TestSession_SendQueue(t *testing.T) {
	s, _ := pipeSession(t, 2)

	require.NoError(t, s.Send(TextFrame("1")))
	require.NoError(t, s.Send(TextFrame("2")))
	assert.ErrorIs(t, s.Send(TextFrame("3")), ErrQueueFull)

	s.setState(StateClosing)
	assert.ErrorIs(t, s.Send(TextFrame("4")), ErrSessionClosed)
}

func TestSession_CloseBeforeHandle(t *testing.T) {
	s, _ := pipeSession(t, 4)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s.Handle(context.Background())

	assert.Equal(t, StateClosed, s.State())
	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestSession_HandleOverPipe(t *testing.T) {
	s, client := pipeSession(t, 4)
	go s.Handle(context.Background())

	codec := frame.Text
	raw, err := codec.Encode(HelloFrame("alice"))
	require.NoError(t, err)
	_, err = client.Write(raw)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.State() == StateActive }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "alice", s.Nick())
	assert.True(t, s.srv.Registry().IsRegistered("alice"))

	raw, err = codec.Encode(ActiveFrame())
	require.NoError(t, err)
	_, err = client.Write(raw)
	require.NoError(t, err)

	asm := frame.NewAssembler(codec)
	buf := make([]byte, 256)
	var frames []*frame.Frame
	for len(frames) == 0 {
		n, err := client.Read(buf)
		require.NoError(t, err)
		frames, err = asm.Feed(buf[:n])
		require.NoError(t, err)
	}
	text, _ := frames[0].Get(SectionText)
	assert.Equal(t, "alice (you)\n", string(text))

	require.NoError(t, s.Close())
	<-s.Done()
	assert.False(t, s.srv.Registry().IsRegistered("alice"))
}

func TestSession_Receivers(t *testing.T) {
	s, _ := pipeSession(t, 1)
	assert.Empty(t, s.Receivers())

	s.SetReceivers("bob", "carol")
	assert.ElementsMatch(t, []string{"bob", "carol"}, s.Receivers())

	s.SetReceivers()
	assert.Empty(t, s.Receivers())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestValidateNickname(t *testing.T) {
	valid := []string{"a", "alice", "Alice Smith", "żółw", "a#b", strings.Repeat("x", config.MaxNicknameLength)}
	for _, nick := range valid {
		assert.NoError(t, ValidateNickname(nick), nick)
	}

	invalid := []string{"", "#alice", "new\nline", "tab\t", "\x00", "\xff\xfe", strings.Repeat("x", config.MaxNicknameLength+1)}
	for _, nick := range invalid {
		assert.ErrorIs(t, ValidateNickname(nick), ErrInvalidNickname, "%q", nick)
	}
}

func TestRenderRoster(t *testing.T) {
	assert.Equal(t, "alice\nbob (you)\n", RenderRoster([]string{"alice", "bob"}, "bob"))
	assert.Equal(t, "alice\n", RenderRoster([]string{"alice"}, ""))
	assert.Equal(t, "", RenderRoster(nil, "bob"))
}

func TestErrors(t *testing.T) {
	pe := &ProtocolError{Type: TypeText, Err: ErrNotRegistered}
	assert.ErrorIs(t, pe, ErrNotRegistered)
	assert.Contains(t, pe.Error(), `"text"`)

	de := &DeliveryError{Nick: "bob", Err: ErrQueueFull}
	assert.ErrorIs(t, de, ErrQueueFull)
	assert.Contains(t, de.Error(), "bob")

	var ms *ProtocolError
	require.True(t, errors.As(missingSection(TypeHello, SectionNick), &ms))
	assert.ErrorIs(t, ms, ErrMissingSection)
}

func TestHandlerTable(t *testing.T) {
	table := newHandlerTable()
	assert.Equal(t, []string{TypeActive, TypeHello, TypeText}, table.Tags())

	s, _ := pipeSession(t, 1)
	err := table.Dispatch(s, frame.New("shout"))
	var ute *dispatch.UnknownMessageTypeError
	assert.ErrorAs(t, err, &ute)
}
