package chat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/hashchat/config"
	"github.com/cyberinferno/hashchat/frame"
	"github.com/cyberinferno/hashchat/logger"
	"github.com/cyberinferno/hashchat/roster"
)

const waitFor = 2 * time.Second

func startServer(t *testing.T, codec string, opts ...ServerOption) *Server {
	t.Helper()

	cfg := config.Defaults().Server
	cfg.Addr = "127.0.0.1:0"
	cfg.Codec = codec

	srv, err := NewServer(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Stop)

	return srv
}

// peer is a raw protocol client.
type peer struct {
	t       *testing.T
	conn    net.Conn
	codec   frame.Codec
	asm     *frame.Assembler
	pending []*frame.Frame
}

func connect(t *testing.T, srv *Server) *peer {
	t.Helper()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &peer{t: t, conn: conn, codec: srv.Codec(), asm: frame.NewAssembler(srv.Codec())}
}

// join connects, claims nick and waits until the server registered it.
func join(t *testing.T, srv *Server, nick string) *peer {
	t.Helper()

	p := connect(t, srv)
	p.send(HelloFrame(nick))
	require.Eventually(t, func() bool {
		s, ok := srv.Registry().Lookup(nick)
		return ok && s.State() == StateActive
	}, waitFor, 5*time.Millisecond)

	return p
}

func (p *peer) send(f *frame.Frame) {
	p.t.Helper()

	raw, err := p.codec.Encode(f)
	require.NoError(p.t, err)
	p.sendRaw(raw)
}

func (p *peer) sendRaw(raw []byte) {
	p.t.Helper()

	_, err := p.conn.Write(raw)
	require.NoError(p.t, err)
}

func (p *peer) recv() *frame.Frame {
	p.t.Helper()

	f, err := p.next()
	require.NoError(p.t, err)
	return f
}

func (p *peer) next() (*frame.Frame, error) {
	buf := make([]byte, 4096)
	_ = p.conn.SetReadDeadline(time.Now().Add(waitFor))

	for len(p.pending) == 0 {
		n, err := p.conn.Read(buf)
		if n > 0 {
			frames, ferr := p.asm.Feed(buf[:n])
			if ferr != nil {
				return nil, ferr
			}
			p.pending = append(p.pending, frames...)
		}
		if err != nil && len(p.pending) == 0 {
			return nil, err
		}
	}

	f := p.pending[0]
	p.pending = p.pending[1:]
	return f, nil
}

func (p *peer) recvText() string {
	p.t.Helper()

	f := p.recv()
	require.Equal(p.t, TypeText, f.Type())
	text, _ := f.Get(SectionText)
	return string(text)
}

// expectClosed reads until the server closes the connection.
func (p *peer) expectClosed() {
	p.t.Helper()

	for {
		_, err := p.next()
		if err == nil {
			continue
		}
		require.True(p.t, errors.Is(err, io.EOF) || isReset(err), "unexpected error %v", err)
		return
	}
}

func isReset(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && !opErr.Timeout()
}

func TestServer_Join(t *testing.T) {
	srv := startServer(t, config.CodecText)
	join(t, srv, "alice")

	s, ok := srv.Registry().Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "alice", s.Nick())
	assert.Equal(t, StateActive, s.State())
}

func TestServer_RejectedJoin(t *testing.T) {
	srv := startServer(t, config.CodecText)
	join(t, srv, "alice")
	first, _ := srv.Registry().Lookup("alice")

	p := connect(t, srv)
	p.send(HelloFrame("alice"))

	f := p.recv()
	assert.Equal(t, TypeHello, f.Type())
	nick, _ := f.Get(SectionNick)
	assert.Equal(t, "alice", string(nick))
	p.expectClosed()

	owner, ok := srv.Registry().Lookup("alice")
	require.True(t, ok)
	assert.Same(t, first, owner)
	assert.Equal(t, 1, srv.Registry().Len())
}

func TestServer_Broadcast(t *testing.T) {
	srv := startServer(t, config.CodecText)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")
	carol := join(t, srv, "carol")

	alice.send(TextFrame("alice: hi\n#all"))

	assert.Equal(t, "alice: hi\n#all", bob.recvText())
	assert.Equal(t, "alice: hi\n#all", carol.recvText())

	// The sender gets no copy: its next frame is the roster reply.
	alice.send(ActiveFrame())
	assert.Equal(t, "alice (you)\nbob\ncarol\n", alice.recvText())
}

func TestServer_PerSenderOrder(t *testing.T) {
	srv := startServer(t, config.CodecText)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")

	for _, msg := range []string{"one", "two", "three"} {
		alice.send(TextFrame(msg))
	}

	assert.Equal(t, "one", bob.recvText())
	assert.Equal(t, "two", bob.recvText())
	assert.Equal(t, "three", bob.recvText())
}

func TestServer_Roster(t *testing.T) {
	srv := startServer(t, config.CodecText, WithRoster(roster.NewMemory(time.Minute)))
	join(t, srv, "alice")
	bob := join(t, srv, "bob")

	bob.send(ActiveFrame())
	assert.Equal(t, "alice\nbob (you)\n", bob.recvText())

	join(t, srv, "aaron")
	bob.send(ActiveFrame())
	assert.Equal(t, "aaron\nalice\nbob (you)\n", bob.recvText())
}

func TestServer_RedisRosterAcrossRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := config.Defaults().Roster
	rc.Backend = config.RosterRedis
	rc.RedisAddr = mr.Addr()

	// Both runs use the same key namespace, as a restarted process would.
	activeAfterJoin := func(nick string) string {
		cache, err := roster.New(rc, "127.0.0.1:7000")
		require.NoError(t, err)
		defer cache.Close()

		srv := startServer(t, config.CodecText, WithRoster(cache))
		defer srv.Stop()

		p := join(t, srv, nick)
		p.send(ActiveFrame())
		return p.recvText()
	}

	assert.Equal(t, "alice (you)\n", activeAfterJoin("alice"))
	assert.Equal(t, "bob (you)\n", activeAfterJoin("bob"))
}

func TestServer_DeliveryFailureSkipsReceiver(t *testing.T) {
	srv := startServer(t, config.CodecText)
	alice := join(t, srv, "alice")
	join(t, srv, "bob")
	carol := join(t, srv, "carol")

	// bob sorts before carol, so his failed enqueue happens first.
	bob, _ := srv.Registry().Lookup("bob")
	bob.setState(StateClosing)

	alice.send(TextFrame("still delivered"))
	assert.Equal(t, "still delivered", carol.recvText())

	alice.send(ActiveFrame())
	assert.Equal(t, "alice (you)\nbob\ncarol\n", alice.recvText(), "sender stays connected")
	s, _ := srv.Registry().Lookup("alice")
	assert.Equal(t, StateActive, s.State())
}

func TestServer_TextRelaysOnlyText(t *testing.T) {
	srv := startServer(t, config.CodecText)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")

	alice.send(TextFrame("hi").SetString(SectionNick, "mallory").SetString("extra", "x"))

	f := bob.recv()
	assert.Equal(t, TypeText, f.Type())
	assert.Equal(t, 2, f.Len())
	assert.False(t, f.Has(SectionNick))
	text, _ := f.Get(SectionText)
	assert.Equal(t, "hi", string(text))
}

func TestServer_ExplicitReceivers(t *testing.T) {
	srv := startServer(t, config.CodecText)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")
	carol := join(t, srv, "carol")

	s, _ := srv.Registry().Lookup("alice")
	s.SetReceivers("carol", "nobody")

	alice.send(TextFrame("psst"))
	assert.Equal(t, "psst", carol.recvText())

	bob.send(ActiveFrame())
	assert.Equal(t, "alice\nbob (you)\ncarol\n", bob.recvText(), "bob got no copy")
}

func TestServer_FatalErrors(t *testing.T) {
	tests := []struct {
		name   string
		joined bool
		raw    string
	}{
		{"unknown type", true, "#type\nshout\n#\n"},
		{"text before hello", false, "#type\ntext\n#text\nhi\n#\n"},
		{"active before hello", false, "#type\nactive\n#\n"},
		{"second hello", true, "#type\nhello\n#nick\nother\n#\n"},
		{"hello without nick", false, "#type\nhello\n#\n"},
		{"empty nick", false, "#type\nhello\n#nick\n\n#\n"},
		{"text without body", true, "#type\ntext\n#\n"},
		{"malformed frame", false, "garbage\n#\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := startServer(t, config.CodecText)

			var p *peer
			if tt.joined {
				p = join(t, srv, "alice")
			} else {
				p = connect(t, srv)
			}

			p.sendRaw([]byte(tt.raw))
			p.expectClosed()

			require.Eventually(t, func() bool { return srv.Registry().Len() == 0 }, waitFor, 5*time.Millisecond)
		})
	}
}

func TestServer_DisconnectReleasesNickname(t *testing.T) {
	srv := startServer(t, config.CodecText)
	alice := join(t, srv, "alice")
	s, _ := srv.Registry().Lookup("alice")

	require.NoError(t, alice.conn.Close())

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not close")
	}
	assert.Equal(t, StateClosed, s.State())
	assert.False(t, srv.Registry().IsRegistered("alice"))

	join(t, srv, "alice")
}

func TestServer_StopClosesEverySession(t *testing.T) {
	cfg := config.Defaults().Server
	cfg.Addr = "127.0.0.1:0"
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))

	peers := []*peer{join(t, srv, "alice"), join(t, srv, "bob"), connect(t, srv)}
	require.Eventually(t, func() bool { return srv.SessionCount() == 3 }, waitFor, 5*time.Millisecond)

	snap := srv.Registry().Snapshot()
	srv.Stop()

	for _, e := range snap.Entries {
		assert.Equal(t, StateClosed, e.Session.State())
	}
	assert.Equal(t, 0, srv.Registry().Len())
	assert.Equal(t, 0, srv.SessionCount())

	for _, p := range peers {
		p.expectClosed()
	}

	srv.Stop()
}

func TestServer_Binary(t *testing.T) {
	srv := startServer(t, config.CodecBinary)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")

	alice.send(TextFrame("alice: binary\x00ok"))
	assert.Equal(t, "alice: binary\x00ok", bob.recvText())

	bob.send(ActiveFrame())
	assert.Equal(t, "alice\nbob (you)\n", bob.recvText())

	p := connect(t, srv)
	p.send(HelloFrame("bob"))
	f := p.recv()
	assert.Equal(t, TypeHello, f.Type())
	p.expectClosed()
}

func TestServer_FrameSplitAcrossWrites(t *testing.T) {
	srv := startServer(t, config.CodecText)
	alice := join(t, srv, "alice")
	bob := join(t, srv, "bob")

	raw, err := frame.Text.Encode(TextFrame("split\nacross\\writes"))
	require.NoError(t, err)

	for i := range raw {
		alice.sendRaw(raw[i : i+1])
	}
	assert.Equal(t, "split\nacross\\writes", bob.recvText())
}

func TestServer_ContextCancelEndsSessions(t *testing.T) {
	cfg := config.Defaults().Server
	cfg.Addr = "127.0.0.1:0"
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	defer srv.Stop()

	alice := join(t, srv, "alice")
	cancel()

	alice.expectClosed()
	require.Eventually(t, func() bool { return srv.Registry().Len() == 0 }, waitFor, 5*time.Millisecond)
}

func TestServer_StartLogsHandledTypes(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New(logger.Options{Service: "chat", Level: "debug", Output: &buf})
	require.NoError(t, err)

	startServer(t, config.CodecBinary, WithLogger(log))

	out := buf.String()
	assert.Contains(t, out, "chat server listening")
	assert.Contains(t, out, `"codec":"binary"`)
	assert.Contains(t, out, `"types":["active","hello","text"]`)
}

func TestNewServer_UnknownCodec(t *testing.T) {
	cfg := config.Defaults().Server
	cfg.Codec = "xml"
	_, err := NewServer(cfg)
	assert.Error(t, err)
}
