package chat

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/hashchat/frame"
	"github.com/cyberinferno/hashchat/logger"
	"github.com/cyberinferno/hashchat/safeset"
)

// State is the lifecycle stage of a Session.
type State int32

const (
	// StateConnecting waits for a hello.
	StateConnecting State = iota
	// StateActive holds a nickname and exchanges messages.
	StateActive
	// StateClosing no longer accepts outbound messages.
	StateClosing
	// StateClosed released its nickname and closed the connection.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the server side of one client connection. A reader goroutine
// decodes and handles frames in arrival order; a writer goroutine drains the
// outbound queue so a slow peer never blocks other sessions.
type Session struct {
	id        uint64
	conn      net.Conn
	srv       *Server
	log       logger.Logger
	assembler *frame.Assembler
	receivers *safeset.SafeSet[string]

	outbox    chan []byte
	drain     chan struct{}
	closed    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// ctx is the reader's context; only handlers use it.
	ctx context.Context

	mu    sync.RWMutex
	nick  string
	state atomic.Int32
}

func newSession(srv *Server, id uint64, conn net.Conn) *Session {
	return &Session{
		id:   id,
		conn: conn,
		srv:  srv,
		log: srv.log.With(
			logger.Field{Key: "session_id", Value: id},
			logger.Field{Key: "remote_addr", Value: conn.RemoteAddr().String()},
		),
		assembler: frame.NewAssembler(srv.codec, frame.MaxFrameSizeOption(srv.cfg.MaxFrameSize)),
		receivers: safeset.NewSafeSet[string](),
		outbox:    make(chan []byte, srv.cfg.WriteQueueSize),
		drain:     make(chan struct{}),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
		ctx:       context.Background(),
	}
}

// ID returns the connection id assigned by the listener.
func (s *Session) ID() uint64 {
	return s.id
}

// Nick returns the claimed nickname, or "" before a successful hello.
func (s *Session) Nick() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nick
}

func (s *Session) setNick(nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nick = nick
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Done is closed once the session reached StateClosed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// SetReceivers restricts this session's text messages to the given
// nicknames. No nicknames restores broadcasting to every other session.
func (s *Session) SetReceivers(nicks ...string) {
	s.receivers.Replace(nicks...)
}

// Receivers returns the explicit receiver nicknames, if any.
func (s *Session) Receivers() []string {
	return s.receivers.Values()
}

// Send encodes f and queues it for the peer without blocking.
//
// Parameters:
//   - f: The frame to send
//
// Returns:
//   - ErrQueueFull if the outbound queue is full, ErrSessionClosed once the
//     session is closing, or the encoding error
func (s *Session) Send(f *frame.Frame) error {
	raw, err := s.srv.codec.Encode(f)
	if err != nil {
		return err
	}

	return s.enqueue(raw)
}

// enqueue queues already encoded bytes. The outbox is never closed, so a send
// racing with teardown cannot panic.
func (s *Session) enqueue(raw []byte) error {
	if s.State() >= StateClosing {
		return ErrSessionClosed
	}

	select {
	case s.outbox <- raw:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close asks the session to stop. Queued messages are discarded. Safe to call
// more than once and from any goroutine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// Handle runs the session until the peer leaves, a fatal error occurs, ctx is
// cancelled or Close is called. The nickname is released and the connection
// closed on every path.
func (s *Session) Handle(ctx context.Context) {
	defer s.teardown()

	g, gctx := errgroup.WithContext(ctx)
	s.ctx = gctx

	// A read blocked in the kernel only returns on data or deadline.
	stop := context.AfterFunc(gctx, func() { _ = s.conn.SetReadDeadline(time.Now()) })
	defer stop()

	s.log.Debug("session started")

	var rejected error
	g.Go(func() error {
		err := s.readLoop(gctx)
		if errors.Is(err, ErrNicknameTaken) {
			// Let the writer flush the rejection before the connection closes.
			rejected = err
			s.setState(StateClosing)
			close(s.drain)
			return nil
		}
		return err
	})
	g.Go(func() error {
		return s.writeLoop(gctx)
	})

	err := g.Wait()
	if rejected != nil {
		err = rejected
	}
	s.logExit(err)
}

func (s *Session) readLoop(ctx context.Context) error {
	buf := make([]byte, s.srv.cfg.ReadBufferSize)

	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			frames, ferr := s.assembler.Feed(buf[:n])
			for _, f := range frames {
				if herr := s.handleFrame(f); herr != nil {
					return herr
				}
			}
			if ferr != nil {
				return ferr
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func (s *Session) handleFrame(f *frame.Frame) error {
	typ := f.Type()
	if s.State() == StateConnecting && typ != TypeHello && s.srv.handlers.Has(typ) {
		return &ProtocolError{Type: typ, Err: ErrNotRegistered}
	}

	return s.srv.handlers.Dispatch(s, f)
}

func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case raw := <-s.outbox:
			if err := s.write(raw); err != nil {
				return err
			}
		case <-s.drain:
			for {
				select {
				case raw := <-s.outbox:
					if err := s.write(raw); err != nil {
						return err
					}
				default:
					return errDrained
				}
			}
		case <-s.closed:
			return ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) write(raw []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.srv.cfg.WriteTimeout)); err != nil {
		return err
	}

	_, err := s.conn.Write(raw)
	return err
}

func (s *Session) teardown() {
	s.setState(StateClosing)

	if nick := s.Nick(); nick != "" {
		s.srv.registry.Release(nick, s)
	}

	_ = s.conn.Close()
	s.setState(StateClosed)
	close(s.done)

	s.log.Debug("session closed")
}

func (s *Session) logExit(err error) {
	switch {
	case errors.Is(err, ErrNicknameTaken):
		s.log.Info("nickname rejected", logger.Err(err))
	case err == nil,
		errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, ErrSessionClosed),
		errors.Is(err, context.Canceled):
		s.log.Info("client left", logger.Field{Key: "nick", Value: s.Nick()})
	default:
		s.log.Warn("closing connection", logger.Err(err))
	}
}
