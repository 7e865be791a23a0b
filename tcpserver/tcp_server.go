// Package tcpserver runs a TCP accept loop and hands every connection to its
// own session goroutine.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/hashchat/idgenerator"
	"github.com/cyberinferno/hashchat/logger"
	"github.com/cyberinferno/hashchat/safemap"
)

// acceptRetryDelay paces the accept loop after a transient accept error.
const acceptRetryDelay = 50 * time.Millisecond

// NewSessionFunc creates the TCPServerSession handling conn. It receives the
// id assigned by the server.
type NewSessionFunc func(id uint64, conn net.Conn) TCPServerSession

// TCPServer accepts connections and delegates each one to a session created
// by NewSession. Stop waits until every session goroutine has returned.
type TCPServer struct {
	Logger     logger.Logger
	Name       string
	Addr       string
	NewSession NewSessionFunc

	listener net.Listener
	sessions *safemap.SafeMap[uint64, TCPServerSession]
	ids      *idgenerator.IdGenerator
	running  atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New returns a TCPServer ready to Start.
//
// Parameters:
//   - name: Server name used in log messages
//   - addr: host:port to listen on; port 0 picks a free port
//   - newSession: Factory for per-connection sessions
//   - log: Logger for server events
//
// Returns:
//   - A new TCPServer
func New(name, addr string, newSession NewSessionFunc, log logger.Logger) *TCPServer {
	return &TCPServer{
		Logger:     log,
		Name:       name,
		Addr:       addr,
		NewSession: newSession,
		sessions:   safemap.NewSafeMap[uint64, TCPServerSession](),
		ids:        idgenerator.NewIdGenerator(0),
	}
}

// Start binds Addr and runs the accept loop in a goroutine. Cancelling ctx has
// the same effect on sessions as Stop, but only Stop waits for them.
//
// Parameters:
//   - ctx: Parent context of every session
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *TCPServer) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("server %s already running", s.Name)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		s.running.Store(false)
		s.Logger.Error("server failed to start", logger.Err(err))
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.listener = ln
	s.cancel = cancel

	context.AfterFunc(ctx, func() { _ = ln.Close() })

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.Field{Key: "addr", Value: ln.Addr().String()})

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	return nil
}

// Stop closes the listener, closes every session and returns once all session
// goroutines have finished. Safe to call more than once and when the server
// is not running.
func (s *TCPServer) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	s.cancel()
	_ = s.listener.Close()

	s.sessions.Range(func(_ uint64, session TCPServerSession) bool {
		_ = session.Close()
		return true
	})

	s.wg.Wait()
	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
}

// ListenAddr returns the bound address, or nil before Start.
func (s *TCPServer) ListenAddr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// SessionCount returns the number of live sessions.
func (s *TCPServer) SessionCount() int {
	return s.sessions.Len()
}

// acceptLoop accepts connections until the listener is closed. Every session
// runs in its own goroutine tracked by s.wg and is removed from the session
// table when Handle returns.
func (s *TCPServer) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		id := s.ids.Id()
		session := s.NewSession(id, conn)
		s.sessions.Store(id, session)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sessions.Delete(id)
			session.Handle(ctx)
		}()
	}
}
