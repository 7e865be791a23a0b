// Package chat implements the chat server: per-connection sessions, the
// hello/text/active handlers and the server tying them to a listener and a
// shared nickname registry.
package chat

import (
	"context"
	"net"

	"github.com/cyberinferno/hashchat/config"
	"github.com/cyberinferno/hashchat/dispatch"
	"github.com/cyberinferno/hashchat/frame"
	"github.com/cyberinferno/hashchat/logger"
	"github.com/cyberinferno/hashchat/registry"
	"github.com/cyberinferno/hashchat/roster"
	"github.com/cyberinferno/hashchat/tcpserver"
)

// Server accepts chat connections and routes messages between them.
type Server struct {
	cfg      config.ServerConfig
	log      logger.Logger
	codec    frame.Codec
	registry *registry.Registry[*Session]
	roster   roster.Cache
	handlers *dispatch.Table[*Session]
	tcp      *tcpserver.TCPServer
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger. Sessions derive theirs from it.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithRoster sets the cache used for active replies. The caller closes it.
func WithRoster(c roster.Cache) ServerOption {
	return func(s *Server) {
		s.roster = c
	}
}

// WithRegistry makes the server share an existing registry.
func WithRegistry(r *registry.Registry[*Session]) ServerOption {
	return func(s *Server) {
		s.registry = r
	}
}

// NewServer builds a Server from cfg. It does not listen until Start.
//
// Parameters:
//   - cfg: Listen address, codec and per-session limits
//   - opts: Optional logger, roster cache and registry
//
// Returns:
//   - The Server, or an error for an unknown codec
func NewServer(cfg config.ServerConfig, opts ...ServerOption) (*Server, error) {
	codec, err := frame.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		log:      logger.Nop(),
		codec:    codec,
		registry: registry.New[*Session](),
		roster:   roster.None(),
		handlers: newHandlerTable(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.tcp = tcpserver.New("chat", cfg.Addr, func(id uint64, conn net.Conn) tcpserver.TCPServerSession {
		return newSession(s, id, conn)
	}, s.log)

	return s, nil
}

// Start binds the listen address and starts accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if err := s.tcp.Start(ctx); err != nil {
		return err
	}

	s.log.Debug("chat server listening",
		logger.Field{Key: "addr", Value: s.Addr().String()},
		logger.Field{Key: "codec", Value: s.codec.Name()},
		logger.Field{Key: "types", Value: s.handlers.Tags()},
	)

	return nil
}

// Stop stops accepting, ends every session and returns once all of them are
// closed. Safe to call more than once.
func (s *Server) Stop() {
	s.tcp.Stop()
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.tcp.ListenAddr()
}

// Registry returns the nickname registry.
func (s *Server) Registry() *registry.Registry[*Session] {
	return s.registry
}

// Codec returns the wire codec used on every connection.
func (s *Server) Codec() frame.Codec {
	return s.codec
}

// SessionCount returns the number of open connections, registered or not.
func (s *Server) SessionCount() int {
	return s.tcp.SessionCount()
}
