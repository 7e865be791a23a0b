package tcpserver

import "context"

// TCPServerSession is the interface that must be implemented by each connection
// session. The server creates a session per connection and runs Handle in a
// goroutine; the session owns the connection from then on.
type TCPServerSession interface {
	// ID returns the session's unique identifier assigned by the server.
	//
	// Returns:
	//   - The session ID
	ID() uint64

	// Handle runs the session until the peer disconnects, the session decides
	// to exit or ctx is cancelled. The connection must be closed before Handle
	// returns.
	//
	// Parameters:
	//   - ctx: Cancelled when the server stops
	Handle(ctx context.Context)

	// Close asks the session to end. It must be safe to call multiple times
	// and from any goroutine.
	//
	// Returns:
	//   - An error if closing failed
	Close() error
}
