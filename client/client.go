// Package client provides an event-driven chat client. It claims a nickname on
// connect and notifies callers of received messages, rejection and connection
// state changes via registered handlers.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cyberinferno/hashchat/chat"
	"github.com/cyberinferno/hashchat/config"
	"github.com/cyberinferno/hashchat/dispatch"
	"github.com/cyberinferno/hashchat/frame"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrNotConnected   = errors.New("not connected")
	ErrClosed         = errors.New("client is closed")
)

// ConnectionState represents the current state of the connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected
	Connecting                          // Dial in progress
	Connected                           // Connected and hello sent
	Closed                              // Client closed or nickname rejected
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectionStateEvent is emitted when the connection state changes.
type ConnectionStateEvent struct {
	State     ConnectionState // The new connection state
	Address   string          // The server address
	Timestamp time.Time       // When the state change occurred
	Error     error           // Non-nil if the change was caused by an error
}

// TextEvent is emitted for every text message received, including roster
// replies.
type TextEvent struct {
	Text      string
	Timestamp time.Time
}

// ConnectionStateHandler is called when the connection state changes.
type ConnectionStateHandler func(event ConnectionStateEvent)

// TextHandler is called for each received text message.
type TextHandler func(event TextEvent)

// RejectedHandler is called when the server refused the nickname.
type RejectedHandler func(nick string)

// Config holds client settings.
type Config struct {
	// Address is the "host:port" of the chat server.
	Address string
	// Nick is the nickname claimed on connect.
	Nick string
	// Codec is the wire codec name; it must match the server's.
	Codec string
	// ConnectionTimeout bounds dialing.
	ConnectionTimeout time.Duration
	// WriteTimeout is the max duration for a single write; 0 means no timeout.
	WriteTimeout time.Duration
	// ReadBufferSize is the size of each socket read.
	ReadBufferSize int
}

// DefaultConfig returns a Config with default values for the given server and
// nickname.
//
// Parameters:
//   - address: The "host:port" to connect to
//   - nick: The nickname to claim
//
// Returns:
//   - A Config using the text codec, 10s timeouts and 4096-byte reads
func DefaultConfig(address, nick string) Config {
	return Config{
		Address:           address,
		Nick:              nick,
		Codec:             config.CodecText,
		ConnectionTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadBufferSize:    4096,
	}
}

// FromConfig converts the client section of the configuration file.
func FromConfig(c config.ClientConfig) Config {
	cfg := DefaultConfig(c.Addr, c.Nick)
	cfg.Codec = c.Codec
	cfg.ConnectionTimeout = c.DialTimeout
	return cfg
}

// Client is a chat client. Register handlers, then call Connect. Handlers run
// on the read goroutine in arrival order and must not block. It is safe for
// concurrent use.
type Client struct {
	config   Config
	codec    frame.Codec
	handlers *dispatch.Table[*Client]

	mu         sync.RWMutex
	conn       net.Conn
	state      ConnectionState
	closed     bool
	finished   bool
	err        error
	onState    ConnectionStateHandler
	onText     TextHandler
	onRejected RejectedHandler

	writeMu sync.Mutex
	wg      sync.WaitGroup
	done    chan struct{}
}

// New creates a client in Disconnected state.
//
// Parameters:
//   - cfg: Server address, nickname and codec
//
// Returns:
//   - The client, or an error for an invalid nickname or unknown codec
func New(cfg Config) (*Client, error) {
	if err := chat.ValidateNickname(cfg.Nick); err != nil {
		return nil, err
	}

	codec, err := frame.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 4096
	}

	c := &Client{
		config: cfg,
		codec:  codec,
		state:  Disconnected,
		done:   make(chan struct{}),
	}
	c.handlers = dispatch.NewTable[*Client]().
		Register(chat.TypeHello, (*Client).recvHello).
		Register(chat.TypeText, (*Client).recvText)

	return c, nil
}

// OnConnectionState registers the handler for connection state changes.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = handler
}

// OnText registers the handler for received text messages.
func (c *Client) OnText(handler TextHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onText = handler
}

// OnRejected registers the handler called when the nickname is taken.
func (c *Client) OnRejected(handler RejectedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRejected = handler
}

// Connect dials the server, sends hello and starts the read loop. A client
// connects once; create a new one to reconnect.
//
// Parameters:
//   - ctx: Bounds the dial
//
// Returns:
//   - An error if the client was used before or the dial or hello fails
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != Disconnected || c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("already connected or connecting")
	}
	c.mu.Unlock()

	c.setState(Connecting, nil)

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		c.setState(Disconnected, err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	if err := c.write(conn, chat.HelloFrame(c.config.Nick)); err != nil {
		_ = conn.Close()
		c.finish(err)
		return fmt.Errorf("send hello: %w", err)
	}
	c.setState(Connected, nil)

	c.wg.Add(1)
	go c.readLoop(conn)

	return nil
}

// Send interprets a console line. "/cmd" or "/cmd: args" runs a command
// ("text" or "active"); any other line is sent as text.
//
// Parameters:
//   - line: The user input
//
// Returns:
//   - ErrUnknownCommand for an unsupported command, or the send error
func (c *Client) Send(line string) error {
	cmd, args, ok := ParseCommand(line)
	if !ok {
		return c.SendText(line)
	}

	switch cmd {
	case chat.TypeText:
		return c.SendText(args)
	case chat.TypeActive:
		return c.RequestActive()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
}

// ParseCommand splits "/cmd: args" into its parts. ok is false for lines not
// starting with '/'. The colon is only needed when there are arguments.
func ParseCommand(line string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}

	if pos := strings.IndexByte(line, ':'); pos > 0 {
		return strings.TrimSpace(line[1:pos]), line[pos+1:], true
	}

	return strings.TrimSpace(line[1:]), "", true
}

// SendText sends msg prefixed with "<nick>: ".
func (c *Client) SendText(msg string) error {
	return c.send(chat.TextFrame(c.config.Nick + ": " + msg))
}

// RequestActive asks the server for the roster; the reply arrives as text.
func (c *Client) RequestActive() error {
	return c.send(chat.ActiveFrame())
}

// GetState returns the current connection state.
func (c *Client) GetState() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Done is closed when the connection ended for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended: chat.ErrNicknameTaken, the read
// error, or nil after Close.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Close shuts down the connection and waits for the read loop. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.finish(nil)
		return nil
	}

	_ = conn.Close()
	c.wg.Wait()
	c.finish(nil)

	return nil
}

func (c *Client) send(f *frame.Frame) error {
	c.mu.RLock()
	conn, state := c.conn, c.state
	c.mu.RUnlock()

	if state == Closed {
		return ErrClosed
	}
	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	return c.write(conn, f)
}

func (c *Client) write(conn net.Conn, f *frame.Frame) error {
	raw, err := c.codec.Encode(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
	}

	_, err = conn.Write(raw)
	return err
}

func (c *Client) readLoop(conn net.Conn) {
	defer c.wg.Done()

	asm := frame.NewAssembler(c.codec)
	buf := make([]byte, c.config.ReadBufferSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			frames, ferr := asm.Feed(buf[:n])
			for _, f := range frames {
				if herr := c.handlers.Dispatch(c, f); herr != nil {
					c.finish(herr)
					_ = conn.Close()
					return
				}
			}
			if ferr != nil {
				c.finish(ferr)
				_ = conn.Close()
				return
			}
		}

		if err != nil {
			if c.isClosed() {
				return
			}
			c.finish(err)
			_ = conn.Close()
			return
		}
	}
}

// recvHello means the nickname is taken; the connection ends.
func (c *Client) recvHello(_ *frame.Frame) error {
	c.mu.RLock()
	handler := c.onRejected
	c.mu.RUnlock()

	if handler != nil {
		handler(c.config.Nick)
	}

	return fmt.Errorf("%w: %q", chat.ErrNicknameTaken, c.config.Nick)
}

func (c *Client) recvText(f *frame.Frame) error {
	text, _ := f.Get(chat.SectionText)

	c.mu.RLock()
	handler := c.onText
	c.mu.RUnlock()

	if handler != nil {
		handler(TextEvent{Text: string(text), Timestamp: time.Now()})
	}

	return nil
}

// finish records the end of the connection once and moves to Closed.
func (c *Client) finish(err error) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.err = err
	c.mu.Unlock()

	c.setState(Closed, err)
	close(c.done)
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	handler := c.onState
	c.mu.Unlock()

	if handler != nil {
		handler(ConnectionStateEvent{
			State:     state,
			Address:   c.config.Address,
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
