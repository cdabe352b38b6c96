package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/nrepl/bencode"
)

// Conn is a connection to an nREPL peer. Messages are bencoded dictionaries
// written back to back on the stream.
//
// Read must only be called from one goroutine at a time. Write performs a
// single write on the socket per message but does not serialise concurrent
// callers, WatchableConn.Send does that. Close may be called at any time, from
// any goroutine, any number of times.
type Conn struct {
	addr string
	conn net.Conn
	dec  *bencode.Decoder

	closeOnce sync.Once
	closed    chan struct{}

	log   *zap.Logger
	trace bool
}

// Connect dials the nREPL peer at address, e.g. nrepl://localhost:7888
func Connect(ctx context.Context, address string, options Options) (*Conn, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Addr: address, Err: err}
	}

	dialer := net.Dialer{Timeout: options.DialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr.HostPort())
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Addr: addr.String(), Err: err}
	}

	c := NewConn(conn, options)
	c.addr = addr.String()

	c.log.Debug("Connected", zap.String("addr", c.addr))

	return c, nil
}

// NewConn wraps an already established stream.
func NewConn(conn net.Conn, options Options) *Conn {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	addr := ""
	if remote := conn.RemoteAddr(); remote != nil {
		addr = remote.String()
	}

	return &Conn{
		addr:   addr,
		conn:   conn,
		dec:    bencode.NewDecoder(conn),
		closed: make(chan struct{}),
		log:    log.With(zap.String("addr", addr)),
		trace:  options.Trace,
	}
}

// Addr returns the address of the peer.
func (c *Conn) Addr() string {
	return c.addr
}

// Write encodes msg and writes it to the peer. An *bencode.EncodeError is
// returned as is, without anything being written.
func (c *Conn) Write(msg interface{}) error {
	if !c.isRunning() {
		return c.connError("write", ErrClosed)
	}

	b, err := bencode.Encode(msg)
	if err != nil {
		return err
	}

	if c.trace {
		c.log.Debug("Write", zap.ByteString("data", b))
	}

	return c.WriteRaw(b)
}

// WriteRaw writes data, which must already be bencoded, to the peer.
func (c *Conn) WriteRaw(data []byte) error {
	if !c.isRunning() {
		return c.connError("write", ErrClosed)
	}

	if _, err := c.conn.Write(data); err != nil {
		return c.connError("write", err)
	}

	return nil
}

// Read blocks until the next complete message arrives.
//
// It returns a *bencode.ParseError if the peer sent malformed bencode or a
// value that is not a dictionary, and a *ConnectionError if the stream ended,
// failed, or was closed before a complete message arrived.
func (c *Conn) Read() (*bencode.Dict, error) {
	if !c.isRunning() {
		return nil, c.connError("read", ErrClosed)
	}

	v, err := c.dec.Decode()
	if err != nil {
		var parseErr *bencode.ParseError

		switch {
		case errors.Is(err, bencode.ErrUnexpectedEOF):
			return nil, c.connError("read", io.ErrUnexpectedEOF)

		case errors.As(err, &parseErr):
			return nil, err

		default:
			return nil, c.connError("read", err)
		}
	}

	msg, ok := v.(*bencode.Dict)
	if !ok {
		return nil, &bencode.ParseError{Offset: c.dec.Offset(), Err: bencode.ErrNotDict}
	}

	if c.trace {
		c.log.Debug("Read", zap.Strings("keys", msg.Keys()))
	}

	return msg, nil
}

// Close closes the underlying stream. A Read blocked in another goroutine
// returns a *ConnectionError wrapping ErrClosed.
func (c *Conn) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.closed)

		if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = &ConnectionError{Op: "close", Addr: c.addr, Err: cerr}
		}
	})

	return err
}

// Closed returns true once Close has been called.
func (c *Conn) Closed() bool {
	return !c.isRunning()
}

func (c *Conn) connError(op string, err error) error {
	if !c.isRunning() {
		// Whatever the socket reported, the cause is our own Close
		err = ErrClosed
	}

	return &ConnectionError{Op: op, Addr: c.addr, Err: err}
}

// isRunning returns true if Close has not been called
func (c *Conn) isRunning() bool {
	select {
	case <-c.closed:
		return false

	default:
		return true
	}
}
