package transport

import (
	"errors"
	"fmt"
)

var (
	ErrClosed         = errors.New("connection closed")
	ErrInvalidAddress = errors.New("invalid nREPL address")
)

// ConnectionError describes a transport level failure: the peer could not be
// reached, went away, or the connection was closed locally.
type ConnectionError struct {
	// Op is the operation that failed: "dial", "read", "write" or "close"
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("nrepl %s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("nrepl %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
