package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/nrepl/bencode"
	"github.com/luma/nrepl/transport"
)

var (
	ErrUnknownOp      = errors.New("peer does not support the op")
	ErrUnknownSession = errors.New("peer does not know the session")
	ErrNoSession      = errors.New("clone response carried no new-session")
)

// Client issues requests to an nREPL peer and collects their responses.
//
// Every request is tagged with an "id" and its responses are routed back by a
// watch on that id, so requests from many goroutines and unsolicited messages
// can share one connection.
type Client struct {
	wc *WatchableConn

	idMu      sync.Mutex
	requestID uint32

	sessionsMu sync.Mutex
	sessions   map[string]struct{}

	log *zap.Logger
}

// Connect dials address and starts watching the connection.
func Connect(ctx context.Context, address string, options transport.Options) (*Client, error) {
	conn, err := transport.Connect(ctx, address, options)
	if err != nil {
		return nil, err
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return New(NewWatchableConn(conn, log.Named("watchable")), log), nil
}

func New(wc *WatchableConn, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		wc:       wc,
		sessions: make(map[string]struct{}),
		log:      log,
	}
}

// Watchable returns the connection the client sends on, for registering
// watches of your own.
func (c *Client) Watchable() *WatchableConn {
	return c.wc
}

// Request sends msg with a fresh "id" and waits for every response up to and
// including the one whose status contains "done".
//
// Responses are delivered by the read loop, so a watch callback must not call
// Request, or Clone, Eval, Describe and CloseSession which are built on it,
// directly: the loop would be waiting on itself and the call only returns when
// ctx is done. Start a goroutine from the callback instead.
func (c *Client) Request(ctx context.Context, msg *bencode.Dict) ([]*bencode.Dict, error) {
	id := c.nextRequestID()
	name := "request:" + id

	req := bencode.NewDict()
	msg.Range(func(key string, value interface{}) bool {
		req.Set(key, value)
		return true
	})
	req.Set("id", id)

	var (
		mu        sync.Mutex
		responses []*bencode.Dict
		finished  = make(chan struct{})
		finish    sync.Once
	)

	watching := c.wc.Watch(name, Pattern{"id": Exact(id)}, func(resp *bencode.Dict, wc *WatchableConn, name string) {
		mu.Lock()
		responses = append(responses, resp)
		mu.Unlock()

		if hasStatus(resp, "done") {
			wc.Unwatch(name)
			finish.Do(func() { close(finished) })
		}
	})

	if !watching {
		return nil, c.wc.Err()
	}

	if err := c.wc.Send(req); err != nil {
		c.wc.Unwatch(name)
		return nil, err
	}

	select {
	case <-finished:

	case <-ctx.Done():
		c.wc.Unwatch(name)
		return nil, ctx.Err()

	case <-c.wc.Done():
		c.wc.Unwatch(name)

		// The final response may have been dispatched just before the loop exited
		select {
		case <-finished:
		default:
			return nil, c.wc.Err()
		}
	}

	mu.Lock()
	defer mu.Unlock()

	last := responses[len(responses)-1]
	switch {
	case hasStatus(last, "unknown-op"):
		op, _ := msg.GetString("op")
		return responses, fmt.Errorf("%w: %s", ErrUnknownOp, op)

	case hasStatus(last, "unknown-session"):
		session, _ := msg.GetString("session")
		return responses, fmt.Errorf("%w: %s", ErrUnknownSession, session)
	}

	return responses, nil
}

// Clone creates a new session. If session is not empty the new session is a
// copy of it.
func (c *Client) Clone(ctx context.Context, session string) (string, error) {
	msg := bencode.NewDict().Set("op", "clone")
	if session != "" {
		msg.Set("session", session)
	}

	responses, err := c.Request(ctx, msg)
	if err != nil {
		return "", err
	}

	for _, resp := range responses {
		if id, ok := resp.GetString("new-session"); ok {
			c.sessionsMu.Lock()
			c.sessions[id] = struct{}{}
			c.sessionsMu.Unlock()

			return id, nil
		}
	}

	return "", ErrNoSession
}

// Eval evaluates code in session. Evaluation errors are reported through the
// Result, not as an error.
func (c *Client) Eval(ctx context.Context, session, code string) (*Result, error) {
	msg := bencode.NewDict().
		Set("op", "eval").
		Set("code", code)

	if session != "" {
		msg.Set("session", session)
	}

	responses, err := c.Request(ctx, msg)
	if err != nil {
		return nil, err
	}

	return NewResult(responses), nil
}

// Describe asks the peer which ops and versions it supports.
func (c *Client) Describe(ctx context.Context) (*bencode.Dict, error) {
	responses, err := c.Request(ctx, bencode.NewDict().Set("op", "describe"))
	if err != nil {
		return nil, err
	}

	for _, resp := range responses {
		if resp.Has("ops") {
			return resp, nil
		}
	}

	return responses[len(responses)-1], nil
}

// CloseSession closes session on the peer.
func (c *Client) CloseSession(ctx context.Context, session string) error {
	c.sessionsMu.Lock()
	delete(c.sessions, session)
	c.sessionsMu.Unlock()

	_, err := c.Request(ctx, bencode.NewDict().Set("op", "close").Set("session", session))
	return err
}

// Sessions returns the sessions cloned through this client and not yet closed.
func (c *Client) Sessions() []string {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()

	sessions := make([]string, 0, len(c.sessions))
	for s := range c.sessions {
		sessions = append(sessions, s)
	}

	return sessions
}

// Shutdown closes every session the client cloned and then the connection.
func (c *Client) Shutdown(ctx context.Context) (err error) {
	for _, session := range c.Sessions() {
		if cerr := c.CloseSession(ctx, session); cerr != nil {
			c.log.Warn("Failed to close session", zap.String("session", session), zap.Error(cerr))
			err = multierr.Append(err, cerr)
		}
	}

	return multierr.Append(err, c.Close())
}

// Close closes the connection without closing sessions.
func (c *Client) Close() error {
	return c.wc.Close()
}

func (c *Client) nextRequestID() string {
	var requestID uint32

	c.idMu.Lock()
	if c.requestID < math.MaxUint32-1 {
		c.requestID += 1
	} else {
		// Wrap around instead of overflowing
		c.requestID = 0
	}

	requestID = c.requestID
	c.idMu.Unlock()

	return strconv.FormatUint(uint64(requestID), 10)
}

func hasStatus(msg *bencode.Dict, status string) bool {
	statuses, _ := msg.GetStrings("status")
	for _, s := range statuses {
		if s == status {
			return true
		}
	}

	return false
}
