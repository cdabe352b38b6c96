// Package nrepltest provides an in-process nREPL peer for tests.
//
// The peer understands clone, eval, describe and close. Its evaluator only
// knows a handful of forms, enough to exercise sessions and asynchronous output
//
//   ```
//     42, *1                  literals and the previous result of the session
//     (+ a b ...), (- ...), (* ...)
//     (println a b ...)       writes "a b ...\n" to out
//     (later ms a b ...)      like println, but ms milliseconds from now
//     (sleep ms)              blocks the connection for ms milliseconds
//   ```
package nrepltest

import (
	"errors"
	"fmt"
	"net"
	"sync"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"

	"github.com/luma/nrepl/bencode"
	"github.com/luma/nrepl/transport"
)

type Server struct {
	listener net.Listener
	log      *zap.Logger

	mu       sync.Mutex
	conns    map[*peerConn]struct{}
	sessions map[string]*session
	received []*bencode.Dict

	// stop is closed when Close() is called
	stop       chan struct{}
	closeOnce  sync.Once
	loopWaiter sync.WaitGroup
}

type session struct {
	id   string
	last string
}

// NewServer starts a peer listening on a random local port.
func NewServer(log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: listener,
		log:      log,
		conns:    make(map[*peerConn]struct{}),
		sessions: make(map[string]*session),
		stop:     make(chan struct{}),
	}

	s.loopWaiter.Add(1)
	go func() {
		defer s.loopWaiter.Done()
		s.acceptLoop()
	}()

	return s, nil
}

// Address returns the nrepl:// address of the peer.
func (s *Server) Address() string {
	addr := s.listener.Addr().(*net.TCPAddr)
	return transport.Address{Host: addr.IP.String(), Port: addr.Port}.String()
}

// Received returns every message the peer has read so far.
func (s *Server) Received() []*bencode.Dict {
	s.mu.Lock()
	defer s.mu.Unlock()

	received := make([]*bencode.Dict, len(s.received))
	copy(received, s.received)
	return received
}

// Sessions returns the number of open sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// WriteRaw writes data verbatim to every connected client.
func (s *Server) WriteRaw(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.conns {
		if err := c.writeRaw(data); err != nil {
			return err
		}
	}

	return nil
}

// Broadcast sends msg to every connected client.
func (s *Server) Broadcast(msg *bencode.Dict) error {
	return s.WriteRaw(bencode.MustEncode(msg))
}

// DropConnections closes every client connection without stopping the peer.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.conns {
		c.conn.Close()
	}
}

// Close stops the peer and waits for its goroutines to exit.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })

	err := s.listener.Close()
	s.DropConnections()
	s.loopWaiter.Wait()

	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Warn("Accept failed", zap.Error(err))
			}
			return
		}

		c := &peerConn{
			server: s,
			conn:   transport.NewConn(conn, transport.Options{Log: s.log}),
		}

		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.loopWaiter.Add(1)
		go func() {
			defer s.loopWaiter.Done()
			c.readLoop()

			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
		}()
	}
}

func (s *Server) newSession() *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &session{id: uuid.NewV4().String(), last: "nil"}
	s.sessions[sess.id] = sess
	return sess
}

func (s *Server) session(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) closeSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

func (s *Server) record(msg *bencode.Dict) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received = append(s.received, msg)
}

// peerConn is one client connection. Replies may be written from the read
// loop and from delayed output goroutines, so writes are serialised.
type peerConn struct {
	server *Server
	conn   *transport.Conn

	writeMu sync.Mutex
}

func (c *peerConn) readLoop() {
	defer c.conn.Close()

	for {
		msg, err := c.conn.Read()
		if err != nil {
			return
		}

		c.server.record(msg)
		c.handle(msg)
	}
}

func (c *peerConn) send(msg *bencode.Dict) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.Write(msg); err != nil {
		c.server.log.Debug("Reply failed", zap.Error(err))
	}
}

func (c *peerConn) writeRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// Bypass the encoder so tests can send malformed bytes
	return c.conn.WriteRaw(data)
}

func (c *peerConn) handle(msg *bencode.Dict) {
	op, _ := msg.GetString("op")

	switch op {
	case "clone":
		sess := c.server.newSession()
		c.send(reply(msg).Set("new-session", sess.id).Set("status", []string{"done"}))

	case "describe":
		ops := bencode.NewDict()
		for _, name := range []string{"clone", "close", "describe", "eval"} {
			ops.Set(name, bencode.NewDict())
		}

		c.send(reply(msg).
			Set("ops", ops).
			Set("versions", bencode.NewDict().Set("nrepltest", bencode.NewDict().Set("version-string", "0.1.0"))).
			Set("status", []string{"done"}))

	case "close":
		id, _ := msg.GetString("session")
		if !c.server.closeSession(id) {
			c.send(reply(msg).Set("status", []string{"error", "unknown-session", "done"}))
			return
		}

		c.send(reply(msg).Set("status", []string{"done", "session-closed"}))

	case "eval":
		id, _ := msg.GetString("session")
		sess, ok := c.server.session(id)
		if !ok {
			c.send(reply(msg).Set("status", []string{"error", "unknown-session", "done"}))
			return
		}

		code, _ := msg.GetString("code")
		c.eval(msg, sess, code)

	default:
		c.send(reply(msg).Set("status", []string{"done", "error", "unknown-op"}))
	}
}

func (c *peerConn) eval(msg *bencode.Dict, sess *session, code string) {
	forms, err := read(code)
	if err != nil {
		c.evalError(msg, err)
		return
	}

	for _, form := range forms {
		value, err := c.evalForm(msg, sess, form)
		if err != nil {
			c.evalError(msg, err)
			return
		}

		c.server.mu.Lock()
		sess.last = value
		c.server.mu.Unlock()

		c.send(reply(msg).Set("ns", "user").Set("value", value))
	}

	c.send(reply(msg).Set("status", []string{"done"}))
}

func (c *peerConn) evalError(msg *bencode.Dict, err error) {
	c.send(reply(msg).Set("err", fmt.Sprintf("%v\n", err)))
	c.send(reply(msg).Set("ex", "class clojure.lang.ExceptionInfo").Set("status", []string{"eval-error"}))
	c.send(reply(msg).Set("status", []string{"done"}))
}

// reply starts a response to msg, echoing its id and session.
func reply(msg *bencode.Dict) *bencode.Dict {
	resp := bencode.NewDict()

	if id, ok := msg.Get("id"); ok {
		resp.Set("id", id)
	}
	if session, ok := msg.Get("session"); ok {
		resp.Set("session", session)
	}

	return resp
}
