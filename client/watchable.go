package client

import (
	"sync"

	"go.uber.org/zap"

	"github.com/luma/nrepl/bencode"
)

// Conn is the message stream a WatchableConn reads from and writes to.
// *transport.Conn implements it.
type Conn interface {
	Read() (*bencode.Dict, error)
	Write(msg interface{}) error
	Close() error
}

// Callback is invoked for every message that matches the pattern of the watch
// it was registered with. name is the name of that watch.
type Callback func(msg *bencode.Dict, wc *WatchableConn, name string)

type watch struct {
	name     string
	pattern  Pattern
	callback Callback
}

// WatchableConn runs a background loop that reads every message arriving on a
// Conn and hands it to the callbacks of all matching watches.
//
// Callbacks run one at a time on the loop's goroutine, in the order their
// watches were registered. A callback may call Watch, Unwatch, Send and Close;
// changes to the set of watches take effect from the next message on.
//
// The loop stops for good when Close is called or the connection fails. There
// is no reconnection. Every watch is dropped when the loop stops and later
// calls to Watch are ignored.
type WatchableConn struct {
	conn Conn

	writeMu sync.Mutex

	// watches is copy on write. The loop iterates over whatever slice was
	// current when a message arrived while callers swap in new ones.
	mu      sync.Mutex
	watches []*watch
	stopped bool
	err     error

	closeOnce sync.Once
	done      chan struct{}

	log *zap.Logger
}

// NewWatchableConn wraps conn and immediately starts reading from it. The
// WatchableConn owns conn from then on.
func NewWatchableConn(conn Conn, log *zap.Logger) *WatchableConn {
	if log == nil {
		log = zap.NewNop()
	}

	wc := &WatchableConn{
		conn: conn,
		done: make(chan struct{}),
		log:  log,
	}

	go wc.readLoop()

	return wc
}

// Watch registers callback under name. Registering a name that is already in
// use replaces the previous watch, which keeps its place in the order. Once
// the read loop has stopped Watch does nothing and returns false.
func (wc *WatchableConn) Watch(name string, pattern Pattern, callback Callback) bool {
	w := &watch{name: name, pattern: pattern, callback: callback}

	wc.mu.Lock()
	defer wc.mu.Unlock()

	if wc.stopped {
		wc.log.Debug("Ignoring watch on a stopped connection", zap.String("watch", name))
		return false
	}

	watches := make([]*watch, len(wc.watches), len(wc.watches)+1)
	copy(watches, wc.watches)

	for i, existing := range watches {
		if existing.name == name {
			watches[i] = w
			wc.watches = watches
			return true
		}
	}

	wc.watches = append(watches, w)
	return true
}

// Unwatch removes the watch registered under name, if any.
func (wc *WatchableConn) Unwatch(name string) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	watches := make([]*watch, 0, len(wc.watches))
	for _, w := range wc.watches {
		if w.name != name {
			watches = append(watches, w)
		}
	}

	wc.watches = watches
}

// Watching returns the names of the registered watches in dispatch order.
func (wc *WatchableConn) Watching() []string {
	watches := wc.snapshot()

	names := make([]string, len(watches))
	for i, w := range watches {
		names[i] = w.name
	}

	return names
}

// Send writes msg to the connection. Concurrent calls are serialised so their
// bytes never interleave.
func (wc *WatchableConn) Send(msg interface{}) error {
	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()

	return wc.conn.Write(msg)
}

// Close closes the connection, which stops the read loop. It is safe to call
// more than once and from inside a callback. Use Done or Wait to know when the
// loop has exited.
func (wc *WatchableConn) Close() error {
	var err error

	wc.closeOnce.Do(func() {
		err = wc.conn.Close()
	})

	return err
}

// Done returns a channel that is closed once the read loop has exited.
func (wc *WatchableConn) Done() <-chan struct{} {
	return wc.done
}

// Closed returns true once the read loop has exited.
func (wc *WatchableConn) Closed() bool {
	select {
	case <-wc.done:
		return true

	default:
		return false
	}
}

// Err returns the error that stopped the read loop, or nil while it is still
// running. After Close it is a connection error wrapping transport.ErrClosed.
func (wc *WatchableConn) Err() error {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	return wc.err
}

// Wait blocks until the read loop has exited and returns Err. It must not be
// called from a callback.
func (wc *WatchableConn) Wait() error {
	<-wc.done
	return wc.Err()
}

func (wc *WatchableConn) snapshot() []*watch {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	return wc.watches
}

func (wc *WatchableConn) readLoop() {
	log := wc.log.Named("readLoop")
	log.Debug("Read loop starting")

	defer close(wc.done)

	for {
		msg, err := wc.conn.Read()
		if err != nil {
			wc.mu.Lock()
			wc.err = err
			wc.stopped = true
			wc.watches = nil
			wc.mu.Unlock()

			log.Info("Read loop exiting", zap.Error(err))

			// Nothing more can be read, make sure Send fails from now on too
			if cerr := wc.Close(); cerr != nil {
				log.Warn("Failed to close connection cleanly", zap.Error(cerr))
			}

			return
		}

		wc.dispatch(msg, log)
	}
}

func (wc *WatchableConn) dispatch(msg *bencode.Dict, log *zap.Logger) {
	for _, w := range wc.snapshot() {
		wc.invoke(w, msg, log)
	}
}

func (wc *WatchableConn) invoke(w *watch, msg *bencode.Dict, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Watch panicked",
				zap.String("watch", w.name),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	if w.pattern.Matches(msg) {
		w.callback(msg, wc, w.name)
	}
}
