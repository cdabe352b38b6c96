package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/nrepl/bencode"
)

// InmemoryStore holds transcripts as a single JSON document mapping session ids
// to the list of messages received on them, e.g.
//
//   {"5f0c...": [{"id":"1","session":"5f0c...","value":"3"}, ...]}
type InmemoryStore struct {
	mu     sync.Mutex
	values []byte

	// stop willl be closed when Close() is called
	stop      chan struct{}
	closeOnce sync.Once
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values: []byte("{}"),
		stop:   make(chan struct{}),
	}
}

func (i *InmemoryStore) Close() error {
	i.closeOnce.Do(func() { close(i.stop) })
	return nil
}

// Record appends msg to the transcript of the session it belongs to. Clone
// responses are filed under the session they created.
func (i *InmemoryStore) Record(ctx context.Context, msg *bencode.Dict) error {
	if !i.isRunning() {
		return nil
	}

	session, ok := msg.GetString("session")
	if !ok {
		if session, ok = msg.GetString("new-session"); !ok {
			return ErrNoSession
		}
	}

	jv, err := bencode.ToJSONValue(msg)
	if err != nil {
		return err
	}

	entry, err := json.Marshal(jv)
	if err != nil {
		return err
	}

	path, err := escapePath(session)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if gjson.GetBytes(i.values, path).Exists() {
		i.values, err = sjson.SetRawBytes(i.values, path+".-1", entry)
	} else {
		i.values, err = sjson.SetRawBytes(i.values, path, append(append([]byte{'['}, entry...), ']'))
	}

	return err
}

// Get returns the transcript of session as a JSON array.
func (i *InmemoryStore) Get(ctx context.Context, session string) ([]byte, error) {
	path, err := escapePath(session)
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	result := gjson.GetBytes(i.values, path)
	if !result.Exists() {
		return []byte("[]"), nil
	}

	return []byte(result.Raw), nil
}

// Sessions returns the sessions with a transcript, in the order they were
// first seen.
func (i *InmemoryStore) Sessions() []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	var sessions []string
	gjson.ParseBytes(i.values).ForEach(func(key, _ gjson.Result) bool {
		sessions = append(sessions, key.String())
		return true
	})

	return sessions
}

func (i *InmemoryStore) Restore(values []byte) error {
	if !gjson.ValidBytes(values) || !gjson.ParseBytes(values).IsObject() {
		return ErrInvalidBackup
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.values = append([]byte(nil), values...)
	return nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	return append([]byte(nil), i.values...), nil
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

// escapePath turns a session id into a gjson/sjson path naming a single key.
func escapePath(session string) (string, error) {
	for _, r := range session {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidSession, session)
		}
	}

	if session == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSession)
	}

	return strings.ReplaceAll(session, ".", `\.`), nil
}

var _ Store = (*InmemoryStore)(nil)
