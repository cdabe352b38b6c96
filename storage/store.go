package storage

import (
	"context"
	"errors"

	"github.com/luma/nrepl/bencode"
)

var (
	ErrNoSession      = errors.New("message carries no session")
	ErrInvalidSession = errors.New("session id cannot be used as a transcript key")
	ErrInvalidBackup  = errors.New("backup is not a JSON object")
)

// Store keeps a transcript of the messages received on each session.
type Store interface {
	Record(ctx context.Context, msg *bencode.Dict) error
	Get(ctx context.Context, session string) ([]byte, error)
	Sessions() []string

	Restore(values []byte) error
	Backup() ([]byte, error)

	Close() error
}
