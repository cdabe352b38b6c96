package transport

import (
	"time"

	"go.uber.org/zap"
)

type Options struct {
	// DialTimeout bounds how long Connect waits for the peer to accept the
	// connection. Zero means only the context passed to Connect applies.
	DialTimeout time.Duration

	// Trace will log every message read and written. This is only useful in local debugging
	Trace bool

	Log *zap.Logger
}
