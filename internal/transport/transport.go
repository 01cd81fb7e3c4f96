// Aggregator connections
package transport

import (
	"context"
	"errors"

	"owl-traffic-gen/internal/sample"
)

// ErrClosed is returned by Send once a connection is no longer usable.
var ErrClosed = errors.New("transport: connection closed")

// Conn is an established link to the aggregator.
type Conn interface {
	// Alive reports whether the link is still usable.
	Alive() bool
	// Send transmits one sample.
	Send(sample.Sample) error
	// Close releases the link. It is safe to call more than once.
	Close() error
}

// Dialer establishes new connections. Each call returns a fresh Conn; a
// failed Conn is discarded rather than repaired.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}
