// Package stream defines the FeedTransport boundary (C3): the narrow
// interface exchange adapters use to receive a live, framed message stream,
// and a gorilla/websocket-backed implementation of it.
package stream

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Next once the transport has been closed, either
// by the caller or by the remote end.
var ErrClosed = errors.New("stream: transport closed")

// KeepaliveInterval is how long a connection may go without an outbound
// frame before the transport must send a ping of its own.
const KeepaliveInterval = 30 * time.Second

// Message is one decoded frame taken off the wire. Raw is left undecoded —
// adapters own their own wire dialect and decode it themselves.
type Message struct {
	Raw        []byte
	ReceivedAt time.Time
}

// FeedTransport is the boundary the core depends on: open a stream, pull
// decoded messages one at a time, support reconnection. Implementations
// live outside the reconstruction core; adapters only ever see this
// interface, never a concrete websocket.Conn.
type FeedTransport interface {
	// Open establishes the connection and sends the given subscribe
	// frames (already JSON-marshalable values).
	Open(ctx context.Context, url string, subscribePayloads []any) error
	// Next blocks for the next decoded message. A non-nil error is
	// terminal: the connection is gone and the caller must Close and
	// Open again to reconnect.
	Next(ctx context.Context) (Message, error)
	// Close is idempotent.
	Close() error
}
