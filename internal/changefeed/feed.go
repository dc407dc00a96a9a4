// Package changefeed maintains the single long-lived subscription to the
// store's hazard change channel and turns raw payloads into hazard.Events.
package changefeed

import (
	"context"
	"errors"
	"fmt"
)

// ErrConnection is matched by every *ConnectionError.
var ErrConnection = errors.New("changefeed: connection error")

// ConnectionError wraps a dial, listen or receive failure on the feed
// connection. The listener recovers from it by reconnecting.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("changefeed: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConnection) true for any ConnectionError.
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// Conn is one dedicated connection to a change channel. It is used by a
// single goroutine at a time.
type Conn interface {
	// Listen subscribes to the change channel. Calling it again on an
	// already-subscribed connection is a no-op.
	Listen(ctx context.Context) error

	// Receive blocks until the next raw payload arrives, the connection
	// fails or ctx is done.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the connection.
	Close(ctx context.Context) error
}

// Dialer opens dedicated feed connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// State is the connection state of a Listener.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
