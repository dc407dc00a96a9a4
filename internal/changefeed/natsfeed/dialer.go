// Package natsfeed implements the change feed on a core NATS subject.
//
// Core subscriptions are at-most-once: nothing published while the
// listener is disconnected is replayed. The client's own reconnect logic is
// disabled so that the changefeed.Listener owns reconnection.
package natsfeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/saferoute/hazardwatch/internal/changefeed"
)

// DefaultSubject carries hazard change envelopes.
const DefaultSubject = "hazards.changes"

// Dialer opens NATS connections subscribed to Subject.
type Dialer struct {
	URL            string
	Subject        string
	Name           string
	ConnectTimeout time.Duration
	BufferSize     int
}

// NewDialer returns a Dialer for the given server URL and subject.
func NewDialer(url, subject string, connectTimeout time.Duration) *Dialer {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Dialer{URL: url, Subject: subject, Name: "hazardwatch-feed", ConnectTimeout: connectTimeout, BufferSize: 256}
}

// Dial implements changefeed.Dialer.
func (d *Dialer) Dial(ctx context.Context) (changefeed.Conn, error) {
	c := &conn{
		subject: d.Subject,
		msgs:    make(chan *nats.Msg, max(d.BufferSize, 1)),
		closed:  make(chan struct{}),
	}

	opts := []nats.Option{
		nats.Name(d.Name),
		nats.NoReconnect(),
		nats.ClosedHandler(func(*nats.Conn) { c.markClosed() }),
	}
	if d.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(d.ConnectTimeout))
	}

	nc, err := nats.Connect(d.URL, opts...)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		nc.Close()
		return nil, err
	}
	c.nc = nc
	return c, nil
}

type conn struct {
	nc      *nats.Conn
	subject string
	msgs    chan *nats.Msg

	mu  sync.Mutex
	sub *nats.Subscription

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *conn) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *conn) Listen(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return nil
	}
	sub, err := c.nc.ChanSubscribe(c.subject, c.msgs)
	if err != nil {
		return err
	}
	if err := c.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return err
	}
	c.sub = sub
	return nil
}

func (c *conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.msgs:
		return msg.Data, nil
	case <-c.closed:
		if err := c.nc.LastError(); err != nil {
			return nil, fmt.Errorf("nats connection closed: %w", err)
		}
		return nil, fmt.Errorf("nats connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *conn) Close(ctx context.Context) error {
	c.nc.Close()
	c.markClosed()
	return nil
}
