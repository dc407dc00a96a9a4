// Package postgres implements the change feed on PostgreSQL LISTEN/NOTIFY.
//
// Each Dial opens its own pgx connection outside any pool: the connection
// blocks in WaitForNotification indefinitely and must not be shared with
// request-serving queries.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saferoute/hazardwatch/internal/changefeed"
)

// DefaultChannel is the notification channel used by notify_hazard_changes.
const DefaultChannel = "hazards_channel"

// Dialer opens dedicated LISTEN connections.
type Dialer struct {
	DSN            string
	Channel        string
	ConnectTimeout time.Duration
}

// NewDialer returns a Dialer for dsn and channel.
func NewDialer(dsn, channel string, connectTimeout time.Duration) *Dialer {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Dialer{DSN: dsn, Channel: channel, ConnectTimeout: connectTimeout}
}

// Dial implements changefeed.Dialer.
func (d *Dialer) Dial(ctx context.Context) (changefeed.Conn, error) {
	cfg, err := pgx.ParseConfig(d.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if d.ConnectTimeout > 0 {
		cfg.ConnectTimeout = d.ConnectTimeout
	}

	pg, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &conn{pg: pg, channel: d.Channel}, nil
}

type conn struct {
	pg      *pgx.Conn
	channel string

	mu        sync.Mutex
	listening bool
}

func (c *conn) Listen(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listening {
		return nil
	}
	if _, err := c.pg.Exec(ctx, "LISTEN "+pgx.Identifier{c.channel}.Sanitize()); err != nil {
		return err
	}
	c.listening = true
	return nil
}

func (c *conn) Receive(ctx context.Context) ([]byte, error) {
	n, err := c.pg.WaitForNotification(ctx)
	if err != nil {
		return nil, err
	}
	if n.Channel != c.channel {
		return nil, errors.New("notification on unexpected channel " + n.Channel)
	}
	return []byte(n.Payload), nil
}

func (c *conn) Close(ctx context.Context) error {
	return c.pg.Close(ctx)
}
