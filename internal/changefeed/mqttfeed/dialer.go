// Package mqttfeed implements the change feed on an MQTT topic (QoS 0).
package mqttfeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/saferoute/hazardwatch/internal/changefeed"
)

// DefaultTopic carries hazard change envelopes.
const DefaultTopic = "hazards/changes"

// Dialer opens MQTT sessions subscribed to Topic. Auto-reconnect is off so
// that a lost broker surfaces as a Receive error to the Listener.
type Dialer struct {
	Broker         string
	Topic          string
	ClientID       string
	ConnectTimeout time.Duration
	BufferSize     int
}

// NewDialer returns a Dialer for broker (e.g. tcp://localhost:1883).
func NewDialer(broker, topic string, connectTimeout time.Duration) *Dialer {
	if topic == "" {
		topic = DefaultTopic
	}
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &Dialer{Broker: broker, Topic: topic, ConnectTimeout: connectTimeout, BufferSize: 256}
}

// Dial implements changefeed.Dialer.
func (d *Dialer) Dial(ctx context.Context) (changefeed.Conn, error) {
	c := &conn{
		topic: d.Topic,
		msgs:  make(chan []byte, max(d.BufferSize, 1)),
		lost:  make(chan error, 1),
		done:  make(chan struct{}),
	}

	clientID := d.ClientID
	if clientID == "" {
		clientID = "hazardwatch-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(d.Broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(d.ConnectTimeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		select {
		case c.lost <- err:
		default:
		}
	})

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect(), d.ConnectTimeout); err != nil {
		return nil, err
	}
	c.client = client
	return c, nil
}

type conn struct {
	client mqtt.Client
	topic  string
	msgs   chan []byte
	lost   chan error

	mu         sync.Mutex
	subscribed bool

	doneOnce sync.Once
	done     chan struct{}
}

func (c *conn) Listen(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribed {
		return nil
	}
	token := c.client.Subscribe(c.topic, 0, func(_ mqtt.Client, m mqtt.Message) {
		select {
		case c.msgs <- m.Payload():
		case <-c.done:
		}
	})
	if err := waitToken(ctx, token, 0); err != nil {
		return err
	}
	c.subscribed = true
	return nil
}

func (c *conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case raw := <-c.msgs:
		return raw, nil
	case err := <-c.lost:
		return nil, fmt.Errorf("mqtt connection lost: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *conn) Close(ctx context.Context) error {
	c.doneOnce.Do(func() { close(c.done) })
	c.client.Disconnect(250)
	return nil
}

// waitToken waits for an MQTT token, honouring ctx. A zero timeout waits
// until ctx is done.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-expired:
		return errors.New("mqtt: operation timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}
