package changefeed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saferoute/hazardwatch/internal/hazard"
	"github.com/saferoute/hazardwatch/internal/metrics"
)

// DefaultReconnectDelay is the fixed wait between reconnect attempts.
const DefaultReconnectDelay = 5 * time.Second

// Options configures a Listener.
type Options struct {
	// Driver labels logs and metrics (postgres, nats, mongo, mqtt).
	Driver string

	// ReconnectDelay is the fixed delay between connection attempts.
	ReconnectDelay time.Duration

	// BufferSize is the capacity of the Events channel.
	BufferSize int

	Logger *slog.Logger

	// OnStateChange is called synchronously on every state transition.
	OnStateChange func(State)

	// Sleep waits for d or until ctx is done. Tests replace it to drive the
	// reconnect loop without real timers.
	Sleep func(ctx context.Context, d time.Duration) error

	// Now supplies the receipt time for payloads without a timestamp.
	Now func() time.Time
}

// Listener owns the feed connection and publishes decoded events on a
// channel consumed by the broadcaster.
type Listener struct {
	dialer Dialer
	opts   Options
	logger *slog.Logger

	events chan hazard.Event
	state  atomic.Int32

	runOnce sync.Once
}

// NewListener creates a Listener. Run must be called to start it.
func NewListener(dialer Dialer, opts Options) *Listener {
	if opts.Driver == "" {
		opts.Driver = "unknown"
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Listener{
		dialer: dialer,
		opts:   opts,
		logger: logger.With("component", "changefeed", "driver", opts.Driver),
		events: make(chan hazard.Event, opts.BufferSize),
	}
}

// Events returns the channel of decoded events. It is closed when Run
// returns.
func (l *Listener) Events() <-chan hazard.Event {
	return l.events
}

// State returns the current connection state.
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Run connects, subscribes and receives until ctx is cancelled. Connection
// failures are retried forever with a fixed delay; payloads published while
// disconnected are never seen and therefore dropped. Run returns nil on
// cancellation. It may only be called once.
func (l *Listener) Run(ctx context.Context) error {
	started := false
	l.runOnce.Do(func() { started = true })
	if !started {
		return nil
	}
	defer close(l.events)
	defer l.setState(StateDisconnected)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		l.setState(StateConnecting)
		conn, err := l.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempt++
			l.setState(StateDisconnected)
			l.logger.Warn("change feed unavailable, retrying",
				"error", err,
				"attempt", attempt,
				"retry_in", l.opts.ReconnectDelay.String(),
			)
			if l.opts.Sleep(ctx, l.opts.ReconnectDelay) != nil {
				return nil
			}
			continue
		}

		attempt = 0
		l.setState(StateConnected)
		l.logger.Info("listening for hazard changes")

		err = l.consume(ctx, conn)

		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if cerr := conn.Close(closeCtx); cerr != nil {
			l.logger.Debug("closing feed connection", "error", cerr)
		}
		cancel()

		l.setState(StateDisconnected)
		if ctx.Err() != nil {
			l.logger.Info("change feed listener stopped")
			return nil
		}

		metrics.FeedReconnects.WithLabelValues(l.opts.Driver).Inc()
		l.logger.Warn("change feed connection lost, reconnecting",
			"error", err,
			"retry_in", l.opts.ReconnectDelay.String(),
		)
		if l.opts.Sleep(ctx, l.opts.ReconnectDelay) != nil {
			return nil
		}
	}
}

// OnMessage decodes one raw payload.
func (l *Listener) OnMessage(raw []byte) (hazard.Event, error) {
	return hazard.Decode(raw, l.opts.Now())
}

func (l *Listener) connect(ctx context.Context) (Conn, error) {
	conn, err := l.dialer.Dial(ctx)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}
	if err := conn.Listen(ctx); err != nil {
		_ = conn.Close(context.Background())
		return nil, &ConnectionError{Op: "listen", Err: err}
	}
	return conn, nil
}

func (l *Listener) consume(ctx context.Context, conn Conn) error {
	for {
		raw, err := conn.Receive(ctx)
		if err != nil {
			return &ConnectionError{Op: "receive", Err: err}
		}
		metrics.FeedMessagesReceived.WithLabelValues(l.opts.Driver).Inc()

		evt, err := l.OnMessage(raw)
		if err != nil {
			metrics.FeedDecodeErrors.WithLabelValues(l.opts.Driver).Inc()
			l.logger.Warn("dropping malformed change message", "error", err, "payload_bytes", len(raw))
			continue
		}

		l.logger.Debug("hazard change received",
			"event_type", evt.RawType,
			"hazard_id", evt.HazardID,
		)

		select {
		case l.events <- evt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Listener) setState(s State) {
	if State(l.state.Swap(int32(s))) == s {
		return
	}
	metrics.FeedState.WithLabelValues(l.opts.Driver).Set(float64(s))
	if l.opts.OnStateChange != nil {
		l.opts.OnStateChange(s)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
