package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saferoute/hazardwatch/internal/geo"
	"github.com/saferoute/hazardwatch/internal/hazard"
)

var (
	// ErrSessionClosed is returned by Send after Close.
	ErrSessionClosed = errors.New("session closed")

	// ErrQueueFull is returned by Send when the outbound queue has no room.
	// The broadcaster treats it like any other write failure.
	ErrQueueFull = errors.New("session outbound queue full")
)

// Transport names.
const (
	TransportSSE = "sse"
	TransportWS  = "ws"
)

// State is the lifecycle stage of a Session.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SessionOptions describes a new session.
type SessionOptions struct {
	// ID is generated by NewSessionID when empty.
	ID           string
	SubscriberID string
	Location     *geo.Point
	RadiusMeters int
	Filter       *Filter
	Transport    string
	QueueSize    int
	Now          time.Time
}

// Session is one client's live stream. The outbound queue has a single
// reader, the transport writer; Send calls are serialised by mu.
type Session struct {
	ID           string
	SubscriberID string
	Location     *geo.Point
	RadiusMeters int
	Filter       *Filter
	Transport    string
	CreatedAt    time.Time

	mu       sync.Mutex
	state    State
	outbound chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewSessionID returns "<subscriber>-<unix millis>-<8 hex chars>".
func NewSessionID(subscriberID string, now time.Time) string {
	return fmt.Sprintf("%s-%d-%s", subscriberID, now.UnixMilli(), uuid.NewString()[:8])
}

// NewSession creates a session in the Connecting state. Its context is
// derived from parent, so cancelling parent ends the session too.
func NewSession(parent context.Context, opts SessionOptions) *Session {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultConfig().QueueSize
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.ID == "" {
		opts.ID = NewSessionID(opts.SubscriberID, opts.Now)
	}
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:           opts.ID,
		SubscriberID: opts.SubscriberID,
		Location:     opts.Location,
		RadiusMeters: opts.RadiusMeters,
		Filter:       opts.Filter,
		Transport:    opts.Transport,
		CreatedAt:    opts.Now,
		state:        StateConnecting,
		outbound:     make(chan []byte, opts.QueueSize),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Open marks the session as registered. It has no effect once closed.
func (s *Session) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnecting {
		s.state = StateOpen
	}
}

// State reports the lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send enqueues msg without blocking.
func (s *Session) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	select {
	case s.outbound <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Outbound is read by the transport writer. It is closed by Close.
func (s *Session) Outbound() <-chan []byte {
	return s.outbound
}

// Done is closed when the session is closed or its parent context ends.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context returns the session context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close ends the session. Safe to call any number of times from any
// goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		close(s.outbound)
		s.mu.Unlock()
		s.cancel()
	})
}

// Distance returns the distance in meters from the session location to p,
// and false when the session has no location.
func (s *Session) Distance(p geo.Point) (float64, bool) {
	if s.Location == nil {
		return 0, false
	}
	return s.Location.DistanceTo(p), true
}

// Matches reports whether evt should be pushed to this session, with the
// distance used for the decision.
func (s *Session) Matches(evt hazard.Event) (float64, bool) {
	d, ok := s.Distance(evt.Location)
	if !ok || d > float64(s.RadiusMeters) {
		return d, false
	}
	return d, s.Filter.Match(evt)
}
