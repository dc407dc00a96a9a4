package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/saferoute/hazardwatch/internal/hazard"
	"github.com/saferoute/hazardwatch/internal/metrics"
)

// Broadcaster fans decoded events out to the sessions in a Registry.
// Dispatch runs on a single goroutine, so each session sees events in
// arrival order.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time

	dispatchMu sync.Mutex
	running    sync.WaitGroup
}

// NewBroadcaster creates a Broadcaster over registry.
func NewBroadcaster(registry *Registry, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		logger:   logger.With("component", "broadcaster"),
		now:      time.Now,
	}
}

// Start runs Run in a new goroutine tracked by Wait.
func (b *Broadcaster) Start(ctx context.Context, events <-chan hazard.Event) {
	b.running.Add(1)
	go func() {
		defer b.running.Done()
		b.Run(ctx, events)
	}()
}

// Run dispatches events until ctx is done or events is closed. No new
// dispatch begins after ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context, events <-chan hazard.Event) {
	b.logger.Info("broadcaster started")
	defer b.logger.Info("broadcaster stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			b.Dispatch(evt)
		}
	}
}

// Wait blocks until a goroutine started by Start has returned and no
// Dispatch is in flight.
func (b *Broadcaster) Wait() {
	b.running.Wait()
	b.dispatchMu.Lock()
	b.dispatchMu.Unlock()
}

// Dispatch delivers evt to every session within radius whose filter
// matches, and returns the number of deliveries. Sessions that cannot
// accept the notification are removed and closed.
func (b *Broadcaster) Dispatch(evt hazard.Event) int {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	start := time.Now()
	defer func() { metrics.DispatchLatency.Observe(time.Since(start).Seconds()) }()
	metrics.EventsDispatched.WithLabelValues(evt.Kind.String()).Inc()

	now := b.now()
	delivered := 0
	for _, s := range b.registry.Snapshot() {
		d, ok := s.Matches(evt)
		if !ok {
			continue
		}

		distance := RoundDistance(d)
		n := BuildNotification(evt, &distance, now)
		data, err := json.Marshal(n)
		if err != nil {
			b.logger.Error("failed to encode notification", "session", s.ID, "error", err)
			continue
		}

		if err := s.Send(data); err != nil {
			b.evict(s, err)
			continue
		}
		delivered++
		metrics.NotificationsDelivered.WithLabelValues(n.Type).Inc()
	}

	b.logger.Debug("event dispatched",
		"kind", evt.Kind.String(),
		"hazard_id", evt.HazardID,
		"delivered", delivered)
	return delivered
}

func (b *Broadcaster) evict(s *Session, cause error) {
	reason := "closed"
	if errors.Is(cause, ErrQueueFull) {
		reason = "queue_full"
	}
	if b.registry.Remove(s.ID) {
		metrics.SessionsEvicted.WithLabelValues(reason).Inc()
		b.logger.Warn("session evicted", "session", s.ID, "subscriber", s.SubscriberID, "reason", reason)
	}
	s.Close()
}
