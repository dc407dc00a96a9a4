// Package metrics holds the Prometheus collectors exported by hazardwatch.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Change feed
	FeedMessagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hazardwatch_feed_messages_received_total",
		Help: "Raw change-feed messages received",
	}, []string{"driver"})

	FeedDecodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hazardwatch_feed_decode_errors_total",
		Help: "Change-feed messages dropped because they could not be decoded",
	}, []string{"driver"})

	FeedReconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hazardwatch_feed_reconnects_total",
		Help: "Change-feed connection losses followed by a reconnect attempt",
	}, []string{"driver"})

	FeedState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hazardwatch_feed_state",
		Help: "Change-feed listener state (0 disconnected, 1 connecting, 2 connected)",
	}, []string{"driver"})

	// Fan-out
	EventsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hazardwatch_events_dispatched_total",
		Help: "Hazard events processed by the broadcaster",
	}, []string{"kind"})

	NotificationsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hazardwatch_notifications_delivered_total",
		Help: "Notifications enqueued to sessions",
	}, []string{"type"})

	SessionsEvicted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hazardwatch_sessions_evicted_total",
		Help: "Sessions removed by the broadcaster after a failed write",
	}, []string{"reason"})

	DispatchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hazardwatch_dispatch_latency_seconds",
		Help:    "Time spent fanning one event out to all sessions",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	// Sessions
	SessionsOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hazardwatch_sessions_open",
		Help: "Currently open streaming sessions",
	}, []string{"transport"})

	SessionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hazardwatch_sessions_rejected_total",
		Help: "Stream connection attempts rejected before registration",
	}, []string{"reason"})

	// HTTP
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hazardwatch_http_requests_total",
		Help: "HTTP requests served, by route pattern and status code",
	}, []string{"method", "route", "code"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hazardwatch_http_request_duration_seconds",
		Help:    "HTTP request duration; stream routes measure the whole session",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

var registerOnce sync.Once

// Collectors returns every collector defined in this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		FeedMessagesReceived,
		FeedDecodeErrors,
		FeedReconnects,
		FeedState,
		EventsDispatched,
		NotificationsDelivered,
		SessionsEvicted,
		DispatchLatency,
		SessionsOpen,
		SessionsRejected,
		HTTPRequests,
		HTTPDuration,
	}
}

// Register registers the collectors with the default registry. Repeated
// calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}
