// Package health reports service health on /health.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/saferoute/hazardwatch/internal/changefeed"
)

// Status is the health of one component or of the whole service.
type Status string

const (
	StatusOK        Status = "ok"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentHealth is the result of one check.
type ComponentHealth struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report is the full health report.
type Report struct {
	Status     Status            `json:"status"`
	Uptime     string            `json:"uptime"`
	StartedAt  time.Time         `json:"startedAt"`
	Components []ComponentHealth `json:"components"`
	Sessions   int               `json:"sessions"`
}

// CheckFunc probes one component.
type CheckFunc func(ctx context.Context) (Status, string)

type namedCheck struct {
	name string
	fn   CheckFunc
}

// Checker aggregates registered checks into a Report.
type Checker struct {
	startedAt time.Time
	logger    *slog.Logger
	timeout   time.Duration

	mu       sync.RWMutex
	checks   []namedCheck
	sessions func() int
}

// NewChecker creates a checker whose probes share a 2s budget per report.
func NewChecker(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		startedAt: time.Now(),
		logger:    logger.With("component", "health"),
		timeout:   2 * time.Second,
	}
}

// Register adds a named check. Checks run in registration order.
func (h *Checker) Register(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, namedCheck{name: name, fn: fn})
}

// SetSessionCounter sets the source of the open session count.
func (h *Checker) SetSessionCounter(fn func() int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = fn
}

// GetReport runs every check and aggregates the worst status.
func (h *Checker) GetReport(ctx context.Context) Report {
	h.mu.RLock()
	checks := append([]namedCheck(nil), h.checks...)
	sessions := h.sessions
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report := Report{
		Status:     StatusOK,
		Uptime:     time.Since(h.startedAt).Round(time.Second).String(),
		StartedAt:  h.startedAt,
		Components: make([]ComponentHealth, 0, len(checks)),
	}
	if sessions != nil {
		report.Sessions = sessions()
	}

	for _, c := range checks {
		status, detail := c.fn(ctx)
		report.Components = append(report.Components, ComponentHealth{Name: c.name, Status: status, Detail: detail})

		if status == StatusUnhealthy {
			report.Status = StatusUnhealthy
		} else if status == StatusDegraded && report.Status == StatusOK {
			report.Status = StatusDegraded
		}
	}

	return report
}

// Check returns the overall health status.
func (h *Checker) Check(ctx context.Context) Status {
	return h.GetReport(ctx).Status
}

// ServeHTTP answers 200 for ok and degraded, 503 for unhealthy.
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.GetReport(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if report.Status == StatusUnhealthy {
		h.logger.Warn("Health check failed", "components", report.Components)
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(report); err != nil {
		h.logger.Warn("Failed to encode health report", "error", err)
	}
}

// Pinger is satisfied by the hazard store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports unhealthy when p cannot be reached.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) (Status, string) {
		if err := p.Ping(ctx); err != nil {
			return StatusUnhealthy, err.Error()
		}
		return StatusOK, ""
	}
}

// FeedCheck reports the change feed listener state. A listener that is
// reconnecting is degraded, not unhealthy: it recovers on its own.
func FeedCheck(state func() changefeed.State) CheckFunc {
	return func(context.Context) (Status, string) {
		s := state()
		if s == changefeed.StateConnected {
			return StatusOK, s.String()
		}
		return StatusDegraded, s.String()
	}
}
