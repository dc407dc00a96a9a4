package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/saferoute/hazardwatch/internal/identity"
	"github.com/saferoute/hazardwatch/internal/metrics"
)

const (
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Clients send nothing but control frames.
	maxMessageSize = 4 * 1024
)

// Send pings to peer with this period. Must be less than pongWait.
var pingPeriod = (pongWait * 9) / 10

// Handler serves the SSE and WebSocket stream endpoints.
type Handler struct {
	cfg      Config
	registry *Registry
	verifier identity.Verifier
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
	newID    func(subscriberID string, now time.Time) string
}

// NewHandler creates the stream Handler.
func NewHandler(cfg Config, registry *Registry, verifier identity.Verifier, logger *slog.Logger) *Handler {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		cfg:      cfg,
		registry: registry,
		verifier: verifier,
		logger:   logger.With("component", "stream"),
		now:      time.Now,
		newID:    NewSessionID,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return checkAllowedOrigin(r.Header.Get("Origin"), r.Host, h.cfg) == nil
		},
	}
	return h
}

// Registry returns the registry sessions are added to.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// establishError carries the HTTP status for a rejected connection attempt.
type establishError struct {
	status int
	reason string
	err    error
}

func (e *establishError) Error() string { return e.err.Error() }
func (e *establishError) Unwrap() error { return e.err }

func reject(status int, reason string, err error) *establishError {
	return &establishError{status: status, reason: reason, err: err}
}

// establish authenticates the request and builds a Connecting session.
func (h *Handler) establish(r *http.Request, transport string) (*Session, error) {
	params, err := ParseStreamParams(r.URL.Query())
	if err != nil {
		return nil, reject(http.StatusBadRequest, "bad_request", err)
	}

	sub, err := h.verifier.Verify(bearerToken(r, params))
	if err != nil {
		return nil, reject(http.StatusUnauthorized, "unauthorized", err)
	}

	loc, err := params.Location()
	if err != nil {
		return nil, reject(http.StatusBadRequest, "bad_request", err)
	}
	radius, err := params.RadiusOr(h.cfg.DefaultRadiusMeters)
	if err != nil {
		return nil, reject(http.StatusBadRequest, "bad_request", err)
	}
	filter, err := CompileFilter(params.Filter)
	if err != nil {
		return nil, reject(http.StatusBadRequest, "bad_filter", err)
	}

	if h.cfg.MaxSessions > 0 && h.registry.Len() >= h.cfg.MaxSessions {
		return nil, reject(http.StatusServiceUnavailable, "capacity", errors.New("too many open sessions"))
	}

	now := h.now()
	return NewSession(r.Context(), SessionOptions{
		ID:           h.newID(sub.ID, now),
		SubscriberID: sub.ID,
		Location:     loc,
		RadiusMeters: radius,
		Filter:       filter,
		Transport:    transport,
		QueueSize:    h.cfg.QueueSize,
		Now:          now,
	}), nil
}

// open enqueues the handshake, registers the session and marks it Open.
// The handshake is queued before registration so it precedes any hazard
// notification.
func (h *Handler) open(s *Session) error {
	data, err := json.Marshal(ConnectedNotification(h.now()))
	if err != nil {
		return err
	}
	if err := s.Send(data); err != nil {
		return err
	}
	if err := h.registry.Add(s); err != nil {
		return err
	}
	s.Open()
	metrics.SessionsOpen.WithLabelValues(s.Transport).Inc()
	h.logger.Info("session opened",
		"session", s.ID,
		"subscriber", s.SubscriberID,
		"transport", s.Transport,
		"has_location", s.Location != nil,
		"radius", s.RadiusMeters,
		"filter", s.Filter.String())
	return nil
}

func registerRejection(err error) *establishError {
	if errors.Is(err, ErrRegistryClosed) {
		return reject(http.StatusServiceUnavailable, "shutting_down", err)
	}
	return reject(http.StatusInternalServerError, "register", err)
}

// release deregisters and closes s.
func (h *Handler) release(s *Session) {
	h.registry.Remove(s.ID)
	s.Close()
	metrics.SessionsOpen.WithLabelValues(s.Transport).Dec()
	h.logger.Info("session closed", "session", s.ID, "subscriber", s.SubscriberID)
}

func (h *Handler) writeRejection(w http.ResponseWriter, err error) {
	var ee *establishError
	if !errors.As(err, &ee) {
		ee = reject(http.StatusInternalServerError, "internal", err)
	}
	metrics.SessionsRejected.WithLabelValues(ee.reason).Inc()
	if ee.status >= 500 {
		h.logger.Error("stream connection rejected", "reason", ee.reason, "error", ee.err)
	} else {
		h.logger.Debug("stream connection rejected", "reason", ee.reason, "error", ee.err)
	}
	msg := ee.err.Error()
	if ee.status == http.StatusUnauthorized {
		msg = "invalid or missing token"
	}
	http.Error(w, msg, ee.status)
}

// ServeSSE handles GET /api/hazards/stream.
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	s, err := h.establish(r, TransportSSE)
	if err != nil {
		h.writeRejection(w, err)
		return
	}
	if err := h.open(s); err != nil {
		s.Close()
		h.writeRejection(w, registerRejection(err))
		return
	}
	defer h.release(s)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	write := func(format string, args ...interface{}) error {
		if err := rc.SetWriteDeadline(h.now().Add(h.cfg.WriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		if _, err := fmt.Fprintf(w, format, args...); err != nil {
			return err
		}
		return rc.Flush()
	}

	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.Done():
			return
		case <-ticker.C:
			if err := write(": heartbeat\n\n"); err != nil {
				h.logger.Warn("heartbeat write failed", "session", s.ID, "error", err)
				return
			}
		case data, ok := <-s.Outbound():
			if !ok {
				return
			}
			if err := write("data: %s\n\n", data); err != nil {
				h.logger.Warn("stream write failed", "session", s.ID, "error", err)
				return
			}
		}
	}
}

// ServeWS handles GET /api/hazards/ws. Messages are the same JSON objects
// as the SSE stream, one per text frame.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	s, err := h.establish(r, TransportWS)
	if err != nil {
		h.writeRejection(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.Close()
		metrics.SessionsRejected.WithLabelValues("upgrade").Inc()
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if err := h.open(s); err != nil {
		s.Close()
		ee := registerRejection(err)
		metrics.SessionsRejected.WithLabelValues(ee.reason).Inc()
		h.logger.Error("failed to register session", "session", s.ID, "error", err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ee.reason))
		return
	}
	defer h.release(s)

	go h.readPump(conn, s)
	h.writePump(conn, s)
}

// readPump discards client frames and closes the session when the peer
// goes away.
func (h *Handler) readPump(conn *websocket.Conn, s *Session) {
	defer s.Close()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed unexpectedly", "session", s.ID, "error", err)
			}
			return
		}
	}
}

// writePump is the only writer to conn.
func (h *Handler) writePump(conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.Done():
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case data, ok := <-s.Outbound():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("websocket write failed", "session", s.ID, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// checkAllowedOrigin accepts empty origins, same-host origins, localhost
// when AllowDevOrigin is set, and the configured list.
func checkAllowedOrigin(origin, reqHost string, cfg Config) error {
	if origin == "" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return errors.New("invalid origin")
	}
	if strings.EqualFold(u.Host, reqHost) {
		return nil
	}

	originHost := u.Hostname()
	reqHostPart := strings.Split(reqHost, ":")[0]
	if strings.EqualFold(originHost, reqHostPart) {
		return nil
	}
	if cfg.AllowDevOrigin && (originHost == "localhost" || originHost == "127.0.0.1") {
		return nil
	}

	trimmed := strings.TrimRight(origin, "/")
	for _, allowed := range cfg.AllowedOrigins {
		if allowed == "" {
			continue
		}
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), trimmed) {
			return nil
		}
	}
	return errors.New("origin not allowed")
}
