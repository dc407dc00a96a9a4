package realtime

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/saferoute/hazardwatch/internal/geo"
	"github.com/saferoute/hazardwatch/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	tokens map[string]string
}

func (f fakeVerifier) Verify(token string) (identity.Subscriber, error) {
	if id, ok := f.tokens[token]; ok {
		return identity.Subscriber{ID: id}, nil
	}
	return identity.Subscriber{}, errors.New("bad token: " + identity.ErrUnauthorized.Error())
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = time.Hour
	return NewHandler(cfg, NewRegistry(), fakeVerifier{tokens: map[string]string{"good": "42"}}, nil)
}

func newTestServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", h.ServeSSE)
	mux.HandleFunc("/ws", h.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		h.Registry().CloseAll()
		srv.Close()
	})
	return srv
}

func readSSEData(t *testing.T, rd *bufio.Reader) Notification {
	t.Helper()
	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var n Notification
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &n))
		return n
	}
}

func TestServeSSE_Rejections(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"bad token", "?token=nope", http.StatusUnauthorized},
		{"latitude only", "?token=good&latitude=51.5", http.StatusBadRequest},
		{"latitude out of range", "?token=good&latitude=95&longitude=0", http.StatusBadRequest},
		{"non numeric", "?token=good&latitude=abc&longitude=0", http.StatusBadRequest},
		{"zero radius", "?token=good&latitude=51.5&longitude=0&radius=0", http.StatusBadRequest},
		{"bad filter", "?token=good&filter=hazard.type%20%3D%3D", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/stream"+tt.query, nil)
			h.ServeSSE(rr, req)
			assert.Equal(t, tt.want, rr.Code)
			assert.Equal(t, 0, h.Registry().Len())
		})
	}
}

func TestServeSSE_MaxSessions(t *testing.T) {
	h := newTestHandler(t)
	h.cfg.MaxSessions = 1
	require.NoError(t, h.Registry().Add(NewSession(t.Context(), SessionOptions{SubscriberID: "x"})))

	rr := httptest.NewRecorder()
	h.ServeSSE(rr, httptest.NewRequest(http.MethodGet, "/stream?token=good", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestServeSSE_HandshakeThenEvents(t *testing.T) {
	h := newTestHandler(t)
	srv := newTestServer(t, h)

	resp, err := http.Get(srv.URL + "/stream?token=good&latitude=51.5074&longitude=-0.1278&radius=2000")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)
	first := readSSEData(t, rd)
	assert.Equal(t, TypeConnected, first.Type)

	require.Eventually(t, func() bool { return h.Registry().Len() == 1 }, time.Second, 10*time.Millisecond)
	s := h.Registry().Snapshot()[0]
	assert.True(t, strings.HasPrefix(s.ID, "42-"))
	assert.Equal(t, 2000, s.RadiusMeters)

	b := NewBroadcaster(h.Registry(), nil)
	require.Equal(t, 1, b.Dispatch(createdAt(5, london)))

	n := readSSEData(t, rd)
	assert.Equal(t, TypeNewHazard, n.Type)
	require.NotNil(t, n.Hazard)
	assert.Equal(t, int64(5), n.Hazard.ID)
}

func TestServeSSE_ClientDisconnectDeregisters(t *testing.T) {
	h := newTestHandler(t)
	srv := newTestServer(t, h)

	resp, err := http.Get(srv.URL + "/stream?token=good")
	require.NoError(t, err)
	readSSEData(t, bufio.NewReader(resp.Body))
	require.Eventually(t, func() bool { return h.Registry().Len() == 1 }, time.Second, 10*time.Millisecond)

	resp.Body.Close()
	assert.Eventually(t, func() bool { return h.Registry().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeSSE_CloseAllEndsStream(t *testing.T) {
	h := newTestHandler(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream?token=good", nil)
	done := make(chan struct{})
	go func() {
		h.ServeSSE(rr, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return h.Registry().Len() == 1 }, time.Second, 10*time.Millisecond)
	h.Registry().CloseAll()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SSE handler did not return after CloseAll")
	}
	assert.Equal(t, 0, h.Registry().Len())
}

func TestServeSSE_DuplicateSessionRejected(t *testing.T) {
	h := newTestHandler(t)
	h.newID = func(string, time.Time) string { return "42-1700000000000-deadbeef" }

	existing := NewSession(t.Context(), SessionOptions{ID: "42-1700000000000-deadbeef", SubscriberID: "42"})
	require.NoError(t, h.Registry().Add(existing))

	rr := httptest.NewRecorder()
	h.ServeSSE(rr, httptest.NewRequest(http.MethodGet, "/stream?token=good", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotEqual(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.NotContains(t, rr.Body.String(), "data:")

	got, ok := h.Registry().Get(existing.ID)
	require.True(t, ok)
	assert.Same(t, existing, got)
	assert.Equal(t, 1, h.Registry().Len())
	assert.NotEqual(t, StateClosed, existing.State())
}

func TestServeSSE_RegistryClosed(t *testing.T) {
	h := newTestHandler(t)
	h.Registry().CloseAll()

	rr := httptest.NewRecorder()
	h.ServeSSE(rr, httptest.NewRequest(http.MethodGet, "/stream?token=good", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.NotContains(t, rr.Body.String(), "data:")
}

func TestServeWS_DuplicateSessionClosesConnection(t *testing.T) {
	h := newTestHandler(t)
	h.newID = func(string, time.Time) string { return "42-dup" }
	existing := NewSession(t.Context(), SessionOptions{ID: "42-dup", SubscriberID: "42"})
	require.NoError(t, h.Registry().Add(existing))
	srv := newTestServer(t, h)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=good"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseTryAgainLater, closeErr.Code)

	got, ok := h.Registry().Get("42-dup")
	require.True(t, ok)
	assert.Same(t, existing, got)
}

func TestServeWS_HandshakeThenEvents(t *testing.T) {
	h := newTestHandler(t)
	srv := newTestServer(t, h)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=good&latitude=51.5074&longitude=-0.1278"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var hello Notification
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, TypeConnected, hello.Type)

	require.Eventually(t, func() bool { return h.Registry().Len() == 1 }, time.Second, 10*time.Millisecond)
	b := NewBroadcaster(h.Registry(), nil)
	require.Equal(t, 1, b.Dispatch(createdAt(9, geo.Point{Lat: 51.51, Lon: -0.1278})))

	var n Notification
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, TypeNewHazard, n.Type)
	require.NotNil(t, n.DistanceMeters)
	assert.InDelta(t, 289, *n.DistanceMeters, 2)

	conn.Close()
	assert.Eventually(t, func() bool { return h.Registry().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_Unauthorized(t *testing.T) {
	h := newTestHandler(t)
	srv := newTestServer(t, h)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=bad"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCheckAllowedOrigin(t *testing.T) {
	cfg := Config{AllowedOrigins: []string{"https://app.example.com/"}}

	assert.NoError(t, checkAllowedOrigin("", "api:8080", cfg))
	assert.NoError(t, checkAllowedOrigin("http://api:8080", "api:8080", cfg))
	assert.NoError(t, checkAllowedOrigin("http://api:3000", "api:8080", cfg))
	assert.NoError(t, checkAllowedOrigin("https://app.example.com", "api:8080", cfg))
	assert.Error(t, checkAllowedOrigin("https://evil.example.com", "api:8080", cfg))
	assert.Error(t, checkAllowedOrigin("http://localhost:3000", "api:8080", cfg))

	cfg.AllowDevOrigin = true
	assert.NoError(t, checkAllowedOrigin("http://localhost:3000", "api:8080", cfg))
}
