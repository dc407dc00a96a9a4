package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.HTTPPort = 0
	return cfg
}

func TestServer_StartStop(t *testing.T) {
	srv := New(testConfig(), nil)
	srv.Router().Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})

	addr, err := srv.Listen()
	require.NoError(t, err)

	var shutdownHooks atomic.Int32
	srv.RegisterOnShutdown(func() { shutdownHooks.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start(ctx) }()

	url := fmt.Sprintf("http://%s/health", addr.String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, srv.Stop(context.Background()))
	cancel()

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop in time")
	}
	assert.Eventually(t, func() bool { return shutdownHooks.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestServer_StartTwice(t *testing.T) {
	srv := New(testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Start(ctx) }()

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.started
	}, time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, srv.Start(ctx), ErrAlreadyStarted)
	require.NoError(t, srv.Stop(context.Background()))
}

func TestServer_ListenError(t *testing.T) {
	first := New(testConfig(), nil)
	addr, err := first.Listen()
	require.NoError(t, err)
	defer first.Stop(context.Background())

	cfg := testConfig()
	cfg.HTTPPort = addr.(*net.TCPAddr).Port
	second := New(cfg, nil)
	defer second.Stop(context.Background())

	err = second.Start(context.Background())
	assert.Error(t, err)
}

func TestServer_StopBeforeStart(t *testing.T) {
	srv := New(testConfig(), nil)
	assert.NoError(t, srv.Stop(context.Background()))

	srv = New(testConfig(), nil)
	_, err := srv.Listen()
	require.NoError(t, err)
	assert.NoError(t, srv.Stop(context.Background()))
}
