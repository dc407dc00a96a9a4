// Package server hosts the HTTP listener, router and shared middleware.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/saferoute/hazardwatch/internal/metrics"
	"github.com/saferoute/hazardwatch/internal/server/ratelimit"
)

// ErrAlreadyStarted is returned by Start on a running server.
var ErrAlreadyStarted = errors.New("server already started")

// Server owns the chi router and the http.Server built around it.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	router  chi.Router
	limiter ratelimit.Stoppable

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	onShutdown []func()
	started    bool
}

// New builds a server with the middleware chain installed. Routes are added
// through Router before Start.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger.With("component", "server"),
		router: chi.NewRouter(),
	}
	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit)
	}

	s.router.Use(
		s.recoveryMiddleware,
		s.requestIDMiddleware,
		s.loggingMiddleware,
		s.securityHeadersMiddleware,
	)
	if cfg.CORS.Enabled {
		s.router.Use(s.corsMiddleware)
	}
	return s
}

// Router exposes the router for route registration.
func (s *Server) Router() chi.Router {
	return s.router
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Throttle returns middleware limiting connection attempts per client. It
// passes everything through when rate limiting is disabled.
func (s *Server) Throttle() func(http.Handler) http.Handler {
	if s.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return ratelimit.Middleware(s.limiter, s.cfg.RateLimit, func(r *http.Request) {
		metrics.SessionsRejected.WithLabelValues("rate_limited").Inc()
		s.logger.Debug("connection attempt throttled", "path", r.URL.Path, "ip", r.RemoteAddr)
	})
}

// RegisterOnShutdown registers f to run when Stop begins draining. Stream
// handlers never return on their own, so the session registry's CloseAll
// belongs here.
func (s *Server) RegisterOnShutdown(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onShutdown = append(s.onShutdown, f)
	if s.httpServer != nil {
		s.httpServer.RegisterOnShutdown(f)
	}
}

// Listen binds the configured address. Start calls it when needed; calling
// it first lets callers learn the bound address when HTTPPort is 0.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr(), nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.cfg.Addr(), err)
	}
	s.listener = ln
	return ln.Addr(), nil
}

// Start serves until ctx is cancelled, Stop is called or the listener fails.
// It returns nil on a normal shutdown.
func (s *Server) Start(ctx context.Context) error {
	if _, err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	for _, f := range s.onShutdown {
		s.httpServer.RegisterOnShutdown(f)
	}
	srv, ln := s.httpServer, s.listener
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", ln.Addr().String())
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		} else if err != nil {
			err = fmt.Errorf("http server error: %w", err)
		}
		errChan <- err
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Stop drains the server within ctx and releases the rate limiter.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, ln := s.httpServer, s.listener
	s.mu.Unlock()

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if srv == nil {
		if ln != nil {
			return ln.Close()
		}
		return nil
	}

	s.logger.Info("Stopping HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}
	return nil
}
