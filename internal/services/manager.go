// Package services wires the hazardwatch components together and owns their
// start and shutdown order.
package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/saferoute/hazardwatch/internal/api"
	"github.com/saferoute/hazardwatch/internal/changefeed"
	"github.com/saferoute/hazardwatch/internal/config"
	"github.com/saferoute/hazardwatch/internal/health"
	"github.com/saferoute/hazardwatch/internal/identity"
	"github.com/saferoute/hazardwatch/internal/realtime"
	"github.com/saferoute/hazardwatch/internal/server"
)

type Options struct {
	// Migrate applies the store schema during Init.
	Migrate bool
}

// HazardStore is what the manager needs from the hazard store.
type HazardStore interface {
	api.HazardStore
	health.Pinger
	EnsureSchema(ctx context.Context) error
	Close() error
}

type Manager struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	store       HazardStore
	verifier    *identity.TokenService
	registry    *realtime.Registry
	stream      *realtime.Handler
	listener    *changefeed.Listener
	broadcaster *realtime.Broadcaster
	health      *health.Checker
	server      *server.Server

	feedCancel context.CancelFunc
	wg         sync.WaitGroup
	errs       chan error
}

func NewManager(cfg *config.Config, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With("component", "services"),
		errs:   make(chan error, 2),
	}
}

// Registry exposes the session registry.
func (m *Manager) Registry() *realtime.Registry {
	return m.registry
}

// Listener exposes the change feed listener.
func (m *Manager) Listener() *changefeed.Listener {
	return m.listener
}

// Errors delivers fatal background errors, such as the HTTP listener failing.
func (m *Manager) Errors() <-chan error {
	return m.errs
}
