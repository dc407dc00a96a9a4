package services

import (
	"context"
	"fmt"
	"net"
)

// Listen binds the HTTP address without serving. Start calls it implicitly.
func (m *Manager) Listen() (net.Addr, error) {
	return m.server.Listen()
}

// Start launches the change feed listener, the broadcaster and the HTTP
// server. It returns once they are running; ctx only bounds the HTTP serve
// loop, Shutdown stops everything in order.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := m.server.Listen(); err != nil {
		return err
	}

	feedCtx, cancel := context.WithCancel(context.Background())
	m.feedCancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.listener.Run(feedCtx); err != nil {
			m.logger.Error("Change feed listener stopped", "error", err)
		}
	}()
	m.broadcaster.Start(feedCtx, m.listener.Events())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.server.Start(ctx); err != nil {
			m.logger.Error("HTTP server failed", "error", err)
			select {
			case m.errs <- fmt.Errorf("http server: %w", err):
			default:
			}
		}
	}()

	m.logger.Info("Hazardwatch started",
		"feed_driver", m.cfg.Feed.Driver,
		"addr", m.cfg.Server.Addr(),
	)
	return nil
}
