package services

import (
	"context"
	"errors"
	"fmt"
)

// Shutdown stops the service in order: stop accepting connections and close
// every session, stop the change feed, wait for in-flight fan-out, then
// close the store. Each step is attempted even if an earlier one failed.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error

	if m.server != nil {
		if err := m.server.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	// Sessions still open after a timed-out drain.
	if m.registry != nil {
		if n := m.registry.CloseAll(); n > 0 {
			m.logger.Warn("Force-closed sessions after drain", "count", n)
		}
	}

	if m.feedCancel != nil {
		m.feedCancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		if m.broadcaster != nil {
			m.broadcaster.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Background tasks finished")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for background tasks")
		errs = append(errs, fmt.Errorf("waiting for background tasks: %w", ctx.Err()))
	}

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			m.logger.Error("Error closing hazard store", "error", err)
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}

	return errors.Join(errs...)
}
