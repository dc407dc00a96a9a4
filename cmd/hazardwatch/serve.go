package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saferoute/hazardwatch/internal/config"
	"github.com/saferoute/hazardwatch/internal/logging"
	"github.com/saferoute/hazardwatch/internal/services"
	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the notification service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configDir)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, services.Options{Migrate: migrate})
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the hazard schema before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, opts services.Options) error {
	out, err := logging.Install(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer out.Close()
	logger := out.Logger

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := services.NewManager(cfg, opts, logger)

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = mgr.Init(initCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}

	// The HTTP serve loop is stopped by Shutdown, not by the signal context.
	if err := mgr.Start(context.Background()); err != nil {
		_ = mgr.Shutdown(context.Background())
		return fmt.Errorf("start services: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down services...")
	case runErr = <-mgr.Errors():
		logger.Error("Service failed, shutting down", "error", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown incomplete", "error", err)
		if runErr == nil {
			runErr = err
		}
	}

	slog.Info("All services stopped.")
	return runErr
}
