package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"teamdrive/database"
	"teamdrive/handlers"
	"teamdrive/logger"
	"teamdrive/services"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and background workers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	if err := database.Migrate(a.db); err != nil {
		return err
	}
	handlers.SetServices(a.services)

	if cfg.Cleanup.Enabled {
		services.StartCleanupWorkers(ctx, time.Duration(cfg.Cleanup.IntervalSeconds)*time.Second)
		logger.Info("cleanup workers started", "interval_seconds", cfg.Cleanup.IntervalSeconds)
	}
	if cfg.Thumbnail.Enabled {
		services.StartThumbnailWorkers(ctx, time.Duration(cfg.Thumbnail.IntervalSeconds)*time.Second)
		logger.Info("thumbnail workers started", "interval_seconds", cfg.Thumbnail.IntervalSeconds)
	}

	router, err := handlers.NewRouter(cfg, a.registry)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	serverDone := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		serverDone <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-serverDone:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
