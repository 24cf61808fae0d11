package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/meterload/internal/core"
	"github.com/JonMunkholm/meterload/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP ingest API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := web.Options{
		Server:      a.cfg.Server,
		MaxFileSize: a.cfg.Ingest.MaxFileSize,
	}
	if a.cfg.Metrics.Enabled {
		opts.MetricsPath = a.cfg.Metrics.Path
		opts.Gatherer = prometheus.DefaultGatherer
	}
	server := web.NewServer(a.service, a.profiles, opts)

	if days := a.cfg.Ingest.HistoryRetentionDays; days > 0 {
		go a.service.StartRetentionScheduler(ctx, core.RetentionConfig{
			KeepDays:      days,
			CheckInterval: a.cfg.Ingest.HistoryPurgeInterval,
		})
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if st := a.service.LimiterStatus(); st.Active > 0 {
		slog.Info("waiting for ingests to complete", "active", st.Active)
		if err := a.service.Drain(shutdownCtx); err != nil {
			slog.Warn("ingests did not complete in time", "error", err)
		} else {
			slog.Info("all ingests completed")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return err
	}
	slog.Info("server stopped")
	return nil
}
