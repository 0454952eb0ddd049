package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"olie/internal/board"
	"olie/internal/config"
	"olie/internal/events"
	"olie/internal/server"
	"olie/internal/snapshot"
	"olie/internal/storage/sqlite"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and frontend",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP listen address")
	serveCmd.Flags().String("db", "", "Path to sqlite database file")
	serveCmd.Flags().String("driver", "", "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
	serveCmd.Flags().String("static", "", "Directory with built frontend")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	logger.Info("Olie board service", slog.String("version", version))

	hub := events.NewHub(logger)
	defer hub.Close()

	store, err := sqlite.Open(cfg.Database.Driver, cfg.Database.Path, logger, hub)
	if err != nil {
		logger.Error("unable to open database", slog.String("error", err.Error()))
		return err
	}
	defer store.Close()

	opts, err := cfg.Board.Options()
	if err != nil {
		return err
	}
	boards := board.NewRegistry(store, opts, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(store, boards, hub, newExporter(ctx, cfg, logger), logger, cfg.StaticDir)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end when the signal context is cancelled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return nil
}

// newExporter returns nil when snapshots are not configured or the client cannot be built.
func newExporter(ctx context.Context, cfg config.Config, logger *slog.Logger) *snapshot.Exporter {
	if !cfg.S3.Enabled() {
		logger.Info("snapshots disabled; no S3 bucket configured")
		return nil
	}
	client, err := snapshot.NewS3Client(ctx, cfg.S3)
	if err != nil {
		logger.Warn("snapshots disabled", slog.String("error", err.Error()))
		return nil
	}
	exporter := snapshot.NewExporter(client, cfg.S3, logger)
	if err := exporter.CheckBucket(ctx); err != nil {
		logger.Warn("snapshot bucket unavailable", slog.String("bucket", cfg.S3.Bucket), slog.String("error", err.Error()))
	}
	return exporter
}
