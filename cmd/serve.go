package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/cardledger/cardintake/internal/capture"
	"github.com/cardledger/cardintake/internal/handlers"
	"github.com/cardledger/cardintake/internal/storage"
)

const lockFile = "cardintake.lock"

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the capture API server",
		Long: `Starts the cardintake HTTP API.

Capture stations create a session per card, upload photos as they are taken
and receive OCR-backed suggestions. Deferred cards and teach templates are kept
in a SQLite database under the data directory.`,
		Example: `  # Start server on the configured address (default :8888)
  cardintake serve

  # Start server on a custom address
  cardintake serve --addr :3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger := slog.Default()

			if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			lock := flock.New(filepath.Join(cfg.Server.DataDir, lockFile))
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("failed to acquire data directory lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another cardintake server is using %s", cfg.Server.DataDir)
			}
			defer func() {
				if err := lock.Unlock(); err != nil {
					logger.Warn("Failed to release data directory lock", "err", err)
				}
			}()

			db, err := storage.Open(cfg.Server.DataDir)
			if err != nil {
				return err
			}
			defer db.Close()

			deps, err := newCaptureDeps(cfg, db, logger)
			if err != nil {
				return err
			}

			sessions := storage.New()
			handler := handlers.New(handlers.Options{
				Sessions:   sessions,
				NewSession: func() *capture.Controller { return capture.New(deps) },
				Templates:  deps.Templates,
				Queue:      deps.Queue,
				Logger:     logger,
			})

			server := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				logger.Info("Cardintake API available", "addr", cfg.Server.Addr, "database", db.Path(), "ocr_provider", cfg.OCR.Provider)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				logger.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				err := server.Shutdown(shutdownCtx)
				sessions.CloseAll()
				if err != nil {
					logger.Error("Server shutdown failed", "err", err)
					return err
				}
				logger.Info("Server stopped")
				return nil
			case err := <-serverErr:
				sessions.CloseAll()
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (overrides server.addr)")

	return cmd
}
