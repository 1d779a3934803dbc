package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/polyroot/internal/server"
	"github.com/cwbudde/polyroot/internal/store"
)

var (
	serveAddr    string
	serveWorkers int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Starts an HTTP server that accepts solve jobs, streams their progress
over server-sent events, persists reports and exposes Prometheus metrics
at /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "Concurrent jobs (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveWorkers > 0 {
		cfg.Server.Workers = serveWorkers
	}

	reports, err := store.NewFSStore(cfg.Store.Dir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	srv := server.NewServer(cfg, reports)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		slog.Info("Received signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
