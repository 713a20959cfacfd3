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

	"github.com/spf13/cobra"

	"github.com/michaelbrown/gradebox/internal/grader"
	"github.com/michaelbrown/gradebox/internal/metrics"
	"github.com/michaelbrown/gradebox/internal/server"
	"github.com/michaelbrown/gradebox/internal/storage"
)

var (
	portFlag      int
	noHistoryFlag bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Gradebox HTTP server",
	Long: `Start the Gradebox HTTP server with REST API and WebSocket support.

API endpoints are under /api. Prometheus metrics are served at /metrics
when enabled in the config.

Examples:
  gradebox serve
  gradebox serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&noHistoryFlag, "no-history", false, "Do not record submissions")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	slog.Info("exercises loaded", "dir", cfg.Exercises.Dir, "count", catalog.Len())

	// Open storage
	var store storage.Store
	if !noHistoryFlag {
		s, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer s.Close()
		store = s
	}

	runner := cfg.NewSandbox()
	var observer grader.Observer
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg, m := metrics.NewRegistry()
		runner = m.Instrument(runner)
		observer = m
		metricsHandler = metrics.Handler(reg)
	}

	g, err := newGrader(cfg, runner, observer)
	if err != nil {
		return err
	}

	// Determine port
	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(server.Deps{
		Runner:        runner,
		Grader:        g,
		Catalog:       catalog,
		Store:         store,
		Metrics:       metricsHandler,
		PassThreshold: cfg.Grading.PassThreshold,
		Logger:        slog.Default(),
	})

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		srv.Shutdown(context.Background())
	}()

	if err := srv.Start(port); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
