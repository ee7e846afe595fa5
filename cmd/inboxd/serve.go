package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ttinbox/inboxd"
	"github.com/ttinbox/inboxd/config"
	"github.com/ttinbox/inboxd/internal/store"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// serveCmd starts the inboxd reminder pipeline.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reminder pipeline",
	Long: `Start the inboxd reminder pipeline.

The server will:
  - Load configuration from the specified YAML file
  - Start polling Canvas for assignments (if configured)
  - Schedule and deliver escalating SMS reminders
  - Serve the HTTP API on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  inboxd serve -c config.yaml
  inboxd serve --config /etc/inboxd/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"canvas", cfg.Canvas.Enabled(),
		"courses", len(cfg.Canvas.CourseIDs),
		"database", cfg.Database != nil,
	)
	logger.Info("starting server",
		"port", cfg.Port,
		"poll_interval", cfg.PollInterval.Duration().String(),
		"tick_interval", cfg.TickInterval.Duration().String(),
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := append(config.BuildOptions(cfg), inboxd.WithLogger(logger))

	if cfg.Database != nil {
		pg, err := store.NewPostgresStore(ctx, store.PostgresConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		opts = append(opts, inboxd.WithStore(pg))
	}

	inbox, err := inboxd.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- inbox.Start(ctx)
	}()

	// wait for server to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
