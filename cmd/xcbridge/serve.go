package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aptove/xcbridge/internal/config"
	"github.com/aptove/xcbridge/internal/driver"
	"github.com/aptove/xcbridge/internal/history"
	"github.com/aptove/xcbridge/internal/logging"
	"github.com/aptove/xcbridge/internal/registry"
	"github.com/aptove/xcbridge/internal/server"
	"github.com/aptove/xcbridge/internal/xcodebuild"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the xcbridge HTTP server",
	Long: `Start the xcbridge HTTP server.

This command loads the configuration file, probes the xcodebuild
installation, and serves the job API: POST /build and POST /test start
background jobs, GET /build/{id} and GET /test/{id} report their state,
GET .../logs streams output, and DELETE cancels.

Example:
  xcbridge serve --config ./xcbridge.yaml`,
	RunE: runServer,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "xcbridge.yaml", "Path to configuration file")
	serveCmd.Flags().StringP("addr", "a", "", "HTTP server address (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	addrOverride, _ := cmd.Flags().GetString("addr")

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply logging config from YAML if provided
	if cfg.Logging.Output != "" || cfg.Logging.Level != "" || cfg.Logging.Format != "" {
		serveLogger, err := logging.NewFromConfig(cfg.Logging.Format, cfg.Logging.Level, cfg.Logging.Output)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = serveLogger
		slog.SetDefault(serveLogger)
	}

	addr := cfg.Addr()
	if addrOverride != "" {
		addr = addrOverride
	}

	logger.Info("starting xcbridge in serve mode",
		"config", configPath,
		"addr", addr)

	// Setup signal handling for graceful shutdown
	ctx := setupSignalHandler()

	// Probe the toolchain before accepting any work. A broken xcodebuild
	// installation is fatal at startup rather than per-job.
	runner := xcodebuild.NewRunner(cfg.Xcodebuild.Tool, logger)

	probeCtx, probeCancel := context.WithTimeout(ctx, 30*time.Second)
	xcodeVersion, err := runner.Version(probeCtx)
	probeCancel()
	if err != nil {
		return fmt.Errorf("xcodebuild probe failed: %w", err)
	}

	logger.Info("xcodebuild detected", "tool", cfg.Xcodebuild.Tool, "version", xcodeVersion)

	// Initialize store for job history
	hist, err := history.NewStore(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize history store: %w", err)
	}
	defer func() {
		if err := hist.Close(); err != nil {
			logger.Error("failed to close history store", "error", err)
		}
	}()

	logger.Info("history store initialized", "driver", cfg.Store.Driver, "path", cfg.Store.Path)

	// Job registry and driver
	reg := registry.New()
	drv := driver.New(ctx, reg, hist, runner, cfg, logger)

	// Periodic sweep keeps the in-memory registry bounded by evicting the
	// oldest finished jobs beyond the retention limit.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Retention.SweepSchedule, func() {
		if evicted := reg.Reclaim(cfg.Retention.MaxCompleted); evicted > 0 {
			logger.Info("reclaimed finished jobs", "evicted", evicted, "remaining", reg.Len())
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", cfg.Retention.SweepSchedule, err)
	}

	// Initialize HTTP server
	srv := server.New(addr, drv, server.Options{
		Toolchain:    runner,
		History:      hist,
		XcodeVersion: xcodeVersion,
		APIKey:       cfg.Server.APIKey,
	}, logger)

	// Use errgroup to run the sweeper and server concurrently
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sweeper.Start()
		<-gCtx.Done()
		return nil
	})

	g.Go(func() error {
		if err := srv.Start(gCtx); err != nil && err != context.Canceled {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Shutdown handler
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down gracefully...")

		// Stop the sweeper first, then drain the HTTP server. Running jobs
		// are abandoned with the process; their registry records go with it.
		<-sweeper.Stop().Done()

		if err := srv.Stop(context.Background()); err != nil {
			logger.Error("error stopping server", "error", err)
		}

		return nil
	})

	logger.Info("xcbridge serve mode started successfully",
		"addr", addr,
		"api_key_required", cfg.Server.APIKey != "",
		"allowed_paths", cfg.Security.AllowedPaths)

	// Wait for all goroutines
	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("error during execution", "error", err)
		return err
	}

	logger.Info("xcbridge stopped")
	return nil
}
