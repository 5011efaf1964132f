package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hazz-dev/upnotif/internal/checker"
	"github.com/hazz-dev/upnotif/internal/config"
	"github.com/hazz-dev/upnotif/internal/logging"
	"github.com/hazz-dev/upnotif/internal/notify"
	"github.com/hazz-dev/upnotif/internal/scheduler"
	"github.com/hazz-dev/upnotif/internal/server"
	"github.com/hazz-dev/upnotif/internal/storage"
	"github.com/hazz-dev/upnotif/internal/tracker"
	"github.com/hazz-dev/upnotif/internal/version"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "upnotif",
		Short:        "Watch URLs and post a notification when one goes up or down",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file; environment variables take precedence")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(statusCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start monitoring (the default when no command is given)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) (err error) {
	// 1. Load config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// 2. Logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() {
		// Sync fails on non-file stderr on some platforms.
		_ = logger.Sync()
	}()
	logger.Info("config loaded",
		zap.Int("urls", len(cfg.URLs)),
		zap.Duration("interval", cfg.Interval()),
		zap.Duration("timeout", cfg.Timeout()),
	)
	if cfg.TestMode() {
		logger.Info("test mode: notifications are printed to stdout instead of posted")
	}

	// 3. Open history store
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		err = multierr.Append(err, db.Close())
	}()

	// 4. Build the monitor
	targets := checker.Targets(cfg.URLs)
	tr := tracker.New()
	sched := scheduler.New(
		targets,
		checker.New(cfg.Timeout(), logger),
		tr,
		notify.New(cfg.SlackWebhook, logger),
		db,
		scheduler.Options{
			Interval:    cfg.Interval(),
			Timeout:     cfg.Timeout(),
			Concurrency: cfg.Concurrency,
		},
		logger,
	)

	// 5. Signal context for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 6. Start scheduler
	sched.Start(ctx)
	logger.Info("monitoring started", zap.Int("targets", len(targets)))

	// 7. Status API, if enabled
	var httpServer *http.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Address != "" {
		api := server.New(db, tr, targets, cfg.Server.AllowedOrigins, logger)
		httpServer = &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           api.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("listening", zap.String("address", cfg.Server.Address))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	// 8. Wait for signal or server error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		stop()
		sched.Wait()
		return fmt.Errorf("HTTP server: %w", err)
	}

	// 9. Graceful shutdown
	sched.Wait()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
	return nil
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe every configured URL once and print the results",
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile, config.WebhookOptional())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	return executeCheck(cmd, cfg, logger)
}

func statusCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the latest recorded check per URL from the history database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, target)
		},
	}
	cmd.Flags().StringVar(&target, "url", "", "only show the latest check for this URL")
	return cmd
}

func runStatus(cmd *cobra.Command, target string) error {
	cfg, err := config.Load(cfgFile, config.WebhookOptional())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Storage.Path == storage.MemoryPath {
		return fmt.Errorf("status needs a file-backed history database; set %s", config.EnvDBPath)
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return executeStatus(cmd, db, target)
}
