package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skillvee/mend/config"
	"github.com/skillvee/mend/errors"
	"github.com/skillvee/mend/health"
	"github.com/skillvee/mend/jobs"
	"github.com/skillvee/mend/logger"
	"github.com/skillvee/mend/progress"
	"github.com/skillvee/mend/retry"
	"github.com/skillvee/mend/server"
	"github.com/skillvee/mend/version"
)

// ServeCmd starts the mend daemon
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the recovery daemon and administrative API",
	Long: `Start the mend daemon: recovers orphaned jobs, serves the administrative
HTTP API for retrying failed jobs, and streams job updates over WebSocket.`,
	RunE: runServe,
}

var (
	servePort   int
	serveDBPath string
)

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (overrides config)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(serveDBPath)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	log := logger.Logger

	store := jobs.NewStore(database)
	errorLogs := jobs.NewErrorLogStore(database)
	progressStore := progress.NewStore(progress.NewSQLiteKV(database), log)
	monitor := health.NewMonitor("executor")

	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
	}
	registry := jobs.NewHandlerRegistry(policy, log)
	registerHandlers(registry)

	ctx := context.Background()
	runner := jobs.NewRunner(ctx, store, errorLogs, registry, monitor, cfg.Runner.MaxLaunchesPerMinute, log)
	controller := jobs.NewController(store, runner, cfg.Retry.MaxAutoRetries, log)

	// Jobs stuck in processing from a previous run go back to failed so
	// operators can retry them
	recovered, err := jobs.RecoverOrphans(store, errorLogs, log)
	if err != nil {
		return errors.Wrap(err, "failed to recover orphaned jobs")
	}

	srv := server.NewServer(ctx, server.Deps{
		DB:         database,
		Config:     cfg,
		Store:      store,
		ErrorLogs:  errorLogs,
		Progress:   progressStore,
		Controller: controller,
		Runner:     runner,
		Monitor:    monitor,
		Logger:     log,
	})

	watcher := startConfigWatcher(controller, runner, log)
	if watcher != nil {
		defer watcher.Stop()
	}

	port := servePort
	if port == 0 {
		port = cfg.Server.Port
	}

	versionInfo := version.Get()
	pterm.Info.Printf("mend %s (commit %s)\n", versionInfo.Version, versionInfo.Short())
	pterm.Info.Printf("Database: %s\n", cfg.Database.Path)
	pterm.Info.Printf("Retry cap: %d, launches/min: %d\n", cfg.Retry.MaxAutoRetries, cfg.Runner.MaxLaunchesPerMinute)
	if recovered > 0 {
		pterm.Warning.Printf("Recovered %d orphaned jobs from previous run\n", recovered)
	}
	if kinds := registry.Kinds(); len(kinds) > 0 {
		pterm.Info.Printf("Registered handlers: %v\n", kinds)
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infow("Received shutdown signal", "signal", sig)
		if err := srv.Stop(); err != nil {
			log.Warnw("Shutdown error", "error", err)
		}
	}()

	return srv.Start(port)
}

// registerHandlers installs job handlers for the kinds this deployment
// processes. The embedding platform replaces this set with its real
// pipelines.
func registerHandlers(registry *jobs.HandlerRegistry) {
	// No built-in handlers; jobs of unregistered kinds fail as
	// non-retryable resource errors until the platform registers theirs.
}

// startConfigWatcher wires config hot reload into the running daemon.
// Missing config file just means no hot reload.
func startConfigWatcher(controller *jobs.Controller, runner *jobs.Runner, log *zap.SugaredLogger) *config.Watcher {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	configPath := filepath.Join(homeDir, ".mend", "mend.toml")
	if _, err := os.Stat(configPath); err != nil {
		return nil
	}

	watcher, err := config.NewWatcher(configPath)
	if err != nil {
		log.Warnw("Failed to watch config file", "path", configPath, "error", err)
		return nil
	}

	watcher.OnReload(func(newCfg *config.Config) error {
		controller.SetMaxAutoRetries(newCfg.Retry.MaxAutoRetries)
		runner.SetLaunchRate(newCfg.Runner.MaxLaunchesPerMinute)
		log.Infow("Applied config reload",
			"max_auto_retries", newCfg.Retry.MaxAutoRetries,
			"launches_per_minute", newCfg.Runner.MaxLaunchesPerMinute,
		)
		return nil
	})
	watcher.Start()
	log.Infow("Watching config for changes", "path", configPath)
	return watcher
}
