package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/exposure/internal/api"
	"github.com/hyperengineering/exposure/internal/config"
	"github.com/hyperengineering/exposure/internal/engine"
	"github.com/hyperengineering/exposure/internal/engine/contactshield"
	"github.com/hyperengineering/exposure/internal/engine/nearby"
	"github.com/hyperengineering/exposure/internal/fetch"
	"github.com/hyperengineering/exposure/internal/ledger"
	"github.com/hyperengineering/exposure/internal/syncrun"
	"github.com/hyperengineering/exposure/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "exposure",
	Short: "Exposure - Diagnosis Key Sync Engine",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded")

	// 3. Initialize logger
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Log.Level)

	// 4. Initialize ledger (migrations, WAL mode)
	db, err := ledger.NewSQLiteLedger(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("ledger initialized", "path", cfg.Database.Path)

	// 5. Initialize batch source
	source, err := fetch.NewSource(cfg.Batch)
	if err != nil {
		return err
	}
	slog.Info("batch source initialized")

	// 6. Probe vendor engines
	eng, err := resolveEngine(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("engine selected", "vendor", eng.Vendor())

	// 7. Orchestrator and status registry
	status := syncrun.NewRegistry()
	orch := syncrun.New(db, source, eng, status, nil, syncrun.Options{
		RecentHours:   cfg.Batch.RecentHours,
		FullBatchDays: cfg.Sync.FullBatchDays,
		MaxDownloads:  cfg.Batch.MaxDownloads,
		Matching:      cfg.Matching,
	}, logger)

	// 8. Initialize HTTP router
	handler := api.NewHandler(db, eng, orch, status, Version)
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	// 9. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 10. Background sync coordinator
	var wg sync.WaitGroup
	coordinator := worker.NewSyncCoordinator(orch, cfg.Sync.Categories,
		time.Duration(cfg.Sync.Interval))
	startWorker(ctx, &wg, "sync-coordinator", coordinator.Run)

	// 11. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		// Any other error indicates an actual server failure that should trigger shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel() // Trigger shutdown on server failure
		}
	}()

	// 12. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 13. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 13a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 13b. Wait for workers to complete
	wg.Wait()

	// 13c. Close ledger
	if err := db.Close(); err != nil {
		slog.Error("ledger close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// resolveEngine builds both vendor adapters and selects one, honoring an
// explicit vendor from config.
func resolveEngine(ctx context.Context, cfg *config.Config) (engine.Client, error) {
	candidates := map[string]engine.Client{
		"nearby":        nearby.New(cfg.Engine.NearbyURL),
		"contactshield": contactshield.New(cfg.Engine.ContactShieldURL),
	}
	return engine.Probe(ctx, cfg.Engine.Vendor, candidates)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
