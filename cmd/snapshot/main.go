package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/speedwagon-io/opcsnapshot/internal/config"
	"github.com/speedwagon-io/opcsnapshot/internal/health"
	"github.com/speedwagon-io/opcsnapshot/internal/lib/logger/sl"
	"github.com/speedwagon-io/opcsnapshot/internal/recorder"
	"github.com/speedwagon-io/opcsnapshot/internal/session"
	"github.com/speedwagon-io/opcsnapshot/internal/snapshot"
	"github.com/speedwagon-io/opcsnapshot/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dryRun := flag.Bool("dry-run", false, "log readings instead of storing them")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	log := sl.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	log.Info("starting OPC UA snapshot",
		slog.String("env", cfg.Env),
		slog.String("endpoint", cfg.OPCUA.Endpoint),
		slog.String("store_driver", cfg.Store.Driver),
		slog.Bool("dry_run", *dryRun),
	)

	openStore := func(ctx context.Context, log *slog.Logger, cfg config.StoreConfig) (snapshot.Store, error) {
		return store.Open(ctx, log, cfg)
	}
	dial := func(ctx context.Context, log *slog.Logger, cfg config.OPCUAConfig) (snapshot.Session, error) {
		return session.Dial(ctx, log, cfg)
	}

	runner := snapshot.NewRunner(log, cfg, openStore, dial, os.Stdout)

	// Use LogRecorder for dry-run mode, the store otherwise
	if *dryRun {
		runner.WithRecorder(recorder.NewLogRecorder(log))
		log.Info("dry-run mode: readings will be logged instead of stored")
	}

	var healthServer *health.Server
	if cfg.Health.Address != "" {
		healthServer = health.NewServer(log, cfg.Health.Address, runner.RunID(), runner.Stage)
		healthServer.AddChecker(health.NewStoreChecker(runner.Ping, runner.Count))

		if err := healthServer.Start(); err != nil {
			log.Error("failed to start health server", sl.Err(err))
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received signal, cancelling run", slog.String("signal", sig.String()))
		cancel()
	}()

	_, runErr := runner.Run(ctx)
	cancel()

	if healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := healthServer.Stop(shutdownCtx); err != nil {
			log.Error("failed to stop health server", sl.Err(err))
		}
		shutdownCancel()
	}

	if runErr != nil {
		log.Error("snapshot failed", sl.Err(runErr), sl.Cause(runErr))
		os.Exit(1)
	}

	log.Info("snapshot finished", slog.String("run_id", runner.RunID()))
}
