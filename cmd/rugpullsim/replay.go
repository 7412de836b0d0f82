package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rugpullsim/internal/config"
	"rugpullsim/internal/custody"
	"rugpullsim/internal/metrics"
	"rugpullsim/internal/monitor"
	"rugpullsim/internal/scenario"
	"rugpullsim/internal/storage"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Script == "" {
		return fmt.Errorf("script path is required")
	}
	steps, err := scenario.LoadSteps(cfg.Script)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	ledger := custody.NewLedger(logger)
	buffer := &storage.MemorySink{}
	svc, err := newService(cfg, store, ledger, buffer, m, logger)
	if err != nil {
		return err
	}

	var journal storage.EventSink
	if cfg.EventsOut != "" {
		journal = storage.NewJsonlJournal(cfg.EventsOut)
	}

	checkpointEnabled := cfg.CheckpointEnabled
	if checkpointEnabled && !cfg.Durable() {
		logger.Info("checkpoint disabled for non-durable store", zap.String("store", cfg.Store))
		checkpointEnabled = false
	}

	runner := scenario.NewRunner(scenario.RunConfig{
		ProgramID:         svc.ProgramID(),
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: checkpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, svc, ledger, buffer, journal, logger)

	logger.Info("replay start",
		zap.String("script", cfg.Script),
		zap.Int("steps", len(steps)),
		zap.String("store", cfg.Store),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("max_pools", cfg.MaxPools),
		zap.String("provision_policy", cfg.ProvisionPolicy),
		zap.Int("batch_size", cfg.BatchSize),
		zap.String("events_out", cfg.EventsOut),
		zap.Bool("checkpoint_enabled", checkpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	report, runErr := runner.Run(ctx, steps)
	logger.Info("replay finished",
		zap.Int("resumed", report.Resumed),
		zap.Int("applied", report.Applied),
		zap.Int("expected_failures", report.ExpectedFailures),
		zap.Int("events", report.Events),
		zap.Error(runErr),
	)

	scan, scanErr := monitor.New(svc, m, logger).Scan(ctx)
	if scanErr == nil {
		logger.Info("pool scan", zap.Int("pools", len(scan.Statuses)), zap.Int("unbacked", len(scan.Unbacked)))
	}

	if cfg.MetricsOut != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsOut, reg); err != nil {
			logger.Warn("write metrics failed", zap.Error(err), zap.String("path", cfg.MetricsOut))
		}
	}

	if runErr != nil {
		return runErr
	}
	return scanErr
}
