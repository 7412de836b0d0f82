package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "rugpullsim",
		Short:        "Constant-product pool simulator with an authority drain",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a JSONL operation script against the pools",
		RunE:  runReplay,
	}
	poolFlags(replayCmd.Flags())
	replayCmd.Flags().String("script", "", "JSONL operation script")
	replayCmd.Flags().String("events-out", "./data/events.jsonl", "event journal JSONL path (empty disables)")
	replayCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	replayCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing (durable stores only)")
	replayCmd.Flags().Int("batch-size", 100, "steps per batch")
	replayCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	replayCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	replayCmd.Flags().String("metrics-out", "", "write Prometheus metrics to this file when done")

	root.AddCommand(replayCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print pool status from a durable store and the last checkpoint",
		RunE:  runStatus,
	}
	poolFlags(statusCmd.Flags())
	statusCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file with custody balances")

	root.AddCommand(statusCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate the event journal into window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "", "input event journal JSONL")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN (window metrics and state go to Postgres)")
	aggregateCmd.Flags().String("out", "", "output window metrics JSONL when no Postgres DSN is given")
	aggregateCmd.Flags().Int("batch-size", 1000, "windows per write")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func poolFlags(flags *pflag.FlagSet) {
	flags.String("store", "memory", "pool store (memory, pebble, postgres)")
	flags.String("pebble-dir", "./data/pebble", "pebble data directory")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.Int("max-pools", 3, "number of pool slots")
	flags.String("program-id", "", "program id used to derive pool and vault addresses")
	flags.String("provision-policy", "paired", "LP share policy (paired, single)")
	flags.Int("pool-cache-size", 64, "pool record cache entries")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
