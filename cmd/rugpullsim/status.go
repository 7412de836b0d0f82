package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rugpullsim/internal/config"
	"rugpullsim/internal/custody"
	"rugpullsim/internal/monitor"
	"rugpullsim/internal/scenario"
)

func runStatus(cmd *cobra.Command, _ []string) error {
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

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ledger := custody.NewLedger(logger)
	cp, ok, err := scenario.NewCheckpointStore(cfg.Checkpoint, true).Load()
	if err != nil {
		return err
	}
	if ok {
		ledger.Restore(cp.Balances)
	} else {
		logger.Warn("no checkpoint, vault balances read as empty", zap.String("checkpoint", cfg.Checkpoint))
	}

	svc, err := newService(cfg, store, ledger, nil, nil, logger)
	if err != nil {
		return err
	}

	report, err := monitor.New(svc, nil, logger).Scan(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
