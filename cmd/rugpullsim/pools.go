package main

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"rugpullsim/internal/amm"
	"rugpullsim/internal/config"
	"rugpullsim/internal/custody"
	"rugpullsim/internal/metrics"
	"rugpullsim/internal/storage"
	"rugpullsim/internal/storage/memory"
	"rugpullsim/internal/storage/pebble"
	"rugpullsim/internal/storage/postgres"
)

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.NewStore(), nil
	case config.StorePebble:
		store, err := pebble.Open(cfg.PebbleDir)
		if err != nil {
			return nil, fmt.Errorf("open pebble: %w", err)
		}
		return store, nil
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func newService(cfg config.Config, store storage.Store, ledger *custody.Ledger, journal storage.EventSink, m *metrics.Metrics, logger *zap.Logger) (*amm.Service, error) {
	programID := amm.DefaultProgramID
	if cfg.ProgramID != "" {
		parsed, err := solana.PublicKeyFromBase58(cfg.ProgramID)
		if err != nil {
			return nil, fmt.Errorf("parse program-id: %w", err)
		}
		programID = parsed
	}
	policy, err := amm.ParseProvisionPolicy(cfg.ProvisionPolicy)
	if err != nil {
		return nil, err
	}
	return amm.NewService(amm.Config{
		ProgramID:     programID,
		MaxPools:      cfg.MaxPools,
		Policy:        policy,
		PoolCacheSize: cfg.PoolCacheSize,
		Metrics:       m,
		Journal:       journal,
	}, store, ledger, logger)
}
