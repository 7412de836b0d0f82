package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store backends selectable with --store.
const (
	StoreMemory   = "memory"
	StorePebble   = "pebble"
	StorePostgres = "postgres"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	ProgramID         string
	MaxPools          int
	ProvisionPolicy   string
	PoolCacheSize     int
	Store             string
	PebbleDir         string
	PGDSN             string
	Script            string
	EventsOut         string
	Checkpoint        string
	CheckpointEnabled bool
	BatchSize         int
	MaxRetries        int
	RetryBackoff      time.Duration
	MetricsOut        string
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetDefault("max-pools", 3)
	v.SetDefault("provision-policy", "paired")
	v.SetDefault("pool-cache-size", 64)
	v.SetDefault("store", StoreMemory)
	v.SetDefault("pebble-dir", "./data/pebble")
	v.SetDefault("events-out", "./data/events.jsonl")
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("batch-size", 100)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if err := read(v, cfgFile, flags); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ProgramID:         v.GetString("program-id"),
		MaxPools:          v.GetInt("max-pools"),
		ProvisionPolicy:   v.GetString("provision-policy"),
		PoolCacheSize:     v.GetInt("pool-cache-size"),
		Store:             strings.ToLower(v.GetString("store")),
		PebbleDir:         v.GetString("pebble-dir"),
		PGDSN:             v.GetString("pg-dsn"),
		Script:            v.GetString("script"),
		EventsOut:         v.GetString("events-out"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		BatchSize:         v.GetInt("batch-size"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		MetricsOut:        v.GetString("metrics-out"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks that the selected store has what it needs.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePebble:
		if c.PebbleDir == "" {
			return fmt.Errorf("pebble-dir is required for the pebble store")
		}
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q (memory, pebble, postgres)", c.Store)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than zero")
	}
	return nil
}

// Durable reports whether pool records survive the process.
func (c Config) Durable() bool {
	return c.Store == StorePebble || c.Store == StorePostgres
}

func read(v *viper.Viper, cfgFile string, flags *pflag.FlagSet) error {
	v.SetEnvPrefix("RUGPULLSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("rugpullsim")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("read config: %w", err)
			}
		}
	}
	return nil
}
