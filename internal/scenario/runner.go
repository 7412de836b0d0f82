// Package scenario replays JSONL operation scripts against an AMM service.
// Steps run in batches; after each batch the buffered journal events are
// flushed and a checkpoint is written.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"rugpullsim/internal/amm"
	"rugpullsim/internal/custody"
	"rugpullsim/internal/storage"
)

// ErrExpectation is returned when a step's outcome differs from what the
// script expects.
var ErrExpectation = errors.New("expectation failed")

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	ProgramID         solana.PublicKey
	BatchSize         int
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Report summarizes a replay.
type Report struct {
	Resumed          int `json:"resumed"`
	Applied          int `json:"applied"`
	ExpectedFailures int `json:"expected_failures"`
	Events           int `json:"events"`
}

// Runner applies steps through the service. buffer must be the sink the
// service was configured with; its events are forwarded to journal per batch.
type Runner struct {
	cfg        RunConfig
	svc        *amm.Service
	ledger     *custody.Ledger
	buffer     *storage.MemorySink
	journal    storage.EventSink
	logger     *zap.Logger
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies. journal may be nil.
func NewRunner(cfg RunConfig, svc *amm.Service, ledger *custody.Ledger, buffer *storage.MemorySink, journal storage.EventSink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = amm.DefaultProgramID
	}
	return &Runner{
		cfg:        cfg,
		svc:        svc,
		ledger:     ledger,
		buffer:     buffer,
		journal:    journal,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run replays steps, resuming after the last checkpointed batch.
func (r *Runner) Run(ctx context.Context, steps []Step) (Report, error) {
	var report Report
	if r.svc == nil {
		return report, fmt.Errorf("service is nil")
	}
	if r.ledger == nil {
		return report, fmt.Errorf("custody ledger is nil")
	}
	if r.buffer == nil {
		return report, fmt.Errorf("event buffer is nil")
	}
	if r.cfg.BatchSize <= 0 {
		return report, fmt.Errorf("batch size must be greater than zero")
	}

	from := 0
	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return report, err
	}
	if ok {
		if cp.TotalSteps != len(steps) {
			return report, fmt.Errorf("checkpoint was written for a %d step script, have %d", cp.TotalSteps, len(steps))
		}
		from = cp.NextStep
		r.ledger.Restore(cp.Balances)
		report.Resumed = from
		r.logger.Info("resume from checkpoint", zap.Int("next_step", from), zap.Int("accounts", len(cp.Balances)))
	}

	if from >= len(steps) {
		r.logger.Info("nothing to replay", zap.Int("from", from), zap.Int("steps", len(steps)))
		return report, nil
	}

	ranges, err := SplitSteps(from, len(steps)-1, r.cfg.BatchSize)
	if err != nil {
		return report, err
	}

	for _, batch := range ranges {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		for i := batch.From; i <= batch.To; i++ {
			failed, err := r.applyWithRetry(ctx, steps[i])
			if err != nil {
				if flushed, ferr := r.flush(ctx); ferr == nil {
					report.Events += flushed
				}
				return report, fmt.Errorf("step %d (%s): %w", i, steps[i].Op, err)
			}
			report.Applied++
			if failed {
				report.ExpectedFailures++
			}
		}

		flushed, err := r.flush(ctx)
		if err != nil {
			return report, err
		}
		report.Events += flushed

		if err := r.checkpoint.Save(batch.To+1, len(steps), r.ledger.Snapshot()); err != nil {
			return report, err
		}

		r.logger.Info("batch complete", zap.Int("from", batch.From), zap.Int("to", batch.To), zap.Int("events", flushed))
	}

	return report, nil
}

func (r *Runner) flush(ctx context.Context) (int, error) {
	events := r.buffer.Drain()
	if len(events) == 0 || r.journal == nil {
		return len(events), nil
	}
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, nil, func(context.Context) error {
		err := r.journal.PutEventBatch(events)
		if err != nil {
			r.logger.Warn("journal flush failed", zap.Error(err), zap.Int("events", len(events)))
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("flush journal: %w", err)
	}
	return len(events), nil
}

// applyWithRetry retries a step that lost a version race with another writer.
// It reports whether the step failed the way the script expected.
func (r *Runner) applyWithRetry(ctx context.Context, step Step) (bool, error) {
	var expectedFailure bool
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, retryableStep, func(ctx context.Context) error {
		got, gotB, err := r.apply(ctx, step)
		if err != nil && step.ExpectError == "" && retryableStep(err) {
			r.logger.Warn("step conflicted, retrying", zap.String("op", string(step.Op)), zap.Error(err))
			return err
		}
		expectedFailure = err != nil
		return check(step, got, gotB, err)
	})
	return expectedFailure, err
}

func retryableStep(err error) bool {
	return errors.Is(err, amm.ErrConcurrentModification)
}

func check(step Step, got, gotB uint64, err error) error {
	if step.ExpectError != "" {
		if err == nil {
			return fmt.Errorf("want error %s, step succeeded: %w", step.ExpectError, ErrExpectation)
		}
		if kind := amm.Kind(err); kind != step.ExpectError {
			return fmt.Errorf("want error %s, got %s (%v): %w", step.ExpectError, kind, err, ErrExpectation)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if step.Expect != nil && *step.Expect != got {
		return fmt.Errorf("want %d, got %d: %w", *step.Expect, got, ErrExpectation)
	}
	if step.ExpectB != nil && *step.ExpectB != gotB {
		return fmt.Errorf("want amount b %d, got %d: %w", *step.ExpectB, gotB, ErrExpectation)
	}
	return nil
}

func (r *Runner) key(name string) (solana.PublicKey, error) {
	return ResolveKey(r.cfg.ProgramID, name)
}

func (r *Runner) keys(names ...string) ([]solana.PublicKey, error) {
	out := make([]solana.PublicKey, len(names))
	for i, name := range names {
		key, err := r.key(name)
		if err != nil {
			return nil, err
		}
		out[i] = key
	}
	return out, nil
}

func (r *Runner) apply(ctx context.Context, step Step) (uint64, uint64, error) {
	switch step.Op {
	case OpCreatePool:
		keys, err := r.keys(step.MintA, step.MintB, step.Authority)
		if err != nil {
			return 0, 0, err
		}
		_, err = r.svc.CreatePool(ctx, step.Pool, keys[0], keys[1], keys[2])
		return 0, 0, err
	case OpMint:
		keys, err := r.keys(step.User, step.Mint)
		if err != nil {
			return 0, 0, err
		}
		acct, err := custody.UserAccount(keys[0], keys[1])
		if err != nil {
			return 0, 0, err
		}
		if err := r.ledger.Mint(ctx, acct, keys[1], keys[0], step.Amount); err != nil {
			return 0, 0, err
		}
		return step.Amount, 0, nil
	case OpProvide:
		user, err := r.key(step.User)
		if err != nil {
			return 0, 0, err
		}
		minted, err := r.svc.Provide(ctx, amm.ProvideRequest{
			PoolID:    step.Pool,
			User:      user,
			AmountA:   step.AmountA,
			AmountB:   step.AmountB,
			MinShares: step.MinShares,
		})
		return minted, 0, err
	case OpSwap:
		user, err := r.key(step.User)
		if err != nil {
			return 0, 0, err
		}
		out, err := r.svc.Swap(ctx, amm.SwapRequest{
			PoolID:       step.Pool,
			User:         user,
			Direction:    step.Direction,
			AmountIn:     step.AmountIn,
			MinAmountOut: step.MinAmountOut,
		})
		return out, 0, err
	case OpRemove:
		user, err := r.key(step.User)
		if err != nil {
			return 0, 0, err
		}
		return r.svc.Remove(ctx, amm.RemoveRequest{
			PoolID:     step.Pool,
			User:       user,
			LPAmount:   step.LPAmount,
			MinAmountA: step.MinAmountA,
			MinAmountB: step.MinAmountB,
		})
	case OpDrain:
		caller, err := r.key(step.User)
		if err != nil {
			return 0, 0, err
		}
		return r.svc.Drain(ctx, step.Pool, caller)
	default:
		return 0, 0, fmt.Errorf("unknown op %q", step.Op)
	}
}
