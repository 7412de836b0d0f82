// Package analytics folds the event journal into per-pool time windows.
package analytics

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"rugpullsim/internal/model"
	"rugpullsim/internal/storage"
)

// MetricsSink stores finished windows. *postgres.Store implements it.
type MetricsSink interface {
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Aggregator aggregates journal events into pool window metrics.
type Aggregator struct {
	cfg          Config
	sink         MetricsSink
	logger       *zap.Logger
	accumulators map[model.PoolID]*Accumulator
}

func NewAggregator(cfg Config, sink MetricsSink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[model.PoolID]*Accumulator),
	}
}

// Run aggregates every event in the journal at inputPath newer than the saved
// progress, then records the new progress.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.sink == nil {
		return fmt.Errorf("metrics sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	maxTs := startTs
	var total, skipped, windows int

	err = storage.ReadEvents(inputPath, func(event model.Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		total++

		ts := uint64(event.Timestamp.Unix())
		if event.Timestamp.Unix() < 0 || ts <= startTs {
			skipped++
			return nil
		}

		start := windowStart(ts, a.cfg.WindowSeconds)
		acc := a.accumulators[event.PoolID]
		if acc != nil && acc.WindowStart != start {
			batch = append(batch, acc.Metrics())
			windows++
			acc = nil
		}
		if acc == nil {
			acc = NewAccumulator(event.PoolID, start, start+a.cfg.WindowSeconds)
			a.accumulators[event.PoolID] = acc
		}

		if err := acc.AddEvent(event); err != nil {
			a.logger.Warn("aggregate event", zap.Error(err), zap.Uint8("pool_id", uint8(event.PoolID)), zap.String("event", string(event.Type)))
			return nil
		}
		if ts > maxTs {
			maxTs = ts
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.sink.UpsertWindowMetrics(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
			if err := a.saveState(ctx, a.resumePoint(startTs)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	ids := make([]model.PoolID, 0, len(a.accumulators))
	for id := range a.accumulators {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	// Open windows are flushed with partial totals, so the next run must
	// rebuild them from their first event.
	resume := a.resumePoint(maxTs)
	for _, id := range ids {
		batch = append(batch, a.accumulators[id].Metrics())
		windows++
	}
	a.accumulators = make(map[model.PoolID]*Accumulator)

	if len(batch) > 0 {
		if err := a.sink.UpsertWindowMetrics(ctx, batch); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = resume + 1
	if err := a.saveState(ctx, resume); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", windows),
		zap.Int("skipped", skipped),
	)
	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// resumePoint is the last timestamp whose windows are final: the second
// before the oldest open window, or fallback when none is open.
func (a *Aggregator) resumePoint(fallback uint64) uint64 {
	open := minOpenWindowStart(a.accumulators)
	if open == 0 {
		return fallback
	}
	return open - 1
}

func (a *Aggregator) saveState(ctx context.Context, last uint64) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	return a.cfg.StateStore.Save(ctx, last)
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func minOpenWindowStart(acc map[model.PoolID]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
