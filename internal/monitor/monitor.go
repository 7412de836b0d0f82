// Package monitor watches pools for LP shares that are no longer backed by
// vault balances and for supply/position drift.
package monitor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rugpullsim/internal/amm"
	"rugpullsim/internal/metrics"
	"rugpullsim/internal/model"
)

// ErrSupplyMismatch is returned when a pool's recorded LP supply differs from
// the sum of its positions.
var ErrSupplyMismatch = errors.New("lp supply does not match positions")

// Report is the outcome of one Scan.
type Report struct {
	Statuses []model.PoolStatus `json:"statuses"`
	Unbacked []model.PoolID     `json:"unbacked"`
}

// Monitor reads pool status through the AMM service.
type Monitor struct {
	svc         *amm.Service
	metrics     *metrics.Metrics
	logger      *zap.Logger
	concurrency int
}

func New(svc *amm.Service, m *metrics.Metrics, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{svc: svc, metrics: m, logger: logger, concurrency: 4}
}

// Scan reads every pool in parallel, updates the pool gauges and reports the
// pools whose shares are unbacked. Any supply mismatch fails the scan.
func (m *Monitor) Scan(ctx context.Context) (Report, error) {
	pools, err := m.svc.Registry().List(ctx)
	if err != nil {
		return Report{}, err
	}

	statuses := make([]model.PoolStatus, len(pools))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, pool := range pools {
		i, id := i, pool.ID
		g.Go(func() error {
			st, err := m.CheckSupply(gctx, id)
			if err != nil {
				return err
			}
			statuses[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{Statuses: statuses, Unbacked: []model.PoolID{}}
	for _, st := range statuses {
		m.metrics.SetPool(st.Pool.ID, st.ReserveA, st.ReserveB, st.Pool.TotalLPSupply)
		m.metrics.SetUnbacked(st.Pool.ID, st.Unbacked)
		if st.Unbacked {
			report.Unbacked = append(report.Unbacked, st.Pool.ID)
			m.logger.Warn("pool lp shares unbacked",
				zap.Uint8("pool_id", uint8(st.Pool.ID)),
				zap.Uint64("lp_supply", st.Pool.TotalLPSupply),
				zap.Stringer("authority", st.Pool.Authority),
			)
		}
	}
	return report, nil
}

// CheckSupply reads pool id and verifies that its recorded LP supply equals
// the sum of its positions. Both are read under the pool lock.
func (m *Monitor) CheckSupply(ctx context.Context, id model.PoolID) (model.PoolStatus, error) {
	st, sum, err := m.svc.Audit(ctx, id)
	if err != nil {
		return model.PoolStatus{}, fmt.Errorf("status pool %d: %w", id, err)
	}
	if sum != st.Pool.TotalLPSupply {
		m.logger.Error("lp supply drift",
			zap.Uint8("pool_id", uint8(id)),
			zap.Uint64("lp_supply", st.Pool.TotalLPSupply),
			zap.Uint64("positions_sum", sum),
		)
		return st, fmt.Errorf("pool %d supply %d, positions %d: %w", id, st.Pool.TotalLPSupply, sum, ErrSupplyMismatch)
	}
	return st, nil
}
