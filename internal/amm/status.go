package amm

import (
	"context"

	"rugpullsim/internal/curve"
	"rugpullsim/internal/model"
)

// Unbacked reports whether LP shares are outstanding while both vaults are
// empty.
func Unbacked(supply, reserveA, reserveB uint64) bool {
	return supply > 0 && reserveA == 0 && reserveB == 0
}

// Status reads pool id together with its live reserves.
func (s *Service) Status(ctx context.Context, id model.PoolID) (model.PoolStatus, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	pool, err := s.registry.Get(ctx, id)
	if err != nil {
		return model.PoolStatus{}, err
	}
	return s.status(ctx, pool)
}

// Audit reads the status of pool id and the sum of its positions under the
// pool lock, so both describe the same committed state.
func (s *Service) Audit(ctx context.Context, id model.PoolID) (model.PoolStatus, uint64, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	pool, err := s.registry.Get(ctx, id)
	if err != nil {
		return model.PoolStatus{}, 0, err
	}
	st, err := s.status(ctx, pool)
	if err != nil {
		return model.PoolStatus{}, 0, err
	}
	sum, err := s.ledger.SupplyOf(ctx, id)
	if err != nil {
		return model.PoolStatus{}, 0, err
	}
	return st, sum, nil
}

func (s *Service) status(ctx context.Context, pool model.PoolState) (model.PoolStatus, error) {
	reserveA, reserveB, err := s.reserves(ctx, pool)
	if err != nil {
		return model.PoolStatus{}, err
	}
	return model.PoolStatus{
		Pool:     pool,
		ReserveA: reserveA,
		ReserveB: reserveB,
		PriceA:   curve.SpotPrice(reserveA, reserveB).String(),
		PriceB:   curve.SpotPrice(reserveB, reserveA).String(),
		Unbacked: Unbacked(pool.TotalLPSupply, reserveA, reserveB),
	}, nil
}

// Statuses returns the status of every pool, ordered by id.
func (s *Service) Statuses(ctx context.Context) ([]model.PoolStatus, error) {
	pools, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.PoolStatus, 0, len(pools))
	for _, pool := range pools {
		st, err := s.Status(ctx, pool.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
