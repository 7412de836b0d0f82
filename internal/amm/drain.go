package amm

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"rugpullsim/internal/custody"
	"rugpullsim/internal/model"
)

// Drain moves the whole balance of both vaults to the pool authority. Only
// the authority may call it. LP supply and positions are left as they are, so
// outstanding shares stop being backed by anything.
func (s *Service) Drain(ctx context.Context, id model.PoolID, caller solana.PublicKey) (amountA, amountB uint64, err error) {
	start := s.now()
	defer func() {
		s.finish("drain", start, err,
			zap.Uint8("pool_id", uint8(id)),
			zap.Stringer("caller", caller),
			zap.Uint64("amount_a", amountA),
			zap.Uint64("amount_b", amountB),
		)
	}()

	unlock := s.locks.lock(id)
	defer unlock()

	pool, err := s.registry.Get(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	if caller != pool.Authority {
		return 0, 0, fmt.Errorf("drain pool %d by %s: %w", id, caller, ErrUnauthorized)
	}

	reserveA, reserveB, err := s.reserves(ctx, pool)
	if err != nil {
		return 0, 0, err
	}
	authA, authB, err := userAccounts(pool.Authority, pool)
	if err != nil {
		return 0, 0, err
	}
	if _, err := custody.Execute(ctx, s.custody, []custody.Move{
		{From: pool.VaultA, To: authA, Amount: reserveA},
		{From: pool.VaultB, To: authB, Amount: reserveB},
	}); err != nil {
		return 0, 0, transferError(fmt.Sprintf("drain pool %d", id), err)
	}

	s.record(model.Event{
		Type:     model.EventDrain,
		PoolID:   id,
		User:     caller.String(),
		AmountA:  reserveA,
		AmountB:  reserveB,
		LPSupply: pool.TotalLPSupply,
	})
	s.metrics.SetPool(id, 0, 0, pool.TotalLPSupply)
	s.metrics.SetUnbacked(id, pool.TotalLPSupply > 0)
	if pool.TotalLPSupply > 0 {
		s.logger.Warn("pool drained with outstanding lp shares",
			zap.Uint8("pool_id", uint8(id)),
			zap.Uint64("lp_supply", pool.TotalLPSupply),
		)
	}
	return reserveA, reserveB, nil
}
