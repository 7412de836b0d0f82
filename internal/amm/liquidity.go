package amm

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"rugpullsim/internal/curve"
	"rugpullsim/internal/custody"
	"rugpullsim/internal/model"
)

// ProvideRequest deposits into a pool. Under PolicyPaired both amounts are
// required; under PolicySingle exactly one of them is non-zero.
type ProvideRequest struct {
	PoolID    model.PoolID
	User      solana.PublicKey
	AmountA   uint64
	AmountB   uint64
	MinShares uint64
}

// RemoveRequest burns LPAmount shares for a proportional payout.
type RemoveRequest struct {
	PoolID     model.PoolID
	User       solana.PublicKey
	LPAmount   uint64
	MinAmountA uint64
	MinAmountB uint64
}

// shares computes the LP shares minted for a deposit at the given reserves.
// seeded is set when a single-sided deposit fills an empty side and mints
// nothing by design.
func (s *Service) shares(req ProvideRequest, supply, reserveA, reserveB uint64) (minted uint64, seeded bool, err error) {
	switch s.policy {
	case PolicySingle:
		switch {
		case req.AmountA > 0 && req.AmountB == 0:
			return curve.MintSingleShares(req.AmountA, supply, reserveA, reserveB)
		case req.AmountB > 0 && req.AmountA == 0:
			return curve.MintSingleShares(req.AmountB, supply, reserveB, reserveA)
		default:
			return 0, false, fmt.Errorf("single-sided deposit needs exactly one amount (a=%d b=%d): %w", req.AmountA, req.AmountB, ErrInvalidAmount)
		}
	default:
		if req.AmountA == 0 || req.AmountB == 0 {
			return 0, false, fmt.Errorf("paired deposit needs both amounts (a=%d b=%d): %w", req.AmountA, req.AmountB, ErrInvalidAmount)
		}
		minted, err = curve.MintPairedShares(req.AmountA, req.AmountB, supply, reserveA, reserveB)
		return minted, false, err
	}
}

// Provide moves the deposit into the vaults and mints LP shares to the user.
// The pool supply and the position change together or not at all.
func (s *Service) Provide(ctx context.Context, req ProvideRequest) (minted uint64, err error) {
	start := s.now()
	defer func() {
		s.finish("add_liquidity", start, err,
			zap.Uint8("pool_id", uint8(req.PoolID)),
			zap.Stringer("user", req.User),
			zap.Uint64("amount_a", req.AmountA),
			zap.Uint64("amount_b", req.AmountB),
			zap.Uint64("lp_minted", minted),
		)
	}()

	unlock := s.locks.lock(req.PoolID)
	defer unlock()

	pool, err := s.registry.Get(ctx, req.PoolID)
	if err != nil {
		return 0, err
	}
	position, err := s.ledger.getOrNew(ctx, req.User, req.PoolID)
	if err != nil {
		return 0, err
	}
	reserveA, reserveB, err := s.reserves(ctx, pool)
	if err != nil {
		return 0, err
	}

	minted, seeded, err := s.shares(req, pool.TotalLPSupply, reserveA, reserveB)
	if err != nil {
		return 0, fmt.Errorf("provide pool %d: %w", req.PoolID, err)
	}
	if minted == 0 && !seeded {
		return 0, fmt.Errorf("provide pool %d: deposit mints no shares: %w", req.PoolID, ErrInvalidAmount)
	}
	if minted < req.MinShares {
		return 0, fmt.Errorf("provide pool %d: minted %d below minimum %d: %w", req.PoolID, minted, req.MinShares, ErrSlippageExceeded)
	}

	supply, err := curve.Add(pool.TotalLPSupply, minted)
	if err != nil {
		return 0, fmt.Errorf("provide pool %d supply: %w", req.PoolID, err)
	}
	held, err := curve.Add(position.LPTokens, minted)
	if err != nil {
		return 0, fmt.Errorf("provide pool %d position: %w", req.PoolID, err)
	}
	newA, err := curve.Add(reserveA, req.AmountA)
	if err != nil {
		return 0, fmt.Errorf("provide pool %d reserve a: %w", req.PoolID, err)
	}
	newB, err := curve.Add(reserveB, req.AmountB)
	if err != nil {
		return 0, fmt.Errorf("provide pool %d reserve b: %w", req.PoolID, err)
	}

	userA, userB, err := userAccounts(req.User, pool)
	if err != nil {
		return 0, err
	}
	receipt, err := custody.Execute(ctx, s.custody, []custody.Move{
		{From: userA, To: pool.VaultA, Amount: req.AmountA},
		{From: userB, To: pool.VaultB, Amount: req.AmountB},
	})
	if err != nil {
		return 0, transferError(fmt.Sprintf("provide pool %d", req.PoolID), err)
	}

	pool.TotalLPSupply = supply
	position.LPTokens = held
	if _, err := s.commitOrRevert(ctx, receipt, pool, position); err != nil {
		return 0, err
	}

	s.record(model.Event{
		Type:     model.EventAddLiquidity,
		PoolID:   req.PoolID,
		User:     req.User.String(),
		AmountA:  req.AmountA,
		AmountB:  req.AmountB,
		LPMinted: minted,
		LPSupply: supply,
		ReserveA: newA,
		ReserveB: newB,
	})
	s.metrics.SetPool(req.PoolID, newA, newB, supply)
	return minted, nil
}

// Remove burns req.LPAmount shares and pays out the matching fraction of
// each live reserve. Burning zero shares is a no-op.
func (s *Service) Remove(ctx context.Context, req RemoveRequest) (amountA, amountB uint64, err error) {
	start := s.now()
	defer func() {
		s.finish("remove_liquidity", start, err,
			zap.Uint8("pool_id", uint8(req.PoolID)),
			zap.Stringer("user", req.User),
			zap.Uint64("lp_burned", req.LPAmount),
			zap.Uint64("amount_a", amountA),
			zap.Uint64("amount_b", amountB),
		)
	}()

	unlock := s.locks.lock(req.PoolID)
	defer unlock()

	pool, err := s.registry.Get(ctx, req.PoolID)
	if err != nil {
		return 0, 0, err
	}
	position, err := s.ledger.Get(ctx, req.User, req.PoolID)
	if err != nil {
		return 0, 0, err
	}
	if req.LPAmount > position.LPTokens {
		return 0, 0, fmt.Errorf("remove pool %d: burn %d of %d held: %w", req.PoolID, req.LPAmount, position.LPTokens, ErrInsufficientLPTokens)
	}
	if req.LPAmount == 0 {
		return 0, 0, nil
	}

	reserveA, reserveB, err := s.reserves(ctx, pool)
	if err != nil {
		return 0, 0, err
	}
	outA, err := curve.BurnShares(req.LPAmount, pool.TotalLPSupply, reserveA)
	if err != nil {
		return 0, 0, fmt.Errorf("remove pool %d payout a: %w", req.PoolID, err)
	}
	outB, err := curve.BurnShares(req.LPAmount, pool.TotalLPSupply, reserveB)
	if err != nil {
		return 0, 0, fmt.Errorf("remove pool %d payout b: %w", req.PoolID, err)
	}
	if outA < req.MinAmountA || outB < req.MinAmountB {
		return 0, 0, fmt.Errorf("remove pool %d: payout %d/%d below minimum %d/%d: %w",
			req.PoolID, outA, outB, req.MinAmountA, req.MinAmountB, ErrSlippageExceeded)
	}

	supply, err := curve.Sub(pool.TotalLPSupply, req.LPAmount)
	if err != nil {
		return 0, 0, fmt.Errorf("remove pool %d supply: %w", req.PoolID, err)
	}
	held, err := curve.Sub(position.LPTokens, req.LPAmount)
	if err != nil {
		return 0, 0, fmt.Errorf("remove pool %d position: %w", req.PoolID, err)
	}

	userA, userB, err := userAccounts(req.User, pool)
	if err != nil {
		return 0, 0, err
	}
	receipt, err := custody.Execute(ctx, s.custody, []custody.Move{
		{From: pool.VaultA, To: userA, Amount: outA},
		{From: pool.VaultB, To: userB, Amount: outB},
	})
	if err != nil {
		return 0, 0, transferError(fmt.Sprintf("remove pool %d", req.PoolID), err)
	}

	pool.TotalLPSupply = supply
	position.LPTokens = held
	if _, err := s.commitOrRevert(ctx, receipt, pool, position); err != nil {
		return 0, 0, err
	}

	s.record(model.Event{
		Type:     model.EventRemoveLiquidity,
		PoolID:   req.PoolID,
		User:     req.User.String(),
		AmountA:  outA,
		AmountB:  outB,
		LPBurned: req.LPAmount,
		LPSupply: supply,
		ReserveA: reserveA - outA,
		ReserveB: reserveB - outB,
	})
	s.metrics.SetPool(req.PoolID, reserveA-outA, reserveB-outB, supply)
	return outA, outB, nil
}
