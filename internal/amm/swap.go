package amm

import (
	"context"
	"fmt"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"rugpullsim/internal/curve"
	"rugpullsim/internal/custody"
	"rugpullsim/internal/model"
)

// SwapRequest sells AmountIn of the Direction's input asset. MinAmountOut of
// zero disables the slippage bound.
type SwapRequest struct {
	PoolID       model.PoolID
	User         solana.PublicKey
	Direction    model.Direction
	AmountIn     uint64
	MinAmountOut uint64
}

// Quote previews a swap against the current reserves.
type Quote struct {
	PoolID         model.PoolID    `json:"pool_id"`
	Direction      model.Direction `json:"direction"`
	AmountIn       uint64          `json:"amount_in"`
	AmountOut      uint64          `json:"amount_out"`
	PriceImpact    math.LegacyDec  `json:"price_impact"`
	PriceImpactBps int64           `json:"price_impact_bps"`
	NewReserveA    uint64          `json:"new_reserve_a"`
	NewReserveB    uint64          `json:"new_reserve_b"`
}

// orient returns (reserveIn, reserveOut) for dir.
func orient(dir model.Direction, a, b uint64) (uint64, uint64) {
	if dir == model.BToA {
		return b, a
	}
	return a, b
}

func (s *Service) quote(ctx context.Context, pool model.PoolState, dir model.Direction, amountIn uint64) (curve.SwapResult, uint64, uint64, error) {
	a, b, err := s.reserves(ctx, pool)
	if err != nil {
		return curve.SwapResult{}, 0, 0, err
	}
	rIn, rOut := orient(dir, a, b)
	res, err := curve.SwapExactIn(rIn, rOut, amountIn)
	if err != nil {
		return curve.SwapResult{}, 0, 0, fmt.Errorf("swap pool %d %s: %w", pool.ID, dir, err)
	}
	newA, newB := orient(dir, res.NewReserveIn, res.NewReserveOut)
	return res, newA, newB, nil
}

// Quote prices a swap without moving anything.
func (s *Service) Quote(ctx context.Context, id model.PoolID, dir model.Direction, amountIn uint64) (Quote, error) {
	if !dir.Valid() {
		return Quote{}, fmt.Errorf("direction %s: %w", dir, ErrInvalidAmount)
	}
	unlock := s.locks.lock(id)
	defer unlock()

	pool, err := s.registry.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}

	res, newA, newB, err := s.quote(ctx, pool, dir, amountIn)
	if err != nil {
		return Quote{}, err
	}
	impact := curve.PriceImpact(res)
	return Quote{
		PoolID:         id,
		Direction:      dir,
		AmountIn:       res.AmountIn,
		AmountOut:      res.AmountOut,
		PriceImpact:    impact,
		PriceImpactBps: impact.MulInt64(10_000).TruncateInt64(),
		NewReserveA:    newA,
		NewReserveB:    newB,
	}, nil
}

// Swap sells req.AmountIn into the pool and pays the curve output to the
// user. Both legs move as one custody unit; a zero input is a no-op.
func (s *Service) Swap(ctx context.Context, req SwapRequest) (amountOut uint64, err error) {
	start := s.now()
	defer func() {
		s.finish("swap", start, err,
			zap.Uint8("pool_id", uint8(req.PoolID)),
			zap.Stringer("user", req.User),
			zap.Stringer("direction", req.Direction),
			zap.Uint64("amount_in", req.AmountIn),
			zap.Uint64("amount_out", amountOut),
		)
	}()

	if !req.Direction.Valid() {
		return 0, fmt.Errorf("direction %s: %w", req.Direction, ErrInvalidAmount)
	}
	unlock := s.locks.lock(req.PoolID)
	defer unlock()

	pool, err := s.registry.Get(ctx, req.PoolID)
	if err != nil {
		return 0, err
	}

	res, newA, newB, err := s.quote(ctx, pool, req.Direction, req.AmountIn)
	if err != nil {
		return 0, err
	}
	if res.AmountIn == 0 {
		return 0, nil
	}
	if res.AmountOut < req.MinAmountOut {
		return 0, fmt.Errorf("swap pool %d: out %d below minimum %d: %w", req.PoolID, res.AmountOut, req.MinAmountOut, ErrSlippageExceeded)
	}

	vaultIn, mintIn, vaultOut, mintOut := pool.Side(req.Direction)
	userIn, err := custody.UserAccount(req.User, mintIn)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	userOut, err := custody.UserAccount(req.User, mintOut)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}

	if _, err := custody.Execute(ctx, s.custody, []custody.Move{
		{From: userIn, To: vaultIn, Amount: res.AmountIn},
		{From: vaultOut, To: userOut, Amount: res.AmountOut},
	}); err != nil {
		return 0, transferError(fmt.Sprintf("swap pool %d", req.PoolID), err)
	}

	s.record(model.Event{
		Type:      model.EventSwap,
		PoolID:    req.PoolID,
		User:      req.User.String(),
		Direction: req.Direction.String(),
		AmountIn:  res.AmountIn,
		AmountOut: res.AmountOut,
		LPSupply:  pool.TotalLPSupply,
		ReserveA:  newA,
		ReserveB:  newB,
	})
	s.metrics.AddSwap(req.PoolID, req.Direction, res.AmountIn, res.AmountOut)
	s.metrics.SetPool(req.PoolID, newA, newB, pool.TotalLPSupply)
	return res.AmountOut, nil
}
