package amm

import (
	"context"
	"errors"
	"fmt"

	"rugpullsim/internal/curve"
	"rugpullsim/internal/storage"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadyInitialized    = errors.New("pool already initialized")
	ErrInvalidPoolID         = errors.New("invalid pool id")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInsufficientLiquidity = curve.ErrInsufficientLiquidity
	ErrInsufficientLPTokens  = errors.New("insufficient lp tokens")
	ErrArithmeticOverflow    = curve.ErrOverflow
	ErrArithmeticUnderflow   = curve.ErrUnderflow
	ErrTransferFailed        = errors.New("transfer failed")

	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidMint            = errors.New("invalid mint")
	ErrSlippageExceeded       = errors.New("slippage exceeded")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrStorage                = errors.New("storage failure")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, "not_found"},
	{ErrAlreadyInitialized, "already_initialized"},
	{ErrInvalidPoolID, "invalid_pool_id"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInsufficientLiquidity, "insufficient_liquidity"},
	{ErrInsufficientLPTokens, "insufficient_lp_tokens"},
	{ErrArithmeticOverflow, "arithmetic_overflow"},
	{ErrArithmeticUnderflow, "arithmetic_underflow"},
	{ErrTransferFailed, "transfer_failed"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidMint, "invalid_mint"},
	{ErrSlippageExceeded, "slippage_exceeded"},
	{ErrConcurrentModification, "concurrent_modification"},
	{ErrStorage, "storage"},
	{context.Canceled, "canceled"},
	{context.DeadlineExceeded, "deadline_exceeded"},
}

// Kind returns a stable snake_case code for err: "" for nil, "unknown" when
// err carries none of this package's sentinels.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "unknown"
}

// storeError translates a storage failure into the matching sentinel. The
// cause is kept as text so the result wraps exactly one sentinel.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w: %v", op, ErrNotFound, err)
	case errors.Is(err, storage.ErrAlreadyExists):
		return fmt.Errorf("%s: %w: %v", op, ErrAlreadyInitialized, err)
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%s: %w: %v", op, ErrConcurrentModification, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrStorage, err)
	}
}

// transferError wraps a custody failure.
func transferError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrTransferFailed, err)
}
