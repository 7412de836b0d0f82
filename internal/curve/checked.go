// Package curve holds the constant-product pricing and LP share math. All
// functions are pure; reserves come from the caller.
package curve

import (
	"errors"
	"fmt"

	gmath "github.com/ethereum/go-ethereum/common/math"
	"lukechampine.com/uint128"
)

var (
	// ErrOverflow is returned when a result does not fit in 64 bits.
	ErrOverflow = errors.New("arithmetic overflow")
	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("arithmetic underflow")
	// ErrInsufficientLiquidity is returned when a reserve needed for pricing is zero.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum, overflow := gmath.SafeAdd(a, b)
	if overflow {
		return 0, fmt.Errorf("%d + %d: %w", a, b, ErrOverflow)
	}
	return sum, nil
}

// Sub returns a-b or ErrUnderflow.
func Sub(a, b uint64) (uint64, error) {
	diff, underflow := gmath.SafeSub(a, b)
	if underflow {
		return 0, fmt.Errorf("%d - %d: %w", a, b, ErrUnderflow)
	}
	return diff, nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b uint64) (uint64, error) {
	product, overflow := gmath.SafeMul(a, b)
	if overflow {
		return 0, fmt.Errorf("%d * %d: %w", a, b, ErrOverflow)
	}
	return product, nil
}

// Product returns a*b as a 128-bit value. It cannot overflow.
func Product(a, b uint64) uint128.Uint128 {
	return uint128.From64(a).Mul64(b)
}

// MulDiv returns floor(a*b/d) using a 128-bit intermediate product.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, fmt.Errorf("%d * %d / 0: %w", a, b, ErrInsufficientLiquidity)
	}
	q := Product(a, b).Div64(d)
	if q.Hi != 0 {
		return 0, fmt.Errorf("%d * %d / %d: %w", a, b, d, ErrOverflow)
	}
	return q.Lo, nil
}
