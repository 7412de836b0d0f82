package curve

import (
	"cosmossdk.io/math"
	"lukechampine.com/uint128"
)

// SwapResult describes a constant-product trade against a pair of reserves.
type SwapResult struct {
	AmountIn      uint64
	AmountOut     uint64
	ReserveIn     uint64
	ReserveOut    uint64
	NewReserveIn  uint64
	NewReserveOut uint64
}

// KBefore returns reserveIn*reserveOut before the trade.
func (r SwapResult) KBefore() uint128.Uint128 {
	return Product(r.ReserveIn, r.ReserveOut)
}

// KAfter returns the reserve product after the trade.
func (r SwapResult) KAfter() uint128.Uint128 {
	return Product(r.NewReserveIn, r.NewReserveOut)
}

// SwapExactIn prices amountIn with x*y=k and no fee:
//
//	newIn  = reserveIn + amountIn
//	newOut = floor(reserveIn*reserveOut / newIn)
//	out    = reserveOut - newOut
//
// Flooring newOut keeps the remainder in the pool, so k never decreases.
// A zero amountIn is a no-op.
func SwapExactIn(reserveIn, reserveOut, amountIn uint64) (SwapResult, error) {
	res := SwapResult{
		AmountIn:      amountIn,
		ReserveIn:     reserveIn,
		ReserveOut:    reserveOut,
		NewReserveIn:  reserveIn,
		NewReserveOut: reserveOut,
	}
	if amountIn == 0 {
		return res, nil
	}
	if reserveIn == 0 || reserveOut == 0 {
		return SwapResult{}, ErrInsufficientLiquidity
	}

	newIn, err := Add(reserveIn, amountIn)
	if err != nil {
		return SwapResult{}, err
	}
	newOut, err := MulDiv(reserveIn, reserveOut, newIn)
	if err != nil {
		return SwapResult{}, err
	}
	out, err := Sub(reserveOut, newOut)
	if err != nil {
		return SwapResult{}, err
	}

	res.AmountOut = out
	res.NewReserveIn = newIn
	res.NewReserveOut = newOut
	return res, nil
}

// SpotPrice returns how many units of quote one unit of base is worth at the
// current reserves. Empty reserves price at zero.
func SpotPrice(reserveBase, reserveQuote uint64) math.LegacyDec {
	if reserveBase == 0 || reserveQuote == 0 {
		return math.LegacyZeroDec()
	}
	return math.LegacyNewDecFromInt(math.NewIntFromUint64(reserveQuote)).
		QuoInt(math.NewIntFromUint64(reserveBase))
}

// PriceImpact returns 1 - executionPrice/spotPrice for a trade, i.e. the
// fraction of value lost to moving along the curve.
func PriceImpact(res SwapResult) math.LegacyDec {
	if res.AmountIn == 0 || res.ReserveIn == 0 || res.ReserveOut == 0 {
		return math.LegacyZeroDec()
	}
	num := math.NewIntFromUint64(res.AmountOut).Mul(math.NewIntFromUint64(res.ReserveIn))
	den := math.NewIntFromUint64(res.AmountIn).Mul(math.NewIntFromUint64(res.ReserveOut))
	ratio := math.LegacyNewDecFromInt(num).QuoInt(den)
	return math.LegacyOneDec().Sub(ratio)
}
