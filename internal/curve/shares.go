package curve

// MintShares returns the LP shares minted for depositing amount into a side
// whose live reserve is reserve, with supply shares outstanding. The first
// deposit into an empty pool mints amount one-to-one; later deposits mint
// amount*supply/reserve rounded down so existing holders are never diluted.
func MintShares(amount, supply, reserve uint64) (uint64, error) {
	if supply == 0 {
		return amount, nil
	}
	if reserve == 0 {
		return 0, ErrInsufficientLiquidity
	}
	return MulDiv(amount, supply, reserve)
}

// MintSingleShares mints for a one-sided deposit into the side holding
// reserve, where other is the opposite reserve. Depositing into an empty side
// while the other side still backs the supply seeds that side: it mints
// nothing and seeded is true. With both sides empty and shares outstanding
// the pool is unbacked and the deposit is rejected.
func MintSingleShares(amount, supply, reserve, other uint64) (shares uint64, seeded bool, err error) {
	if supply > 0 && reserve == 0 {
		if other == 0 {
			return 0, false, ErrInsufficientLiquidity
		}
		return 0, true, nil
	}
	shares, err = MintShares(amount, supply, reserve)
	return shares, false, err
}

// MintPairedShares mints for a two-sided deposit. The first deposit mints the
// A-side amount; later deposits mint the smaller of the two proportional
// amounts, so an unbalanced deposit donates its excess to the pool.
func MintPairedShares(amountA, amountB, supply, reserveA, reserveB uint64) (uint64, error) {
	if supply == 0 {
		return amountA, nil
	}
	sharesA, err := MintShares(amountA, supply, reserveA)
	if err != nil {
		return 0, err
	}
	sharesB, err := MintShares(amountB, supply, reserveB)
	if err != nil {
		return 0, err
	}
	return min(sharesA, sharesB), nil
}

// BurnShares returns the payout of one reserve for burning lpAmount shares
// out of supply: lpAmount*reserve/supply, rounded down.
func BurnShares(lpAmount, supply, reserve uint64) (uint64, error) {
	if lpAmount > supply {
		return 0, ErrUnderflow
	}
	if lpAmount == 0 {
		return 0, nil
	}
	return MulDiv(lpAmount, reserve, supply)
}
