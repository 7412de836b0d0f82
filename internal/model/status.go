package model

// PoolStatus is a read model combining a pool record with its live vault
// balances. Prices are decimal strings.
type PoolStatus struct {
	Pool     PoolState `json:"pool"`
	ReserveA uint64    `json:"reserve_a"`
	ReserveB uint64    `json:"reserve_b"`
	PriceA   string    `json:"price_a"`
	PriceB   string    `json:"price_b"`
	// Unbacked is set when both vaults are empty while LP shares are still
	// outstanding, which is what a drain leaves behind.
	Unbacked bool `json:"unbacked"`
}
