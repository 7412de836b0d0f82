package model

import "time"

// PoolWindowMetrics stores aggregated journal activity for a pool window.
// Amounts are decimal strings since window sums can exceed 64 bits.
type PoolWindowMetrics struct {
	PoolID          PoolID    `json:"pool_id"`
	WindowSizeSecs  int64     `json:"window_size_seconds"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	SwapCount       uint64    `json:"swap_count"`
	VolumeA         string    `json:"volume_a"`
	VolumeB         string    `json:"volume_b"`
	DepositedA      string    `json:"deposited_a"`
	DepositedB      string    `json:"deposited_b"`
	WithdrawnA      string    `json:"withdrawn_a"`
	WithdrawnB      string    `json:"withdrawn_b"`
	DrainedA        string    `json:"drained_a"`
	DrainedB        string    `json:"drained_b"`
	LPMinted        string    `json:"lp_minted"`
	LPBurned        string    `json:"lp_burned"`
	ClosingReserveA string    `json:"closing_reserve_a"`
	ClosingReserveB string    `json:"closing_reserve_b"`
	ClosingLPSupply string    `json:"closing_lp_supply"`
	Drained         bool      `json:"drained"`
}
