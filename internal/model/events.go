package model

import "time"

// EventType names the operation an Event records.
type EventType string

const (
	EventCreatePool      EventType = "create_pool"
	EventSwap            EventType = "swap"
	EventAddLiquidity    EventType = "add_liquidity"
	EventRemoveLiquidity EventType = "remove_liquidity"
	EventDrain           EventType = "drain"
)

// Event is the journal record of a committed operation. Amounts are raw
// units; ReserveA/ReserveB and LPSupply describe the pool after the operation.
type Event struct {
	Type      EventType `json:"type"`
	PoolID    PoolID    `json:"pool_id"`
	User      string    `json:"user"`
	Direction string    `json:"direction,omitempty"`
	AmountIn  uint64    `json:"amount_in,omitempty"`
	AmountOut uint64    `json:"amount_out,omitempty"`
	AmountA   uint64    `json:"amount_a,omitempty"`
	AmountB   uint64    `json:"amount_b,omitempty"`
	LPMinted  uint64    `json:"lp_minted,omitempty"`
	LPBurned  uint64    `json:"lp_burned,omitempty"`
	LPSupply  uint64    `json:"lp_supply"`
	ReserveA  uint64    `json:"reserve_a"`
	ReserveB  uint64    `json:"reserve_b"`
	Timestamp time.Time `json:"timestamp"`
}
