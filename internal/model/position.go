package model

import "github.com/gagliardetto/solana-go"

// UserPosition holds one user's LP shares in one pool. Positions are created
// on first provision and kept at zero balance.
type UserPosition struct {
	User     solana.PublicKey `json:"user"`
	PoolID   PoolID           `json:"pool_id"`
	LPTokens uint64           `json:"lp_tokens"`
}
