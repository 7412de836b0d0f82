package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

// PoolID is the stable key of a pool. Valid ids are bounded by configuration.
type PoolID uint8

// PoolState is the durable record of one pool. Vaults, mints and authority
// never change after creation; TotalLPSupply is only moved by liquidity
// operations.
type PoolState struct {
	ID            PoolID           `json:"id"`
	Address       solana.PublicKey `json:"address"`
	VaultA        solana.PublicKey `json:"vault_a"`
	VaultB        solana.PublicKey `json:"vault_b"`
	MintA         solana.PublicKey `json:"mint_a"`
	MintB         solana.PublicKey `json:"mint_b"`
	Authority     solana.PublicKey `json:"authority"`
	TotalLPSupply uint64           `json:"total_lp_supply"`
	Version       uint64           `json:"version"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Side returns the vault and mint on the input and output side of a trade.
func (p PoolState) Side(dir Direction) (vaultIn, mintIn, vaultOut, mintOut solana.PublicKey) {
	if dir == BToA {
		return p.VaultB, p.MintB, p.VaultA, p.MintA
	}
	return p.VaultA, p.MintA, p.VaultB, p.MintB
}

// Direction is the side a swap sells into the pool.
type Direction uint8

const (
	AToB Direction = iota
	BToA
)

func (d Direction) String() string {
	switch d {
	case AToB:
		return "a_to_b"
	case BToA:
		return "b_to_a"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// Valid reports whether d is one of the two trade directions.
func (d Direction) Valid() bool {
	return d == AToB || d == BToA
}

// ParseDirection accepts "a_to_b"/"b_to_a" and the short forms "ab"/"ba".
func ParseDirection(input string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "a_to_b", "ab", "a2b":
		return AToB, nil
	case "b_to_a", "ba", "b2a":
		return BToA, nil
	default:
		return 0, fmt.Errorf("invalid direction %q", input)
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(data []byte) error {
	parsed, err := ParseDirection(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
