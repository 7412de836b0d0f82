package custody

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"rugpullsim/internal/model"
)

var (
	poolSeed  = []byte("pool")
	vaultSeed = []byte("vault")
)

// DerivePoolAddress returns the program-derived address of pool id. The pool
// address owns both vaults.
func DerivePoolAddress(program solana.PublicKey, id model.PoolID) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{poolSeed, {byte(id)}}, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive pool %d: %w", id, err)
	}
	return addr, nil
}

// DeriveVault returns the vault holding mint for the pool at poolAddr.
func DeriveVault(program, poolAddr, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{vaultSeed, poolAddr[:], mint[:]}, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive vault %s: %w", mint, err)
	}
	return addr, nil
}

// UserAccount returns owner's token account for mint.
func UserAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token account %s/%s: %w", owner, mint, err)
	}
	return addr, nil
}
