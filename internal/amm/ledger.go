package amm

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"rugpullsim/internal/curve"
	"rugpullsim/internal/model"
	"rugpullsim/internal/storage"
)

// Ledger reads LP positions. Writes go through Registry.commit so that a
// position never changes without its pool's supply.
type Ledger struct {
	store storage.Store
}

func NewLedger(store storage.Store) *Ledger {
	return &Ledger{store: store}
}

// Get returns the position of user in pool id.
func (l *Ledger) Get(ctx context.Context, user solana.PublicKey, id model.PoolID) (model.UserPosition, error) {
	pos, err := l.store.GetPosition(ctx, user, id)
	if err != nil {
		return model.UserPosition{}, storeError("load position", err)
	}
	return pos, nil
}

// getOrNew returns the stored position or a zero one for a first deposit.
func (l *Ledger) getOrNew(ctx context.Context, user solana.PublicKey, id model.PoolID) (model.UserPosition, error) {
	pos, err := l.store.GetPosition(ctx, user, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.UserPosition{User: user, PoolID: id}, nil
	}
	if err != nil {
		return model.UserPosition{}, storeError("load position", err)
	}
	return pos, nil
}

func (l *Ledger) List(ctx context.Context, id model.PoolID) ([]model.UserPosition, error) {
	positions, err := l.store.ListPositions(ctx, id)
	if err != nil {
		return nil, storeError("list positions", err)
	}
	return positions, nil
}

// SupplyOf sums the LP tokens of every position in pool id.
func (l *Ledger) SupplyOf(ctx context.Context, id model.PoolID) (uint64, error) {
	positions, err := l.List(ctx, id)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, pos := range positions {
		if total, err = curve.Add(total, pos.LPTokens); err != nil {
			return 0, fmt.Errorf("sum pool %d positions: %w", id, err)
		}
	}
	return total, nil
}
