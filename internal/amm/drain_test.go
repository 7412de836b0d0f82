package amm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainRequiresAuthority(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyPaired)
	pool := seededPool(t, f, 0, 700, 300)
	mallory := newKey()

	_, _, err := f.svc.Drain(ctx, 0, mallory)
	require.ErrorIs(t, err, ErrUnauthorized)

	a, b := f.vaults(t, pool)
	assert.Equal(t, uint64(700), a)
	assert.Equal(t, uint64(300), b)
	stored, err := f.store.GetPool(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), stored.TotalLPSupply)
	assert.Zero(t, f.balance(t, mallory, f.mintA))

	_, _, err = f.svc.Drain(ctx, 1, f.authority)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDrainLeavesSharesUnbacked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyPaired)
	pool := seededPool(t, f, 2, 700, 300)

	a, b, err := f.svc.Drain(ctx, 2, f.authority)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), a)
	assert.Equal(t, uint64(300), b)

	va, vb := f.vaults(t, pool)
	assert.Zero(t, va)
	assert.Zero(t, vb)
	stored, err := f.store.GetPool(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), stored.TotalLPSupply)
	f.requireSupplyConsistent(t, 2)

	// Draining an empty pool moves nothing.
	a, b, err = f.svc.Drain(ctx, 2, f.authority)
	require.NoError(t, err)
	assert.Zero(t, a)
	assert.Zero(t, b)

	trader := newKey()
	f.fund(t, trader, f.mintA, 10)
	_, err = f.svc.Swap(ctx, SwapRequest{PoolID: 2, User: trader, Direction: 0, AmountIn: 10})
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	f.fund(t, trader, f.mintB, 10)
	_, err = f.svc.Provide(ctx, ProvideRequest{PoolID: 2, User: trader, AmountA: 10, AmountB: 10})
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	statuses, err := f.svc.Statuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Unbacked)
	assert.Equal(t, "0.000000000000000000", statuses[0].PriceA)
}

func TestUnbacked(t *testing.T) {
	assert.True(t, Unbacked(10, 0, 0))
	assert.False(t, Unbacked(0, 0, 0))
	assert.False(t, Unbacked(10, 1, 0))
}
