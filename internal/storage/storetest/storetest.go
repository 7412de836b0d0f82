// Package storetest holds the behaviour every storage.Store must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rugpullsim/internal/model"
	"rugpullsim/internal/storage"
)

// Run exercises a store built fresh by open for every subtest.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Run("pool lifecycle", func(t *testing.T) { testPoolLifecycle(t, open(t)) })
	t.Run("commit liquidity", func(t *testing.T) { testCommitLiquidity(t, open(t)) })
	t.Run("version conflict", func(t *testing.T) { testVersionConflict(t, open(t)) })
	t.Run("positions are per pool", func(t *testing.T) { testPositionsPerPool(t, open(t)) })
}

func samplePool(id model.PoolID) model.PoolState {
	return model.PoolState{
		ID:        id,
		Address:   solana.NewWallet().PublicKey(),
		VaultA:    solana.NewWallet().PublicKey(),
		VaultB:    solana.NewWallet().PublicKey(),
		MintA:     solana.NewWallet().PublicKey(),
		MintB:     solana.NewWallet().PublicKey(),
		Authority: solana.NewWallet().PublicKey(),
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func assertPoolEqual(t *testing.T, want, got model.PoolState) {
	t.Helper()
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", want.CreatedAt, got.CreatedAt)
	want.CreatedAt, got.CreatedAt = time.Time{}, time.Time{}
	assert.Equal(t, want, got)
}

func testPoolLifecycle(t *testing.T, s storage.Store) {
	ctx := context.Background()
	defer s.Close()

	_, err := s.GetPool(ctx, 1)
	require.ErrorIs(t, err, storage.ErrNotFound)

	pool := samplePool(1)
	require.NoError(t, s.InsertPool(ctx, pool))
	require.ErrorIs(t, s.InsertPool(ctx, samplePool(1)), storage.ErrAlreadyExists)

	got, err := s.GetPool(ctx, 1)
	require.NoError(t, err)
	assertPoolEqual(t, pool, got)

	require.NoError(t, s.InsertPool(ctx, samplePool(0)))
	pools, err := s.ListPools(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 2)
	assert.Equal(t, model.PoolID(0), pools[0].ID)
	assert.Equal(t, model.PoolID(1), pools[1].ID)
}

func testCommitLiquidity(t *testing.T, s storage.Store) {
	ctx := context.Background()
	defer s.Close()

	pool := samplePool(2)
	require.NoError(t, s.InsertPool(ctx, pool))

	user := solana.NewWallet().PublicKey()
	_, err := s.GetPosition(ctx, user, 2)
	require.ErrorIs(t, err, storage.ErrNotFound)

	updated := pool
	updated.TotalLPSupply = 1000
	updated.Version = 1
	pos := model.UserPosition{User: user, PoolID: 2, LPTokens: 1000}
	require.NoError(t, s.CommitLiquidity(ctx, updated, 0, pos))

	got, err := s.GetPool(ctx, 2)
	require.NoError(t, err)
	assertPoolEqual(t, updated, got)

	gotPos, err := s.GetPosition(ctx, user, 2)
	require.NoError(t, err)
	assert.Equal(t, pos, gotPos)

	mismatched := model.UserPosition{User: user, PoolID: 1, LPTokens: 1}
	require.Error(t, s.CommitLiquidity(ctx, updated, 1, mismatched))
}

func testVersionConflict(t *testing.T, s storage.Store) {
	ctx := context.Background()
	defer s.Close()

	pool := samplePool(0)
	require.NoError(t, s.InsertPool(ctx, pool))

	user := solana.NewWallet().PublicKey()
	first := pool
	first.TotalLPSupply = 10
	first.Version = 1
	require.NoError(t, s.CommitLiquidity(ctx, first, 0, model.UserPosition{User: user, PoolID: 0, LPTokens: 10}))

	stale := pool
	stale.TotalLPSupply = 99
	stale.Version = 1
	err := s.CommitLiquidity(ctx, stale, 0, model.UserPosition{User: user, PoolID: 0, LPTokens: 99})
	require.ErrorIs(t, err, storage.ErrConflict)

	got, err := s.GetPool(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.TotalLPSupply)
	pos, err := s.GetPosition(ctx, user, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), pos.LPTokens)
}

func testPositionsPerPool(t *testing.T, s storage.Store) {
	ctx := context.Background()
	defer s.Close()

	p0, p1 := samplePool(0), samplePool(1)
	require.NoError(t, s.InsertPool(ctx, p0))
	require.NoError(t, s.InsertPool(ctx, p1))

	alice, bob := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	p0.TotalLPSupply, p0.Version = 5, 1
	require.NoError(t, s.CommitLiquidity(ctx, p0, 0, model.UserPosition{User: alice, PoolID: 0, LPTokens: 5}))
	p0.TotalLPSupply, p0.Version = 12, 2
	require.NoError(t, s.CommitLiquidity(ctx, p0, 1, model.UserPosition{User: bob, PoolID: 0, LPTokens: 7}))
	p1.TotalLPSupply, p1.Version = 3, 1
	require.NoError(t, s.CommitLiquidity(ctx, p1, 0, model.UserPosition{User: alice, PoolID: 1, LPTokens: 3}))

	positions, err := s.ListPositions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	var sum uint64
	for _, pos := range positions {
		assert.Equal(t, model.PoolID(0), pos.PoolID)
		sum += pos.LPTokens
	}
	assert.Equal(t, uint64(12), sum)

	positions, err = s.ListPositions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, alice, positions[0].User)

	positions, err = s.ListPositions(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, positions)
}
