package amm

import (
	"context"
	"math/rand"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rugpullsim/internal/custody"
	"rugpullsim/internal/model"
	"rugpullsim/internal/storage"
	"rugpullsim/internal/storage/memory"
)

func TestProvideProportionalSingleSided(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicySingle)
	pool := f.createPool(t, 0)
	alice, bob := newKey(), newKey()

	f.fund(t, alice, f.mintA, 1000)
	minted, err := f.svc.Provide(ctx, ProvideRequest{PoolID: 0, User: alice, AmountA: 1000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), minted, "bootstrap mints the deposit")

	// Grow the A reserve to 5000 without minting shares.
	require.NoError(t, f.custody.Mint(ctx, pool.VaultA, f.mintA, pool.Address, 4000))

	f.fund(t, bob, f.mintA, 500)
	minted, err = f.svc.Provide(ctx, ProvideRequest{PoolID: 0, User: bob, AmountA: 500})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), minted)

	_, err = f.svc.Provide(ctx, ProvideRequest{PoolID: 0, User: bob, AmountA: 1, AmountB: 1})
	require.ErrorIs(t, err, ErrInvalidAmount)

	// The B side was never funded: the first B-only deposit seeds it and mints nothing.
	f.fund(t, bob, f.mintB, 10)
	minted, err = f.svc.Provide(ctx, ProvideRequest{PoolID: 0, User: bob, AmountB: 10})
	require.NoError(t, err)
	assert.Zero(t, minted)
	assert.Zero(t, f.balance(t, bob, f.mintB))
	_, vaultB := f.vaults(t, pool)
	assert.Equal(t, uint64(10), vaultB)

	// Once seeded, B deposits price against the B reserve.
	f.fund(t, bob, f.mintB, 10)
	minted, err = f.svc.Provide(ctx, ProvideRequest{PoolID: 0, User: bob, AmountB: 10})
	require.NoError(t, err)
	assert.Equal(t, uint64(1100), minted)

	f.requireSupplyConsistent(t, 0)
}

func TestProvideSingleSidedRejectsUnbackedPool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicySingle)
	f.createPool(t, 0)
	alice := newKey()

	f.fund(t, alice, f.mintA, 1000)
	_, err := f.svc.Provide(ctx, ProvideRequest{PoolID: 0, User: alice, AmountA: 1000})
	require.NoError(t, err)
	_, _, err = f.svc.Drain(ctx, 0, f.authority)
	require.NoError(t, err)

	f.fund(t, alice, f.mintB, 10)
	_, err = f.svc.Provide(ctx, ProvideRequest{PoolID: 0, User: alice, AmountB: 10})
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	assert.Equal(t, uint64(10), f.balance(t, alice, f.mintB))
}

func TestProvidePaired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyPaired)
	f.createPool(t, 1)
	alice, bob := newKey(), newKey()

	f.fund(t, alice, f.mintA, 1000)
	f.fund(t, alice, f.mintB, 4000)
	minted, err := f.svc.Provide(ctx, ProvideRequest{PoolID: 1, User: alice, AmountA: 1000, AmountB: 4000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), minted)

	f.fund(t, bob, f.mintA, 500)
	f.fund(t, bob, f.mintB, 1000)
	minted, err = f.svc.Provide(ctx, ProvideRequest{PoolID: 1, User: bob, AmountA: 500, AmountB: 1000})
	require.NoError(t, err)
	assert.Equal(t, uint64(250), minted, "the smaller side sets the share count")

	_, err = f.svc.Provide(ctx, ProvideRequest{PoolID: 1, User: bob, AmountA: 10})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.svc.Provide(ctx, ProvideRequest{PoolID: 1, User: bob, AmountA: 1, AmountB: 1})
	require.ErrorIs(t, err, ErrInvalidAmount, "dust deposit mints nothing")

	f.fund(t, bob, f.mintA, 100)
	f.fund(t, bob, f.mintB, 400)
	_, err = f.svc.Provide(ctx, ProvideRequest{PoolID: 1, User: bob, AmountA: 100, AmountB: 400, MinShares: 101})
	require.ErrorIs(t, err, ErrSlippageExceeded)
	assert.Equal(t, uint64(100), f.balance(t, bob, f.mintA))

	pos, err := f.svc.Position(ctx, bob, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), pos.LPTokens)
	f.requireSupplyConsistent(t, 1)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyPaired)
	pool := f.createPool(t, 2)
	alice, bob := newKey(), newKey()

	f.fund(t, alice, f.mintA, 1000)
	f.fund(t, alice, f.mintB, 1000)
	_, err := f.svc.Provide(ctx, ProvideRequest{PoolID: 2, User: alice, AmountA: 1000, AmountB: 1000})
	require.NoError(t, err)

	f.fund(t, bob, f.mintA, 100)
	_, err = f.svc.Swap(ctx, SwapRequest{PoolID: 2, User: bob, Direction: model.AToB, AmountIn: 100})
	require.NoError(t, err)

	_, _, err = f.svc.Remove(ctx, RemoveRequest{PoolID: 2, User: alice, LPAmount: 1001})
	require.ErrorIs(t, err, ErrInsufficientLPTokens)
	_, _, err = f.svc.Remove(ctx, RemoveRequest{PoolID: 2, User: bob, LPAmount: 1})
	require.ErrorIs(t, err, ErrNotFound)

	a, b, err := f.svc.Remove(ctx, RemoveRequest{PoolID: 2, User: alice})
	require.NoError(t, err)
	assert.Zero(t, a)
	assert.Zero(t, b)

	vaultA, vaultB := f.vaults(t, pool)
	assert.Equal(t, uint64(1100), vaultA)
	assert.Equal(t, uint64(909), vaultB)

	_, _, err = f.svc.Remove(ctx, RemoveRequest{PoolID: 2, User: alice, LPAmount: 250, MinAmountA: 276})
	require.ErrorIs(t, err, ErrSlippageExceeded)

	a, b, err = f.svc.Remove(ctx, RemoveRequest{PoolID: 2, User: alice, LPAmount: 250})
	require.NoError(t, err)
	assert.Equal(t, uint64(275), a)
	assert.Equal(t, uint64(227), b)
	assert.Equal(t, uint64(275), f.balance(t, alice, f.mintA))
	assert.Equal(t, uint64(227), f.balance(t, alice, f.mintB))

	pos, err := f.svc.Position(ctx, alice, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(750), pos.LPTokens)

	a, b, err = f.svc.Remove(ctx, RemoveRequest{PoolID: 2, User: alice, LPAmount: 750})
	require.NoError(t, err)
	assert.Equal(t, uint64(825), a)
	assert.Equal(t, uint64(682), b)

	pos, err = f.svc.Position(ctx, alice, 2)
	require.NoError(t, err)
	assert.Zero(t, pos.LPTokens, "positions stay at zero balance")
	vaultA, vaultB = f.vaults(t, pool)
	assert.Zero(t, vaultA)
	assert.Zero(t, vaultB)
	f.requireSupplyConsistent(t, 2)
}

func TestRemoveOverWithdrawalLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyPaired)
	pool := f.createPool(t, 0)
	alice := newKey()

	f.fund(t, alice, f.mintA, 300)
	f.fund(t, alice, f.mintB, 300)
	_, err := f.svc.Provide(ctx, ProvideRequest{PoolID: 0, User: alice, AmountA: 300, AmountB: 300})
	require.NoError(t, err)
	before, err := f.store.GetPool(ctx, 0)
	require.NoError(t, err)

	_, _, err = f.svc.Remove(ctx, RemoveRequest{PoolID: 0, User: alice, LPAmount: 301})
	require.ErrorIs(t, err, ErrInsufficientLPTokens)

	after, err := f.store.GetPool(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	a, b := f.vaults(t, pool)
	assert.Equal(t, uint64(300), a)
	assert.Equal(t, uint64(300), b)
	assert.Zero(t, f.balance(t, alice, f.mintA))
}

func TestSupplyConsistencyRandomized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyPaired)
	f.createPool(t, 0)
	rng := rand.New(rand.NewSource(7))

	users := make([]solana.PublicKey, 5)
	for i := range users {
		users[i] = newKey()
		f.fund(t, users[i], f.mintA, 1_000_000)
		f.fund(t, users[i], f.mintB, 1_000_000)
	}

	for i := 0; i < 300; i++ {
		user := users[rng.Intn(len(users))]
		if rng.Intn(3) > 0 {
			_, err := f.svc.Provide(ctx, ProvideRequest{
				PoolID:  0,
				User:    user,
				AmountA: uint64(rng.Intn(2000) + 1),
				AmountB: uint64(rng.Intn(2000) + 1),
			})
			if err != nil {
				require.ErrorIs(t, err, ErrInvalidAmount)
			}
		} else {
			pos, err := f.svc.Position(ctx, user, 0)
			if err != nil {
				require.ErrorIs(t, err, ErrNotFound)
				continue
			}
			burn := uint64(0)
			if pos.LPTokens > 0 {
				burn = uint64(rng.Int63n(int64(pos.LPTokens)) + 1)
			}
			_, _, err = f.svc.Remove(ctx, RemoveRequest{PoolID: 0, User: user, LPAmount: burn})
			require.NoError(t, err)
		}
		f.requireSupplyConsistent(t, 0)
	}
}

type commitFailStore struct {
	storage.Store
}

func (commitFailStore) CommitLiquidity(context.Context, model.PoolState, uint64, model.UserPosition) error {
	return assert.AnError
}

func TestProvideRevertsCustodyWhenCommitFails(t *testing.T) {
	ctx := context.Background()
	ledger := custody.NewLedger(nil)
	store := commitFailStore{Store: memory.NewStore()}
	svc, err := NewService(Config{}, store, ledger, nil)
	require.NoError(t, err)

	mintA, mintB, alice := newKey(), newKey(), newKey()
	pool, err := svc.CreatePool(ctx, 0, mintA, mintB, newKey())
	require.NoError(t, err)

	userA, userB, err := userAccounts(alice, pool)
	require.NoError(t, err)
	require.NoError(t, ledger.Mint(ctx, userA, mintA, alice, 500))
	require.NoError(t, ledger.Mint(ctx, userB, mintB, alice, 500))

	_, err = svc.Provide(ctx, ProvideRequest{PoolID: 0, User: alice, AmountA: 500, AmountB: 500})
	require.ErrorIs(t, err, ErrStorage)

	for acct, want := range map[solana.PublicKey]uint64{userA: 500, userB: 500, pool.VaultA: 0, pool.VaultB: 0} {
		bal, err := ledger.BalanceOf(ctx, acct)
		require.NoError(t, err)
		assert.Equal(t, want, bal, acct.String())
	}
	stored, err := store.GetPool(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, stored.TotalLPSupply)
	_, err = svc.Position(ctx, alice, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

// flakyCommitStore fails CommitLiquidity while fail is set.
type flakyCommitStore struct {
	storage.Store
	fail bool
}

func (s *flakyCommitStore) CommitLiquidity(ctx context.Context, pool model.PoolState, expected uint64, position model.UserPosition) error {
	if s.fail {
		return assert.AnError
	}
	return s.Store.CommitLiquidity(ctx, pool, expected, position)
}

func TestRemoveRevertsCustodyWhenCommitFails(t *testing.T) {
	ctx := context.Background()
	ledger := custody.NewLedger(nil)
	store := &flakyCommitStore{Store: memory.NewStore()}
	svc, err := NewService(Config{}, store, ledger, nil)
	require.NoError(t, err)

	mintA, mintB, alice := newKey(), newKey(), newKey()
	pool, err := svc.CreatePool(ctx, 0, mintA, mintB, newKey())
	require.NoError(t, err)

	userA, userB, err := userAccounts(alice, pool)
	require.NoError(t, err)
	require.NoError(t, ledger.Mint(ctx, userA, mintA, alice, 500))
	require.NoError(t, ledger.Mint(ctx, userB, mintB, alice, 500))
	minted, err := svc.Provide(ctx, ProvideRequest{PoolID: 0, User: alice, AmountA: 500, AmountB: 500})
	require.NoError(t, err)

	store.fail = true
	_, _, err = svc.Remove(ctx, RemoveRequest{PoolID: 0, User: alice, LPAmount: minted / 2})
	require.ErrorIs(t, err, ErrStorage)

	for acct, want := range map[solana.PublicKey]uint64{userA: 0, userB: 0, pool.VaultA: 500, pool.VaultB: 500} {
		bal, err := ledger.BalanceOf(ctx, acct)
		require.NoError(t, err)
		assert.Equal(t, want, bal, acct.String())
	}
	stored, err := store.GetPool(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, minted, stored.TotalLPSupply)
	pos, err := svc.Position(ctx, alice, 0)
	require.NoError(t, err)
	assert.Equal(t, minted, pos.LPTokens)

	// The pool is still usable once commits go through again.
	store.fail = false
	outA, outB, err := svc.Remove(ctx, RemoveRequest{PoolID: 0, User: alice, LPAmount: minted})
	require.NoError(t, err)
	assert.Equal(t, uint64(500), outA)
	assert.Equal(t, uint64(500), outB)
}

func TestStaleVersionIsRejected(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ledger := custody.NewLedger(nil)
	first, err := NewService(Config{}, store, ledger, nil)
	require.NoError(t, err)
	second, err := NewService(Config{}, store, ledger, nil)
	require.NoError(t, err)

	mintA, mintB := newKey(), newKey()
	_, err = first.CreatePool(ctx, 0, mintA, mintB, newKey())
	require.NoError(t, err)
	pool, err := second.Pool(ctx, 0)
	require.NoError(t, err)

	alice, bob := newKey(), newKey()
	for _, user := range []solana.PublicKey{alice, bob} {
		a, b, err := userAccounts(user, pool)
		require.NoError(t, err)
		require.NoError(t, ledger.Mint(ctx, a, mintA, user, 1000))
		require.NoError(t, ledger.Mint(ctx, b, mintB, user, 1000))
	}

	_, err = first.Provide(ctx, ProvideRequest{PoolID: 0, User: alice, AmountA: 1000, AmountB: 1000})
	require.NoError(t, err)

	_, err = second.Provide(ctx, ProvideRequest{PoolID: 0, User: bob, AmountA: 100, AmountB: 100})
	require.ErrorIs(t, err, ErrConcurrentModification)
	bobA, _, err := userAccounts(bob, pool)
	require.NoError(t, err)
	bal, err := ledger.BalanceOf(ctx, bobA)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), bal)

	minted, err := second.Provide(ctx, ProvideRequest{PoolID: 0, User: bob, AmountA: 100, AmountB: 100})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), minted)

	stored, err := store.GetPool(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1100), stored.TotalLPSupply)
	assert.Equal(t, uint64(2), stored.Version)
}
