package amm

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"rugpullsim/internal/curve"
	"rugpullsim/internal/custody"
	"rugpullsim/internal/model"
	"rugpullsim/internal/storage"
	"rugpullsim/internal/storage/memory"
)

type fixture struct {
	svc       *Service
	custody   *custody.Ledger
	store     storage.Store
	journal   *storage.MemorySink
	logs      *observer.ObservedLogs
	mintA     solana.PublicKey
	mintB     solana.PublicKey
	authority solana.PublicKey
}

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func newFixture(t *testing.T, policy ProvisionPolicy) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	f := &fixture{
		custody:   custody.NewLedger(nil),
		store:     memory.NewStore(),
		journal:   &storage.MemorySink{},
		logs:      logs,
		mintA:     newKey(),
		mintB:     newKey(),
		authority: newKey(),
	}
	svc, err := NewService(Config{Policy: policy, Journal: f.journal}, f.store, f.custody, zap.New(core))
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) createPool(t *testing.T, id model.PoolID) model.PoolState {
	t.Helper()
	pool, err := f.svc.CreatePool(context.Background(), id, f.mintA, f.mintB, f.authority)
	require.NoError(t, err)
	return pool
}

func (f *fixture) fund(t *testing.T, owner, mint solana.PublicKey, amount uint64) {
	t.Helper()
	acct, err := custody.UserAccount(owner, mint)
	require.NoError(t, err)
	require.NoError(t, f.custody.Mint(context.Background(), acct, mint, owner, amount))
}

func (f *fixture) balance(t *testing.T, owner, mint solana.PublicKey) uint64 {
	t.Helper()
	acct, err := custody.UserAccount(owner, mint)
	require.NoError(t, err)
	bal, err := f.custody.BalanceOf(context.Background(), acct)
	if err != nil {
		require.ErrorIs(t, err, custody.ErrAccountNotFound)
		return 0
	}
	return bal
}

func (f *fixture) vaults(t *testing.T, pool model.PoolState) (uint64, uint64) {
	t.Helper()
	a, err := f.custody.BalanceOf(context.Background(), pool.VaultA)
	require.NoError(t, err)
	b, err := f.custody.BalanceOf(context.Background(), pool.VaultB)
	require.NoError(t, err)
	return a, b
}

func (f *fixture) requireSupplyConsistent(t *testing.T, id model.PoolID) {
	t.Helper()
	ctx := context.Background()
	pool, err := f.store.GetPool(ctx, id)
	require.NoError(t, err)
	sum, err := f.svc.Ledger().SupplyOf(ctx, id)
	require.NoError(t, err)
	require.Equal(t, pool.TotalLPSupply, sum, "pool %d supply", id)
}

func TestEndToEndRugPull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyPaired)
	alice, bob := newKey(), newKey()

	pool := f.createPool(t, 1)
	a, b := f.vaults(t, pool)
	assert.Zero(t, a)
	assert.Zero(t, b)

	f.fund(t, alice, f.mintA, 1000)
	f.fund(t, alice, f.mintB, 1000)
	minted, err := f.svc.Provide(ctx, ProvideRequest{PoolID: 1, User: alice, AmountA: 1000, AmountB: 1000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), minted)

	f.fund(t, bob, f.mintA, 100)
	out, err := f.svc.Swap(ctx, SwapRequest{PoolID: 1, User: bob, Direction: model.AToB, AmountIn: 100})
	require.NoError(t, err)
	assert.Equal(t, uint64(91), out)
	assert.Equal(t, uint64(91), f.balance(t, bob, f.mintB))

	a, b = f.vaults(t, pool)
	assert.Equal(t, uint64(1100), a)
	assert.Equal(t, uint64(909), b)
	assert.False(t, curve.Product(a, b).Cmp(curve.Product(1000, 1000)) < 0)

	drainedA, drainedB, err := f.svc.Drain(ctx, 1, f.authority)
	require.NoError(t, err)
	assert.Equal(t, uint64(1100), drainedA)
	assert.Equal(t, uint64(909), drainedB)
	assert.Equal(t, uint64(1100), f.balance(t, f.authority, f.mintA))
	assert.Equal(t, uint64(909), f.balance(t, f.authority, f.mintB))

	status, err := f.svc.Status(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, status.ReserveA)
	assert.Zero(t, status.ReserveB)
	assert.Equal(t, uint64(1000), status.Pool.TotalLPSupply)
	assert.True(t, status.Unbacked)
	f.requireSupplyConsistent(t, 1)

	events := f.journal.Drain()
	require.Len(t, events, 4)
	assert.Equal(t, model.EventCreatePool, events[0].Type)
	assert.Equal(t, model.EventAddLiquidity, events[1].Type)
	assert.Equal(t, model.EventSwap, events[2].Type)
	assert.Equal(t, uint64(909), events[2].ReserveB)
	assert.Equal(t, model.EventDrain, events[3].Type)
	assert.Equal(t, uint64(1000), events[3].LPSupply)

	warned := f.logs.FilterMessage("pool drained with outstanding lp shares").All()
	require.Len(t, warned, 1)
	assert.Equal(t, zapcore.WarnLevel, warned[0].Level)
}

func TestEndToEndRugPullSingleSided(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicySingle)
	alice, bob := newKey(), newKey()
	pool := f.createPool(t, 1)

	f.fund(t, alice, f.mintA, 1000)
	f.fund(t, alice, f.mintB, 1000)
	minted, err := f.svc.Provide(ctx, ProvideRequest{PoolID: 1, User: alice, AmountA: 1000})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), minted)
	minted, err = f.svc.Provide(ctx, ProvideRequest{PoolID: 1, User: alice, AmountB: 1000})
	require.NoError(t, err)
	assert.Zero(t, minted, "seeding the empty side mints nothing")

	f.fund(t, bob, f.mintA, 100)
	out, err := f.svc.Swap(ctx, SwapRequest{PoolID: 1, User: bob, Direction: model.AToB, AmountIn: 100})
	require.NoError(t, err)
	assert.Equal(t, uint64(91), out)

	a, b := f.vaults(t, pool)
	assert.Equal(t, uint64(1100), a)
	assert.Equal(t, uint64(909), b)

	drainedA, drainedB, err := f.svc.Drain(ctx, 1, f.authority)
	require.NoError(t, err)
	assert.Equal(t, uint64(1100), drainedA)
	assert.Equal(t, uint64(909), drainedB)

	status, err := f.svc.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), status.Pool.TotalLPSupply)
	assert.True(t, status.Unbacked)
	f.requireSupplyConsistent(t, 1)

	events := f.journal.Drain()
	require.Len(t, events, 5)
	assert.Equal(t, model.EventAddLiquidity, events[2].Type)
	assert.Zero(t, events[2].LPMinted)
	assert.Equal(t, model.EventDrain, events[4].Type)
}

func TestCreatePool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyPaired)

	pool := f.createPool(t, 0)
	assert.Equal(t, model.PoolID(0), pool.ID)
	assert.Zero(t, pool.TotalLPSupply)
	assert.Equal(t, f.authority, pool.Authority)

	address, vaultA, vaultB, err := f.svc.Accounts(0, f.mintA, f.mintB)
	require.NoError(t, err)
	assert.Equal(t, address, pool.Address)
	assert.Equal(t, vaultA, pool.VaultA)
	assert.Equal(t, vaultB, pool.VaultB)

	_, err = f.svc.CreatePool(ctx, 0, f.mintA, f.mintB, f.authority)
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	_, err = f.svc.CreatePool(ctx, DefaultMaxPools, f.mintA, f.mintB, f.authority)
	require.ErrorIs(t, err, ErrInvalidPoolID)

	_, err = f.svc.CreatePool(ctx, 2, f.mintA, f.mintA, f.authority)
	require.ErrorIs(t, err, ErrInvalidMint)

	_, err = f.svc.Pool(ctx, 2)
	require.ErrorIs(t, err, ErrNotFound)

	pools, err := f.svc.Registry().List(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 1)
}

// insertFailStore fails the first InsertPool.
type insertFailStore struct {
	storage.Store
	failed bool
}

func (s *insertFailStore) InsertPool(ctx context.Context, pool model.PoolState) error {
	if !s.failed {
		s.failed = true
		return assert.AnError
	}
	return s.Store.InsertPool(ctx, pool)
}

func TestCreatePoolRetryAfterInsertFailure(t *testing.T) {
	ctx := context.Background()
	ledger := custody.NewLedger(nil)
	svc, err := NewService(Config{}, &insertFailStore{Store: memory.NewStore()}, ledger, nil)
	require.NoError(t, err)
	mintA, mintB, authority := newKey(), newKey(), newKey()

	_, err = svc.CreatePool(ctx, 0, mintA, mintB, authority)
	require.ErrorIs(t, err, ErrStorage)

	// The vaults opened by the failed attempt are reused.
	pool, err := svc.CreatePool(ctx, 0, mintA, mintB, authority)
	require.NoError(t, err)
	for _, vault := range []solana.PublicKey{pool.VaultA, pool.VaultB} {
		bal, err := ledger.BalanceOf(ctx, vault)
		require.NoError(t, err)
		assert.Zero(t, bal)
	}
}

func TestMaxPoolsIsConfigurable(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(Config{MaxPools: 8}, memory.NewStore(), custody.NewLedger(nil), nil)
	require.NoError(t, err)

	_, err = svc.CreatePool(ctx, 7, newKey(), newKey(), newKey())
	require.NoError(t, err)
	_, err = svc.CreatePool(ctx, 8, newKey(), newKey(), newKey())
	require.ErrorIs(t, err, ErrInvalidPoolID)
}

func TestServiceConfigValidation(t *testing.T) {
	_, err := NewService(Config{Policy: "bogus"}, memory.NewStore(), custody.NewLedger(nil), nil)
	require.Error(t, err)

	_, err = NewService(Config{MaxPools: 300}, memory.NewStore(), custody.NewLedger(nil), nil)
	require.Error(t, err)

	_, err = NewService(Config{}, nil, custody.NewLedger(nil), nil)
	require.Error(t, err)
}

func TestJournalFailureDoesNotFailOperation(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	svc, err := NewService(Config{Journal: failingSink{}}, memory.NewStore(), custody.NewLedger(nil), zap.New(core))
	require.NoError(t, err)

	_, err = svc.CreatePool(context.Background(), 0, newKey(), newKey(), newKey())
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("journal write failed").Len())
}

type failingSink struct{}

func (failingSink) PutEventBatch([]model.Event) error {
	return assert.AnError
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrUnauthorized, "unauthorized"},
		{storeError("load", storage.ErrConflict), "concurrent_modification"},
		{storeError("load", storage.ErrNotFound), "not_found"},
		{storeError("load", assert.AnError), "storage"},
		{transferError("swap", custody.ErrInsufficientFunds), "transfer_failed"},
		{curve.ErrOverflow, "arithmetic_overflow"},
		{context.Canceled, "canceled"},
		{assert.AnError, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err), "%v", tt.err)
	}
}
