package custody_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rugpullsim/internal/custody"
	"rugpullsim/internal/custody/mocks"
	"rugpullsim/internal/model"
)

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func TestLedgerTransferBatchAllOrNothing(t *testing.T) {
	ctx := context.Background()
	ledger := custody.NewLedger(nil)
	mint := newKey()
	alice, bob, carol := newKey(), newKey(), newKey()

	require.NoError(t, ledger.Mint(ctx, alice, mint, alice, 100))
	require.NoError(t, ledger.Mint(ctx, bob, mint, bob, 5))

	err := ledger.TransferBatch(ctx, []custody.Move{
		{From: alice, To: carol, Amount: 60},
		{From: bob, To: carol, Amount: 10},
	})
	require.ErrorIs(t, err, custody.ErrInsufficientFunds)

	bal, err := ledger.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal)
	_, err = ledger.BalanceOf(ctx, carol)
	require.ErrorIs(t, err, custody.ErrAccountNotFound)

	require.NoError(t, ledger.TransferBatch(ctx, []custody.Move{
		{From: alice, To: carol, Amount: 60},
		{From: carol, To: bob, Amount: 20},
	}))
	for acct, want := range map[solana.PublicKey]uint64{alice: 40, bob: 25, carol: 40} {
		bal, err := ledger.BalanceOf(ctx, acct)
		require.NoError(t, err)
		assert.Equal(t, want, bal)
	}
}

func TestLedgerMintMismatch(t *testing.T) {
	ctx := context.Background()
	ledger := custody.NewLedger(nil)
	mintA, mintB := newKey(), newKey()
	src, dst := newKey(), newKey()

	require.NoError(t, ledger.Mint(ctx, src, mintA, src, 10))
	require.NoError(t, ledger.OpenAccount(ctx, dst, mintB, dst))

	err := ledger.Transfer(ctx, src, dst, 1)
	require.ErrorIs(t, err, custody.ErrMintMismatch)
}

func TestLedgerOpenAccountIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := custody.NewLedger(nil)
	acct, mint, owner := newKey(), newKey(), newKey()

	require.NoError(t, ledger.OpenAccount(ctx, acct, mint, owner))
	require.NoError(t, ledger.OpenAccount(ctx, acct, mint, owner))
	require.ErrorIs(t, ledger.OpenAccount(ctx, acct, newKey(), owner), custody.ErrAccountExists)
}

func TestExecuteRevertsPrefixOnFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	vault := mocks.NewMockCustody(ctrl)
	a, b, c := newKey(), newKey(), newKey()
	boom := errors.New("declined")

	gomock.InOrder(
		vault.EXPECT().Transfer(gomock.Any(), a, b, uint64(10)).Return(nil),
		vault.EXPECT().Transfer(gomock.Any(), b, c, uint64(7)).Return(boom),
		vault.EXPECT().Transfer(gomock.Any(), b, a, uint64(10)).Return(nil),
	)

	_, err := custody.Execute(ctx, vault, []custody.Move{
		{From: a, To: b, Amount: 10},
		{From: a, To: a, Amount: 0},
		{From: b, To: c, Amount: 7},
	})
	require.ErrorIs(t, err, boom)
}

func TestExecuteUsesBatcher(t *testing.T) {
	ctx := context.Background()
	ledger := custody.NewLedger(nil)
	mint := newKey()
	a, b := newKey(), newKey()
	require.NoError(t, ledger.Mint(ctx, a, mint, a, 50))

	receipt, err := custody.Execute(ctx, ledger, []custody.Move{{From: a, To: b, Amount: 20}})
	require.NoError(t, err)
	require.Len(t, receipt.Moves(), 1)

	require.NoError(t, receipt.Revert(ctx))
	bal, err := ledger.BalanceOf(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), bal)
	bal, err = ledger.BalanceOf(ctx, b)
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestDeriveIsDeterministic(t *testing.T) {
	program := solana.MustPublicKeyFromBase58("Fa6XiYSXtmJPxnrhrjjSbwQgMKASBh752YcCvrvpEAcs")
	mint := newKey()

	pool1, err := custody.DerivePoolAddress(program, model.PoolID(1))
	require.NoError(t, err)
	again, err := custody.DerivePoolAddress(program, model.PoolID(1))
	require.NoError(t, err)
	assert.Equal(t, pool1, again)

	pool2, err := custody.DerivePoolAddress(program, model.PoolID(2))
	require.NoError(t, err)
	assert.NotEqual(t, pool1, pool2)

	vault1, err := custody.DeriveVault(program, pool1, mint)
	require.NoError(t, err)
	vault2, err := custody.DeriveVault(program, pool2, mint)
	require.NoError(t, err)
	assert.NotEqual(t, vault1, vault2)
}

func TestLedgerRestoreSnapshot(t *testing.T) {
	ctx := context.Background()
	ledger := custody.NewLedger(nil)
	mint, alice, bob := newKey(), newKey(), newKey()
	require.NoError(t, ledger.Mint(ctx, alice, mint, alice, 70))
	require.NoError(t, ledger.Transfer(ctx, alice, bob, 20))

	rows := ledger.Snapshot()
	restored := custody.NewLedger(nil)
	require.NoError(t, restored.Mint(ctx, newKey(), mint, alice, 1))
	restored.Restore(rows)

	assert.Equal(t, rows, restored.Snapshot())
	bal, err := restored.BalanceOf(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), bal)
}
