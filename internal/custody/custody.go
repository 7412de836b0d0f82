// Package custody is the boundary to the collaborator that actually holds
// token balances. The AMM core never edits balances itself: it opens vaults,
// reads balances and asks for transfers.
package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

//go:generate go run github.com/golang/mock/mockgen -destination mocks/custody.go -package mocks rugpullsim/internal/custody Custody

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMintMismatch      = errors.New("mint mismatch")
	ErrBalanceOverflow   = errors.New("balance overflow")
)

// Custody moves value between token accounts. Transfer must move the whole
// amount or fail without effect.
type Custody interface {
	OpenAccount(ctx context.Context, account, mint, owner solana.PublicKey) error
	BalanceOf(ctx context.Context, account solana.PublicKey) (uint64, error)
	Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64) error
}

// Batcher is implemented by custodians that can apply several moves as one
// all-or-nothing unit.
type Batcher interface {
	TransferBatch(ctx context.Context, moves []Move) error
}

// Move is a single token movement.
type Move struct {
	From   solana.PublicKey
	To     solana.PublicKey
	Amount uint64
}

func (m Move) reverse() Move {
	return Move{From: m.To, To: m.From, Amount: m.Amount}
}

// Receipt records the moves applied by Execute so they can be undone.
type Receipt struct {
	custody Custody
	applied []Move
}

// Moves returns the moves that were applied.
func (r *Receipt) Moves() []Move {
	if r == nil {
		return nil
	}
	return append([]Move(nil), r.applied...)
}

// Execute applies moves as one unit. Zero-amount moves are skipped. When the
// custodian implements Batcher the batch is handed over whole; otherwise the
// moves run in order and the applied prefix is reversed if one fails.
func Execute(ctx context.Context, c Custody, moves []Move) (*Receipt, error) {
	pending := make([]Move, 0, len(moves))
	for _, m := range moves {
		if m.Amount > 0 {
			pending = append(pending, m)
		}
	}
	receipt := &Receipt{custody: c}
	if len(pending) == 0 {
		return receipt, nil
	}

	if b, ok := c.(Batcher); ok {
		if err := b.TransferBatch(ctx, pending); err != nil {
			return nil, err
		}
		receipt.applied = pending
		return receipt, nil
	}

	for i, m := range pending {
		if err := c.Transfer(ctx, m.From, m.To, m.Amount); err != nil {
			partial := &Receipt{custody: c, applied: pending[:i]}
			if rerr := partial.Revert(ctx); rerr != nil {
				return nil, errors.Join(fmt.Errorf("move %d: %w", i, err), fmt.Errorf("revert: %w", rerr))
			}
			return nil, fmt.Errorf("move %d: %w", i, err)
		}
	}
	receipt.applied = pending
	return receipt, nil
}

// Revert applies the reverse of every recorded move, newest first.
func (r *Receipt) Revert(ctx context.Context) error {
	if r == nil || len(r.applied) == 0 {
		return nil
	}
	undo := make([]Move, 0, len(r.applied))
	for i := len(r.applied) - 1; i >= 0; i-- {
		undo = append(undo, r.applied[i].reverse())
	}

	if b, ok := r.custody.(Batcher); ok {
		if err := b.TransferBatch(ctx, undo); err != nil {
			return err
		}
		r.applied = nil
		return nil
	}

	var errs []error
	for _, m := range undo {
		if err := r.custody.Transfer(ctx, m.From, m.To, m.Amount); err != nil {
			errs = append(errs, err)
		}
	}
	r.applied = nil
	return errors.Join(errs...)
}
