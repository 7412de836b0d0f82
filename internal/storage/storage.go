package storage

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	"rugpullsim/internal/model"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrConflict      = errors.New("record version conflict")
	ErrClosed        = errors.New("store is closed")
)

// Store persists pool and position records.
//
// CommitLiquidity writes a pool record and one position as a single unit. It
// fails with ErrConflict, writing nothing, when the stored pool version is not
// expectedVersion.
type Store interface {
	GetPool(ctx context.Context, id model.PoolID) (model.PoolState, error)
	ListPools(ctx context.Context) ([]model.PoolState, error)
	InsertPool(ctx context.Context, pool model.PoolState) error
	GetPosition(ctx context.Context, user solana.PublicKey, id model.PoolID) (model.UserPosition, error)
	ListPositions(ctx context.Context, id model.PoolID) ([]model.UserPosition, error)
	CommitLiquidity(ctx context.Context, pool model.PoolState, expectedVersion uint64, position model.UserPosition) error
	Close() error
}

// EventSink receives journal records of committed operations.
type EventSink interface {
	PutEventBatch(events []model.Event) error
}
