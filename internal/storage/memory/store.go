// Package memory is a map-backed storage.Store for tests and throwaway runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"rugpullsim/internal/model"
	"rugpullsim/internal/storage"
)

type positionKey struct {
	user solana.PublicKey
	pool model.PoolID
}

// Store keeps records in process memory.
type Store struct {
	mu        sync.RWMutex
	pools     map[model.PoolID]model.PoolState
	positions map[positionKey]model.UserPosition
	closed    bool
}

func NewStore() *Store {
	return &Store{
		pools:     make(map[model.PoolID]model.PoolState),
		positions: make(map[positionKey]model.UserPosition),
	}
}

func (s *Store) GetPool(ctx context.Context, id model.PoolID) (model.PoolState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.PoolState{}, storage.ErrClosed
	}

	pool, ok := s.pools[id]
	if !ok {
		return model.PoolState{}, fmt.Errorf("pool %d: %w", id, storage.ErrNotFound)
	}
	return pool, nil
}

func (s *Store) ListPools(ctx context.Context) ([]model.PoolState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}

	out := make([]model.PoolState, 0, len(s.pools))
	for _, pool := range s.pools {
		out = append(out, pool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) InsertPool(ctx context.Context, pool model.PoolState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	if _, ok := s.pools[pool.ID]; ok {
		return fmt.Errorf("pool %d: %w", pool.ID, storage.ErrAlreadyExists)
	}
	s.pools[pool.ID] = pool
	return nil
}

func (s *Store) GetPosition(ctx context.Context, user solana.PublicKey, id model.PoolID) (model.UserPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.UserPosition{}, storage.ErrClosed
	}

	pos, ok := s.positions[positionKey{user: user, pool: id}]
	if !ok {
		return model.UserPosition{}, fmt.Errorf("position %s/%d: %w", user, id, storage.ErrNotFound)
	}
	return pos, nil
}

func (s *Store) ListPositions(ctx context.Context, id model.PoolID) ([]model.UserPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}

	out := make([]model.UserPosition, 0)
	for key, pos := range s.positions {
		if key.pool == id {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.String() < out[j].User.String() })
	return out, nil
}

func (s *Store) CommitLiquidity(ctx context.Context, pool model.PoolState, expectedVersion uint64, position model.UserPosition) error {
	if position.PoolID != pool.ID {
		return fmt.Errorf("position pool %d does not match pool %d", position.PoolID, pool.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	current, ok := s.pools[pool.ID]
	if !ok {
		return fmt.Errorf("pool %d: %w", pool.ID, storage.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("pool %d at version %d, expected %d: %w", pool.ID, current.Version, expectedVersion, storage.ErrConflict)
	}

	s.pools[pool.ID] = pool
	s.positions[positionKey{user: position.User, pool: position.PoolID}] = position
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
