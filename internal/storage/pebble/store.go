// Package pebble stores pool and position records in a Pebble database.
// Records are borsh-encoded; a pool and a position commit in one batch.
package pebble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"rugpullsim/internal/model"
	"rugpullsim/internal/storage"
)

const (
	poolPrefix     = 'p'
	positionPrefix = 'u'
)

type poolRecord struct {
	ID            uint8
	Address       solana.PublicKey
	VaultA        solana.PublicKey
	VaultB        solana.PublicKey
	MintA         solana.PublicKey
	MintB         solana.PublicKey
	Authority     solana.PublicKey
	TotalLPSupply uint64
	Version       uint64
	CreatedAtUnix int64
}

type positionRecord struct {
	User     solana.PublicKey
	PoolID   uint8
	LPTokens uint64
}

// Store is a storage.Store over Pebble.
type Store struct {
	db *pebble.DB
	// mu serializes read-check-write sequences; pebble batches alone do not
	// give compare-and-swap.
	mu sync.Mutex
}

// Open opens (or creates) a database in dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a database on an in-memory filesystem.
func OpenInMemory() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("open pebble in memory: %w", err)
	}
	return &Store{db: db}, nil
}

func poolKey(id model.PoolID) []byte {
	return []byte{poolPrefix, byte(id)}
}

func positionKey(id model.PoolID, user solana.PublicKey) []byte {
	key := make([]byte, 0, 2+len(user))
	key = append(key, positionPrefix, byte(id))
	return append(key, user[:]...)
}

func encode(v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodePool(pool model.PoolState) ([]byte, error) {
	var created int64
	if !pool.CreatedAt.IsZero() {
		created = pool.CreatedAt.UnixNano()
	}
	return encode(poolRecord{
		ID:            uint8(pool.ID),
		Address:       pool.Address,
		VaultA:        pool.VaultA,
		VaultB:        pool.VaultB,
		MintA:         pool.MintA,
		MintB:         pool.MintB,
		Authority:     pool.Authority,
		TotalLPSupply: pool.TotalLPSupply,
		Version:       pool.Version,
		CreatedAtUnix: created,
	})
}

func decodePool(data []byte) (model.PoolState, error) {
	var rec poolRecord
	if err := bin.NewBorshDecoder(data).Decode(&rec); err != nil {
		return model.PoolState{}, fmt.Errorf("decode pool record: %w", err)
	}
	pool := model.PoolState{
		ID:            model.PoolID(rec.ID),
		Address:       rec.Address,
		VaultA:        rec.VaultA,
		VaultB:        rec.VaultB,
		MintA:         rec.MintA,
		MintB:         rec.MintB,
		Authority:     rec.Authority,
		TotalLPSupply: rec.TotalLPSupply,
		Version:       rec.Version,
	}
	if rec.CreatedAtUnix != 0 {
		pool.CreatedAt = time.Unix(0, rec.CreatedAtUnix).UTC()
	}
	return pool, nil
}

func decodePosition(data []byte) (model.UserPosition, error) {
	var rec positionRecord
	if err := bin.NewBorshDecoder(data).Decode(&rec); err != nil {
		return model.UserPosition{}, fmt.Errorf("decode position record: %w", err)
	}
	return model.UserPosition{User: rec.User, PoolID: model.PoolID(rec.PoolID), LPTokens: rec.LPTokens}, nil
}

func (s *Store) read(key []byte) ([]byte, error) {
	if s.db == nil {
		return nil, storage.ErrClosed
	}
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *Store) GetPool(ctx context.Context, id model.PoolID) (model.PoolState, error) {
	data, err := s.read(poolKey(id))
	if err != nil {
		return model.PoolState{}, fmt.Errorf("pool %d: %w", id, err)
	}
	return decodePool(data)
}

func (s *Store) ListPools(ctx context.Context) ([]model.PoolState, error) {
	var out []model.PoolState
	err := s.scan([]byte{poolPrefix}, []byte{poolPrefix + 1}, func(val []byte) error {
		pool, err := decodePool(val)
		if err != nil {
			return err
		}
		out = append(out, pool)
		return nil
	})
	return out, err
}

func (s *Store) InsertPool(ctx context.Context, pool model.PoolState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.read(poolKey(pool.ID)); err == nil {
		return fmt.Errorf("pool %d: %w", pool.ID, storage.ErrAlreadyExists)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("pool %d: %w", pool.ID, err)
	}

	data, err := encodePool(pool)
	if err != nil {
		return fmt.Errorf("encode pool %d: %w", pool.ID, err)
	}
	return s.db.Set(poolKey(pool.ID), data, pebble.Sync)
}

func (s *Store) GetPosition(ctx context.Context, user solana.PublicKey, id model.PoolID) (model.UserPosition, error) {
	data, err := s.read(positionKey(id, user))
	if err != nil {
		return model.UserPosition{}, fmt.Errorf("position %s/%d: %w", user, id, err)
	}
	return decodePosition(data)
}

func (s *Store) ListPositions(ctx context.Context, id model.PoolID) ([]model.UserPosition, error) {
	lower := []byte{positionPrefix, byte(id)}
	upper := []byte{positionPrefix, byte(id) + 1}
	if byte(id) == 0xff {
		upper = []byte{positionPrefix + 1}
	}

	out := make([]model.UserPosition, 0)
	err := s.scan(lower, upper, func(val []byte) error {
		pos, err := decodePosition(val)
		if err != nil {
			return err
		}
		out = append(out, pos)
		return nil
	})
	return out, err
}

func (s *Store) CommitLiquidity(ctx context.Context, pool model.PoolState, expectedVersion uint64, position model.UserPosition) error {
	if position.PoolID != pool.ID {
		return fmt.Errorf("position pool %d does not match pool %d", position.PoolID, pool.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.GetPool(ctx, pool.ID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("pool %d at version %d, expected %d: %w", pool.ID, current.Version, expectedVersion, storage.ErrConflict)
	}

	poolData, err := encodePool(pool)
	if err != nil {
		return fmt.Errorf("encode pool %d: %w", pool.ID, err)
	}
	posData, err := encode(positionRecord{User: position.User, PoolID: uint8(position.PoolID), LPTokens: position.LPTokens})
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(poolKey(pool.ID), poolData, nil); err != nil {
		return err
	}
	if err := batch.Set(positionKey(position.PoolID, position.User), posData, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *Store) scan(lower, upper []byte, fn func(val []byte) error) error {
	if s.db == nil {
		return storage.ErrClosed
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		cp := make([]byte, len(val))
		copy(cp, val)
		if err := fn(cp); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
