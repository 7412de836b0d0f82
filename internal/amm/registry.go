package amm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"rugpullsim/internal/custody"
	"rugpullsim/internal/model"
	"rugpullsim/internal/storage"
)

// Registry owns pool records. It caches records, never reserves: those are
// always read from custody.
type Registry struct {
	store    storage.Store
	custody  custody.Custody
	maxPools int
	cache    *lru.Cache[model.PoolID, model.PoolState]
	now      func() time.Time
	logger   *zap.Logger
}

func NewRegistry(store storage.Store, c custody.Custody, maxPools, cacheSize int, logger *zap.Logger) (*Registry, error) {
	if store == nil || c == nil {
		return nil, errors.New("registry needs a store and a custodian")
	}
	if maxPools <= 0 || maxPools > 256 {
		return nil, fmt.Errorf("max pools %d out of range (1..256)", maxPools)
	}
	if cacheSize <= 0 {
		cacheSize = maxPools
	}
	cache, err := lru.New[model.PoolID, model.PoolState](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create pool cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:    store,
		custody:  c,
		maxPools: maxPools,
		cache:    cache,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// CheckID rejects ids outside [0, maxPools).
func (r *Registry) CheckID(id model.PoolID) error {
	if int(id) >= r.maxPools {
		return fmt.Errorf("pool %d (max %d): %w", id, r.maxPools, ErrInvalidPoolID)
	}
	return nil
}

// Create opens both vaults under the pool address and persists a zero-supply
// record. Callers hold the pool lock. If the insert fails the vaults stay
// open; reopening them with the same mint and owner is a no-op, so a retry
// succeeds.
func (r *Registry) Create(ctx context.Context, id model.PoolID, address, vaultA, vaultB, mintA, mintB, authority solana.PublicKey) (model.PoolState, error) {
	if err := r.CheckID(id); err != nil {
		return model.PoolState{}, err
	}
	if mintA == mintB {
		return model.PoolState{}, fmt.Errorf("pool %d mints %s: %w", id, mintA, ErrInvalidMint)
	}
	if vaultA == vaultB {
		return model.PoolState{}, fmt.Errorf("pool %d shares vault %s between sides: %w", id, vaultA, ErrInvalidMint)
	}

	if _, err := r.store.GetPool(ctx, id); err == nil {
		return model.PoolState{}, fmt.Errorf("pool %d: %w", id, ErrAlreadyInitialized)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return model.PoolState{}, storeError("load pool", err)
	}

	if err := r.custody.OpenAccount(ctx, vaultA, mintA, address); err != nil {
		return model.PoolState{}, transferError("open vault a", err)
	}
	if err := r.custody.OpenAccount(ctx, vaultB, mintB, address); err != nil {
		return model.PoolState{}, transferError("open vault b", err)
	}

	pool := model.PoolState{
		ID:        id,
		Address:   address,
		VaultA:    vaultA,
		VaultB:    vaultB,
		MintA:     mintA,
		MintB:     mintB,
		Authority: authority,
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.InsertPool(ctx, pool); err != nil {
		return model.PoolState{}, storeError("insert pool", err)
	}
	r.cache.Add(id, pool)
	return pool, nil
}

// Get returns the record for id.
func (r *Registry) Get(ctx context.Context, id model.PoolID) (model.PoolState, error) {
	if err := r.CheckID(id); err != nil {
		return model.PoolState{}, err
	}
	if pool, ok := r.cache.Get(id); ok {
		return pool, nil
	}
	pool, err := r.store.GetPool(ctx, id)
	if err != nil {
		return model.PoolState{}, storeError("load pool", err)
	}
	r.cache.Add(id, pool)
	return pool, nil
}

// List returns every pool ordered by id.
func (r *Registry) List(ctx context.Context) ([]model.PoolState, error) {
	pools, err := r.store.ListPools(ctx)
	if err != nil {
		return nil, storeError("list pools", err)
	}
	return pools, nil
}

// commit writes pool (at version expected+1) with position in one unit.
// A version conflict drops the cached record so the next Get reloads it.
func (r *Registry) commit(ctx context.Context, pool model.PoolState, position model.UserPosition) (model.PoolState, error) {
	expected := pool.Version
	pool.Version++
	if err := r.store.CommitLiquidity(ctx, pool, expected, position); err != nil {
		r.cache.Remove(pool.ID)
		return model.PoolState{}, storeError("commit liquidity", err)
	}
	r.cache.Add(pool.ID, pool)
	return pool, nil
}
