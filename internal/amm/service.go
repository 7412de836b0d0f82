// Package amm is the accounting core of a constant-product AMM: pool
// registry, LP positions, swaps, liquidity and the authority drain. Balances
// live with a custody.Custody; records live in a storage.Store.
package amm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"rugpullsim/internal/custody"
	"rugpullsim/internal/metrics"
	"rugpullsim/internal/model"
	"rugpullsim/internal/storage"
)

const DefaultMaxPools = 3

// DefaultProgramID seeds pool and vault address derivation.
var DefaultProgramID = solana.MustPublicKeyFromBase58("Fa6XiYSXtmJPxnrhrjjSbwQgMKASBh752YcCvrvpEAcs")

// ProvisionPolicy selects how deposits are turned into LP shares.
type ProvisionPolicy string

const (
	// PolicyPaired takes both assets and mints the smaller proportional share.
	PolicyPaired ProvisionPolicy = "paired"
	// PolicySingle takes exactly one asset per deposit.
	PolicySingle ProvisionPolicy = "single"
)

func ParseProvisionPolicy(input string) (ProvisionPolicy, error) {
	switch p := ProvisionPolicy(strings.ToLower(strings.TrimSpace(input))); p {
	case "", PolicyPaired:
		return PolicyPaired, nil
	case PolicySingle:
		return PolicySingle, nil
	default:
		return "", fmt.Errorf("invalid provision policy %q", input)
	}
}

// Config configures a Service.
type Config struct {
	ProgramID     solana.PublicKey
	MaxPools      int
	Policy        ProvisionPolicy
	PoolCacheSize int
	// Metrics and Journal are optional.
	Metrics *metrics.Metrics
	Journal storage.EventSink
}

// Service runs pool operations. Operations on one pool are serialized; pools
// do not block each other.
type Service struct {
	program  solana.PublicKey
	policy   ProvisionPolicy
	registry *Registry
	ledger   *Ledger
	custody  custody.Custody
	locks    *poolLocks
	metrics  *metrics.Metrics
	journal  storage.EventSink
	now      func() time.Time
	logger   *zap.Logger
}

func NewService(cfg Config, store storage.Store, c custody.Custody, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = DefaultProgramID
	}
	if cfg.MaxPools == 0 {
		cfg.MaxPools = DefaultMaxPools
	}
	policy, err := ParseProvisionPolicy(string(cfg.Policy))
	if err != nil {
		return nil, err
	}

	registry, err := NewRegistry(store, c, cfg.MaxPools, cfg.PoolCacheSize, logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		program:  cfg.ProgramID,
		policy:   policy,
		registry: registry,
		ledger:   NewLedger(store),
		custody:  c,
		locks:    newPoolLocks(),
		metrics:  cfg.Metrics,
		journal:  cfg.Journal,
		now:      time.Now,
		logger:   logger,
	}, nil
}

func (s *Service) Registry() *Registry { return s.registry }
func (s *Service) Ledger() *Ledger     { return s.ledger }

func (s *Service) Policy() ProvisionPolicy { return s.policy }

// ProgramID is the key pool and vault addresses are derived under.
func (s *Service) ProgramID() solana.PublicKey { return s.program }

// Accounts resolves the pool address and vault pair id would use for the two
// mints. The same inputs always give the same accounts.
func (s *Service) Accounts(id model.PoolID, mintA, mintB solana.PublicKey) (address, vaultA, vaultB solana.PublicKey, err error) {
	if address, err = custody.DerivePoolAddress(s.program, id); err != nil {
		return
	}
	if vaultA, err = custody.DeriveVault(s.program, address, mintA); err != nil {
		return
	}
	vaultB, err = custody.DeriveVault(s.program, address, mintB)
	return
}

// CreatePool provisions pool id with derived vaults for the two mints.
func (s *Service) CreatePool(ctx context.Context, id model.PoolID, mintA, mintB, authority solana.PublicKey) (pool model.PoolState, err error) {
	start := s.now()
	defer func() {
		s.finish("create_pool", start, err, zap.Uint8("pool_id", uint8(id)))
	}()

	if err := s.registry.CheckID(id); err != nil {
		return model.PoolState{}, err
	}
	address, vaultA, vaultB, err := s.Accounts(id, mintA, mintB)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}

	unlock := s.locks.lock(id)
	defer unlock()

	pool, err = s.registry.Create(ctx, id, address, vaultA, vaultB, mintA, mintB, authority)
	if err != nil {
		return model.PoolState{}, err
	}
	s.record(model.Event{
		Type:      model.EventCreatePool,
		PoolID:    id,
		User:      authority.String(),
		Timestamp: pool.CreatedAt,
	})
	s.metrics.SetPool(id, 0, 0, 0)
	return pool, nil
}

// Pool returns the record for id.
func (s *Service) Pool(ctx context.Context, id model.PoolID) (model.PoolState, error) {
	return s.registry.Get(ctx, id)
}

// Position returns user's LP position in pool id.
func (s *Service) Position(ctx context.Context, user solana.PublicKey, id model.PoolID) (model.UserPosition, error) {
	if err := s.registry.CheckID(id); err != nil {
		return model.UserPosition{}, err
	}
	return s.ledger.Get(ctx, user, id)
}

// reserves reads both live vault balances.
func (s *Service) reserves(ctx context.Context, pool model.PoolState) (uint64, uint64, error) {
	a, err := s.custody.BalanceOf(ctx, pool.VaultA)
	if err != nil {
		return 0, 0, transferError("read vault a", err)
	}
	b, err := s.custody.BalanceOf(ctx, pool.VaultB)
	if err != nil {
		return 0, 0, transferError("read vault b", err)
	}
	return a, b, nil
}

func userAccounts(owner solana.PublicKey, pool model.PoolState) (solana.PublicKey, solana.PublicKey, error) {
	a, err := custody.UserAccount(owner, pool.MintA)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	b, err := custody.UserAccount(owner, pool.MintB)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	return a, b, nil
}

// commitOrRevert commits a liquidity change. If the commit fails the custody
// moves in receipt are undone before the error is returned.
func (s *Service) commitOrRevert(ctx context.Context, receipt *custody.Receipt, pool model.PoolState, position model.UserPosition) (model.PoolState, error) {
	committed, err := s.registry.commit(ctx, pool, position)
	if err == nil {
		return committed, nil
	}
	if rerr := receipt.Revert(ctx); rerr != nil {
		s.logger.Error("revert custody moves failed",
			zap.Uint8("pool_id", uint8(pool.ID)),
			zap.Stringer("user", position.User),
			zap.Error(rerr),
		)
		return model.PoolState{}, fmt.Errorf("%w (revert failed: %v)", err, rerr)
	}
	return model.PoolState{}, err
}

// record hands an event to the journal. Journal failures are logged only.
func (s *Service) record(event model.Event) {
	if s.journal == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.journal.PutEventBatch([]model.Event{event}); err != nil {
		s.logger.Warn("journal write failed",
			zap.String("event", string(event.Type)),
			zap.Uint8("pool_id", uint8(event.PoolID)),
			zap.Error(err),
		)
	}
}

func (s *Service) finish(op string, start time.Time, err error, fields ...zap.Field) {
	elapsed := s.now().Sub(start)
	if err != nil {
		kind := Kind(err)
		s.metrics.ObserveOperation(op, kind, elapsed)
		s.logger.Warn(op+" failed", append(fields, zap.String("error_kind", kind), zap.Error(err))...)
		return
	}
	s.metrics.ObserveOperation(op, "ok", elapsed)
	s.logger.Info(op, append(fields, zap.Duration("elapsed", elapsed))...)
}
