package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rugpullsim/internal/model"
	"rugpullsim/internal/storage"
)

// Schema creates the tables the store reads and writes. Unsigned 64-bit
// quantities are kept as NUMERIC(20,0).
const Schema = `
CREATE TABLE IF NOT EXISTS pools (
	pool_id SMALLINT PRIMARY KEY,
	address TEXT NOT NULL,
	vault_a TEXT NOT NULL,
	vault_b TEXT NOT NULL,
	mint_a TEXT NOT NULL,
	mint_b TEXT NOT NULL,
	authority TEXT NOT NULL,
	total_lp_supply NUMERIC(20,0) NOT NULL DEFAULT 0,
	version NUMERIC(20,0) NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS positions (
	pool_id SMALLINT NOT NULL REFERENCES pools(pool_id),
	owner TEXT NOT NULL,
	lp_tokens NUMERIC(20,0) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_id, owner)
);

CREATE TABLE IF NOT EXISTS pool_window_metrics (
	pool_id SMALLINT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts TIMESTAMPTZ NOT NULL,
	window_end_ts TIMESTAMPTZ NOT NULL,
	swap_count BIGINT NOT NULL,
	volume_a NUMERIC NOT NULL,
	volume_b NUMERIC NOT NULL,
	deposited_a NUMERIC NOT NULL,
	deposited_b NUMERIC NOT NULL,
	withdrawn_a NUMERIC NOT NULL,
	withdrawn_b NUMERIC NOT NULL,
	drained_a NUMERIC NOT NULL,
	drained_b NUMERIC NOT NULL,
	lp_minted NUMERIC NOT NULL,
	lp_burned NUMERIC NOT NULL,
	closing_reserve_a NUMERIC NOT NULL,
	closing_reserve_b NUMERIC NOT NULL,
	closing_lp_supply NUMERIC NOT NULL,
	drained BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_id, window_size_seconds, window_start_ts)
);

CREATE TABLE IF NOT EXISTS analytics_state (
	name TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for pools, positions and window metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const poolColumns = `pool_id, address, vault_a, vault_b, mint_a, mint_b, authority,
	total_lp_supply::text, version::text, created_at`

func scanPool(row pgx.Row) (model.PoolState, error) {
	var (
		id                                           int16
		address, vaultA, vaultB, mintA, mintB, owner string
		supply, version                              string
		createdAt                                    time.Time
	)
	if err := row.Scan(&id, &address, &vaultA, &vaultB, &mintA, &mintB, &owner, &supply, &version, &createdAt); err != nil {
		return model.PoolState{}, err
	}

	pool := model.PoolState{ID: model.PoolID(id), CreatedAt: createdAt.UTC()}
	keys := []struct {
		dst *solana.PublicKey
		src string
	}{
		{&pool.Address, address},
		{&pool.VaultA, vaultA},
		{&pool.VaultB, vaultB},
		{&pool.MintA, mintA},
		{&pool.MintB, mintB},
		{&pool.Authority, owner},
	}
	for _, k := range keys {
		key, err := solana.PublicKeyFromBase58(k.src)
		if err != nil {
			return model.PoolState{}, fmt.Errorf("parse pool %d key %q: %w", id, k.src, err)
		}
		*k.dst = key
	}

	var err error
	if pool.TotalLPSupply, err = strconv.ParseUint(supply, 10, 64); err != nil {
		return model.PoolState{}, fmt.Errorf("parse pool %d supply: %w", id, err)
	}
	if pool.Version, err = strconv.ParseUint(version, 10, 64); err != nil {
		return model.PoolState{}, fmt.Errorf("parse pool %d version: %w", id, err)
	}
	return pool, nil
}

func scanPosition(row pgx.Row) (model.UserPosition, error) {
	var (
		id     int16
		owner  string
		tokens string
	)
	if err := row.Scan(&id, &owner, &tokens); err != nil {
		return model.UserPosition{}, err
	}
	user, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return model.UserPosition{}, fmt.Errorf("parse position owner %q: %w", owner, err)
	}
	lp, err := strconv.ParseUint(tokens, 10, 64)
	if err != nil {
		return model.UserPosition{}, fmt.Errorf("parse position lp: %w", err)
	}
	return model.UserPosition{User: user, PoolID: model.PoolID(id), LPTokens: lp}, nil
}

func (s *Store) GetPool(ctx context.Context, id model.PoolID) (model.PoolState, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE pool_id=$1`, int16(id))
	pool, err := scanPool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolState{}, fmt.Errorf("pool %d: %w", id, storage.ErrNotFound)
		}
		return model.PoolState{}, err
	}
	return pool, nil
}

func (s *Store) ListPools(ctx context.Context) ([]model.PoolState, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY pool_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PoolState
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pool)
	}
	return out, rows.Err()
}

func (s *Store) InsertPool(ctx context.Context, pool model.PoolState) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO pools (
			pool_id, address, vault_a, vault_b, mint_a, mint_b, authority,
			total_lp_supply, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
		ON CONFLICT (pool_id) DO NOTHING
	`,
		int16(pool.ID),
		pool.Address.String(),
		pool.VaultA.String(),
		pool.VaultB.String(),
		pool.MintA.String(),
		pool.MintB.String(),
		pool.Authority.String(),
		strconv.FormatUint(pool.TotalLPSupply, 10),
		strconv.FormatUint(pool.Version, 10),
		pool.CreatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pool %d: %w", pool.ID, storage.ErrAlreadyExists)
	}
	return nil
}

func (s *Store) GetPosition(ctx context.Context, user solana.PublicKey, id model.PoolID) (model.UserPosition, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT pool_id, owner, lp_tokens::text FROM positions WHERE pool_id=$1 AND owner=$2
	`, int16(id), user.String())
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.UserPosition{}, fmt.Errorf("position %s/%d: %w", user, id, storage.ErrNotFound)
		}
		return model.UserPosition{}, err
	}
	return pos, nil
}

func (s *Store) ListPositions(ctx context.Context, id model.PoolID) ([]model.UserPosition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pool_id, owner, lp_tokens::text FROM positions WHERE pool_id=$1 ORDER BY owner
	`, int16(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.UserPosition, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

// CommitLiquidity updates the pool row guarded by its version and upserts the
// position in the same transaction.
func (s *Store) CommitLiquidity(ctx context.Context, pool model.PoolState, expectedVersion uint64, position model.UserPosition) error {
	if position.PoolID != pool.ID {
		return fmt.Errorf("position pool %d does not match pool %d", position.PoolID, pool.ID)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE pools
			SET total_lp_supply = $2, version = $3, updated_at = now()
			WHERE pool_id = $1 AND version = $4
		`,
			int16(pool.ID),
			strconv.FormatUint(pool.TotalLPSupply, 10),
			strconv.FormatUint(pool.Version, 10),
			strconv.FormatUint(expectedVersion, 10),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			if _, err := s.GetPool(ctx, pool.ID); err != nil {
				return err
			}
			return fmt.Errorf("pool %d expected version %d: %w", pool.ID, expectedVersion, storage.ErrConflict)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO positions (pool_id, owner, lp_tokens, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (pool_id, owner) DO UPDATE
			SET lp_tokens = EXCLUDED.lp_tokens, updated_at = now()
		`, int16(position.PoolID), position.User.String(), strconv.FormatUint(position.LPTokens, 10))
		return err
	})
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				pool_id, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, volume_a, volume_b, deposited_a, deposited_b,
				withdrawn_a, withdrawn_b, drained_a, drained_b, lp_minted, lp_burned,
				closing_reserve_a, closing_reserve_b, closing_lp_supply, drained, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,now(),now())
			ON CONFLICT (pool_id, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				volume_a = EXCLUDED.volume_a,
				volume_b = EXCLUDED.volume_b,
				deposited_a = EXCLUDED.deposited_a,
				deposited_b = EXCLUDED.deposited_b,
				withdrawn_a = EXCLUDED.withdrawn_a,
				withdrawn_b = EXCLUDED.withdrawn_b,
				drained_a = EXCLUDED.drained_a,
				drained_b = EXCLUDED.drained_b,
				lp_minted = EXCLUDED.lp_minted,
				lp_burned = EXCLUDED.lp_burned,
				closing_reserve_a = EXCLUDED.closing_reserve_a,
				closing_reserve_b = EXCLUDED.closing_reserve_b,
				closing_lp_supply = EXCLUDED.closing_lp_supply,
				drained = EXCLUDED.drained,
				updated_at = now()
		`,
			int16(m.PoolID),
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			m.VolumeA,
			m.VolumeB,
			m.DepositedA,
			m.DepositedB,
			m.WithdrawnA,
			m.WithdrawnB,
			m.DrainedA,
			m.DrainedB,
			m.LPMinted,
			m.LPBurned,
			m.ClosingReserveA,
			m.ClosingReserveB,
			m.ClosingLPSupply,
			m.Drained,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metrics {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM analytics_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO analytics_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

var _ storage.Store = (*Store)(nil)
