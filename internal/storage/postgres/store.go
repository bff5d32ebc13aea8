// Package postgres provides the Postgres-backed game store.
//
// Assumed schema (managed externally):
//
//	games(app_id BIGINT PRIMARY KEY, title TEXT NOT NULL, description TEXT,
//	      detailed_description TEXT, release_date DATE, developer TEXT,
//	      publisher TEXT, header_image_url TEXT,
//	      system_requirements_minimum TEXT, system_requirements_recommended TEXT,
//	      metacritic_score INT, synced_at TIMESTAMPTZ)
//	game_tags(app_id BIGINT, tag_name VARCHAR(100), tag_order INT,
//	          UNIQUE (app_id, tag_name))
//	game_genres(app_id BIGINT, genre_name VARCHAR(50),
//	            UNIQUE (app_id, genre_name))
//	game_pricing(app_id BIGINT PRIMARY KEY, current_price TEXT,
//	             original_price TEXT, discount_percent INT, is_free BOOL,
//	             updated_at TIMESTAMPTZ)
//	game_reviews(app_id BIGINT PRIMARY KEY, recent_summary TEXT,
//	             overall_summary TEXT, recent_count BIGINT, overall_count BIGINT,
//	             recent_positive_percent INT, overall_positive_percent INT,
//	             updated_at TIMESTAMPTZ)
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nohvenell/steam-game-crawler/internal/game"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// db is the pool surface the store needs; satisfied by *pgxpool.Pool
// and by pgxmock pools in tests.
type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// GameStore implements game.Store on Postgres.
type GameStore struct {
	pool db
}

// New connects a pool and verifies it with a ping.
func New(ctx context.Context, cfg Config) (*GameStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &GameStore{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool db) (*GameStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &GameStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *GameStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies connectivity.
func (s *GameStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("game store is not configured")
	}
	return s.pool.Ping(ctx)
}

// WithTx runs fn inside one transaction. Any error from fn rolls back
// every mutation of the batch.
func (s *GameStore) WithTx(ctx context.Context, fn func(game.Tx) error) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("game store is not configured")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}
	gtx := &gameTx{tx: tx}
	if err := fn(gtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			return fmt.Errorf("rollback batch (after %v): %w", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// gameTx implements game.Tx over one pgx transaction.
type gameTx struct {
	tx pgx.Tx
}

var gameColumns = []string{
	"app_id", "title", "description", "detailed_description", "release_date",
	"developer", "publisher", "header_image_url",
	"system_requirements_minimum", "system_requirements_recommended",
	"metacritic_score", "synced_at",
}

// ExistingIDs resolves which of ids already have a games row using a
// single set-membership query.
func (t *gameTx) ExistingIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	existing := make(map[int64]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT app_id FROM games WHERE app_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query existing ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan existing id: %w", err)
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing ids: %w", err)
	}
	return existing, nil
}

// InsertGames bulk-inserts full game rows. Duplicate keys fail the copy
// and with it the whole batch; the NEW path never updates in place.
func (t *gameTx) InsertGames(ctx context.Context, rows []game.GameRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := t.tx.CopyFrom(ctx, pgx.Identifier{"games"}, gameColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				r.AppID, r.Title, r.Description, r.DetailedDescription, r.ReleaseDate,
				r.Developer, r.Publisher, r.HeaderImageURL,
				r.SysReqMinimum, r.SysReqRecommended,
				r.MetacriticScore, r.SyncedAt,
			}, nil
		}))
	if err != nil {
		return fmt.Errorf("bulk insert games: %w", err)
	}
	return nil
}

// GetGame loads one games row. The text columns are nullable and
// legacy rows store NULL for missing fields; they read back as empty
// strings so the non-empty update rule sees them as absent.
func (t *gameTx) GetGame(ctx context.Context, appID int64) (game.GameRow, error) {
	var r game.GameRow
	err := t.tx.QueryRow(ctx, `
SELECT app_id, title, COALESCE(description, ''), COALESCE(detailed_description, ''),
       release_date, COALESCE(developer, ''), COALESCE(publisher, ''),
       COALESCE(header_image_url, ''),
       COALESCE(system_requirements_minimum, ''),
       COALESCE(system_requirements_recommended, ''),
       metacritic_score, synced_at
FROM games WHERE app_id = $1`, appID).Scan(
		&r.AppID, &r.Title, &r.Description, &r.DetailedDescription, &r.ReleaseDate,
		&r.Developer, &r.Publisher, &r.HeaderImageURL,
		&r.SysReqMinimum, &r.SysReqRecommended,
		&r.MetacriticScore, &r.SyncedAt,
	)
	if err != nil {
		return game.GameRow{}, fmt.Errorf("get game %d: %w", appID, err)
	}
	return r, nil
}

// UpdateGame writes only the changed columns plus the sync timestamp.
func (t *gameTx) UpdateGame(ctx context.Context, appID int64, changes []game.FieldChange, syncedAt time.Time) error {
	if len(changes) == 0 {
		return nil
	}
	query, args, err := buildGameUpdate(appID, changes, syncedAt)
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update game %d: %w", appID, err)
	}
	return nil
}
