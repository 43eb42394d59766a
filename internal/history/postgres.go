package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*PostgresStore)(nil)

const ddlPlays = `
CREATE TABLE IF NOT EXISTS plays (
    id         BIGSERIAL    PRIMARY KEY,
    guild_id   TEXT         NOT NULL,
    user_id    TEXT         NOT NULL DEFAULT '',
    sound      TEXT         NOT NULL,
    remote     BOOLEAN      NOT NULL DEFAULT FALSE,
    played_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_plays_guild_sound
    ON plays (guild_id, sound);
`

// PostgresStore is a [Store] backed by the plays table.
//
// All operations are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies the connection and runs
// [Migrate].
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the plays table and its index if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlPlays); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Record implements [Store].
func (s *PostgresStore) Record(ctx context.Context, p Play) error {
	const q = `
		INSERT INTO plays (guild_id, user_id, sound, remote, played_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.pool.Exec(ctx, q, p.GuildID, p.UserID, p.Sound, p.Remote, playedAt(p)); err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Top implements [Store].
func (s *PostgresStore) Top(ctx context.Context, guildID string, n int) ([]Count, error) {
	const q = `
		SELECT sound, count(*)
		FROM   plays
		WHERE  guild_id = $1
		  AND  NOT remote
		GROUP  BY sound
		ORDER  BY count(*) DESC, sound
		LIMIT  $2`

	limit := any(n)
	if n <= 0 {
		limit = nil // LIMIT NULL is no limit
	}
	rows, err := s.pool.Query(ctx, q, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: top: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Count, error) {
		var c Count
		var plays int64
		if err := row.Scan(&c.Sound, &plays); err != nil {
			return Count{}, err
		}
		c.Plays = int(plays)
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: top: %w", err)
	}
	return out, nil
}

// Close implements [Store].
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
