// Package memory is the persistent memory side of the bus: a Postgres-backed
// store of free-text memories with full-text recall, fronted by a service
// that answers the memory request events.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"penny.bot/bus"
)

var ErrNotFound = errors.New("memory not found")

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id uuid PRIMARY KEY,
	body text NOT NULL,
	metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
	created_at timestamptz NOT NULL DEFAULT now(),
	search tsvector GENERATED ALWAYS AS (to_tsvector('english', body)) STORED
);
CREATE INDEX IF NOT EXISTS memories_search_idx ON memories USING gin (search);
`

// PostgresStore persists memories in a single table with a generated
// tsvector column for recall ranking.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(
	ctx context.Context,
	databaseURL string,
) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure memories schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Add(
	ctx context.Context,
	text string,
	metadata map[string]string,
) (string, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	id := uuid.NewString()

	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO memories (id, body, metadata) VALUES ($1, $2, $3)`,
		id,
		text,
		metadata,
	)
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Query(
	ctx context.Context,
	query string,
	limit int,
) ([]bus.MemoryEntry, error) {
	if limit < 1 {
		limit = 5
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT m.id, m.body, m.metadata, ts_rank(m.search, q) AS rank
		 FROM memories m, websearch_to_tsquery('english', $1) q
		 WHERE m.search @@ q
		 ORDER BY rank DESC
		 LIMIT $2`,
		query,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var entries []bus.MemoryEntry
	for rows.Next() {
		var e bus.MemoryEntry
		if err := rows.Scan(&e.ID, &e.Text, &e.Metadata, &e.Rank); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Recent returns the newest memories, newest first. Used by the CLI listing.
func (s *PostgresStore) Recent(
	ctx context.Context,
	limit int,
) ([]bus.MemoryEntry, error) {
	if limit < 1 {
		limit = 20
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT id, body, metadata FROM memories
		 ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var entries []bus.MemoryEntry
	for rows.Next() {
		var e bus.MemoryEntry
		if err := rows.Scan(&e.ID, &e.Text, &e.Metadata); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
