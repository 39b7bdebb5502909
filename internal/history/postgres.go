package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend stores one conversation record per user in a
// PostgreSQL database. Each shard is its own database (or schema),
// reached through its own pool; the store layers nothing across them.
type PostgresBackend struct {
	url  string
	pool *pgxpool.Pool
}

// NewPostgresBackend connects one shard and ensures its schema.
func NewPostgresBackend(ctx context.Context, databaseURL string) (Backend, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initHistorySchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresBackend{url: databaseURL, pool: pool}, nil
}

func initHistorySchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_records (
			id TEXT NOT NULL,
			user_id TEXT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			ephemeral BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_records_updated ON conversation_records (last_updated);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init history schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (p *PostgresBackend) Name() string { return p.url }

func (p *PostgresBackend) Upsert(ctx context.Context, rec Record) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO conversation_records (id, user_id, username, payload, ephemeral, created_at, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO UPDATE SET
			username=EXCLUDED.username,
			payload=EXCLUDED.payload,
			ephemeral=EXCLUDED.ephemeral,
			last_updated=EXCLUDED.last_updated`,
		rec.ID,
		rec.UserID,
		rec.Username,
		rec.Payload,
		rec.Ephemeral,
		rec.CreatedAt,
		rec.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Find(ctx context.Context, userID string) (Record, bool, error) {
	var rec Record
	err := p.pool.QueryRow(ctx,
		`SELECT id, user_id, username, payload, ephemeral, created_at, last_updated
		 FROM conversation_records WHERE user_id=$1`,
		userID,
	).Scan(&rec.ID, &rec.UserID, &rec.Username, &rec.Payload, &rec.Ephemeral, &rec.CreatedAt, &rec.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("find record: %w", err)
	}
	return rec, true, nil
}

// DeleteOlderThan removes expired records. Each delete is a single
// statement, so an interrupted sweep never leaves a record half gone.
func (p *PostgresBackend) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM conversation_records WHERE last_updated < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (p *PostgresBackend) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM conversation_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (p *PostgresBackend) Close() {
	p.pool.Close()
}
