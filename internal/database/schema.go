package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the tables the API reads and writes. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS apikeys (
		id         TEXT PRIMARY KEY,
		apikey     TEXT NOT NULL UNIQUE,
		premium    BOOLEAN NOT NULL DEFAULT FALSE,
		count      BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS history (
		id          TEXT PRIMARY KEY,
		apikey      TEXT NOT NULL,
		kind        TEXT NOT NULL,
		input       JSONB NOT NULL,
		output      JSONB NOT NULL,
		accessed_at TIMESTAMPTZ NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS history_apikey_created_at_idx ON history (apikey, created_at DESC)`,
}

// EnsureSchema applies Schema in a single transaction.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range Schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
