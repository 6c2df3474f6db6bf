package apikey

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL API-key repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Consume increments the usage count in a single UPDATE ... RETURNING.
func (r *PostgresRepository) Consume(ctx context.Context, key string) (*Key, error) {
	query := `
		UPDATE apikeys
		SET count = count + 1
		WHERE apikey = $1
		RETURNING id, apikey, premium, count, created_at
	`

	var k Key
	err := r.pool.QueryRow(ctx, query, key).Scan(&k.ID, &k.Key, &k.Premium, &k.Count, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("consume api key: %w", err)
	}
	return &k, nil
}

// Exists reports whether the key was issued.
func (r *PostgresRepository) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM apikeys WHERE apikey = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check api key: %w", err)
	}
	return exists, nil
}
