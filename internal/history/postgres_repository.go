package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL history repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Record inserts an entry.
func (r *PostgresRepository) Record(ctx context.Context, entry *Entry) error {
	if err := entry.validate(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	query := `
		INSERT INTO history (id, apikey, kind, input, output, accessed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.APIKey,
		string(entry.Kind),
		[]byte(entry.Input),
		[]byte(entry.Output),
		entry.AccessedAt,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListByAPIKey returns the entries for an API key, newest first.
func (r *PostgresRepository) ListByAPIKey(ctx context.Context, apiKey string) ([]*Entry, error) {
	query := `
		SELECT id, apikey, kind, input, output, accessed_at, created_at
		FROM history
		WHERE apikey = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, apiKey)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		var (
			e      Entry
			kind   string
			input  []byte
			output []byte
		)
		if err := rows.Scan(&e.ID, &e.APIKey, &kind, &input, &output, &e.AccessedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Kind = Kind(kind)
		e.Input = input
		e.Output = output
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return entries, nil
}
