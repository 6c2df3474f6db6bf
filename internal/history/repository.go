package history

import "context"

// Repository defines history persistence.
type Repository interface {
	// Record stores an entry, assigning an ID when it has none.
	Record(ctx context.Context, entry *Entry) error

	// ListByAPIKey returns the entries for an API key, newest first.
	ListByAPIKey(ctx context.Context, apiKey string) ([]*Entry, error)
}
