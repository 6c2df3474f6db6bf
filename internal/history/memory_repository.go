package history

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryRepository is an in-memory Repository for tests and local runs.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Record stores a copy of entry.
func (r *InMemoryRepository) Record(_ context.Context, entry *Entry) error {
	if err := entry.validate(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cpy := *entry
	r.entries = append(r.entries, &cpy)
	return nil
}

// ListByAPIKey returns copies of the matching entries, newest first.
func (r *InMemoryRepository) ListByAPIKey(_ context.Context, apiKey string) ([]*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0)
	for _, e := range r.entries {
		if e.APIKey == apiKey {
			cpy := *e
			out = append(out, &cpy)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
