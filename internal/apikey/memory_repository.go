package apikey

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository is an in-memory Repository for tests and local runs.
type InMemoryRepository struct {
	mu   sync.Mutex
	keys map[string]*Key
}

// NewInMemoryRepository creates a repository seeded with the given keys.
func NewInMemoryRepository(keys ...string) *InMemoryRepository {
	r := &InMemoryRepository{keys: make(map[string]*Key)}
	for _, k := range keys {
		r.Add(k, false)
	}
	return r
}

// Add issues a key. Adding an existing key is a no-op.
func (r *InMemoryRepository) Add(key string, premium bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[key]; ok {
		return
	}
	r.keys[key] = &Key{
		ID:        uuid.NewString(),
		Key:       key,
		Premium:   premium,
		CreatedAt: time.Now().UTC(),
	}
}

// Consume increments the key's count.
func (r *InMemoryRepository) Consume(_ context.Context, key string) (*Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	k.Count++
	cpy := *k
	return &cpy, nil
}

// Exists reports whether the key was issued.
func (r *InMemoryRepository) Exists(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.keys[key]
	return ok, nil
}
