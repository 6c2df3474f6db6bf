// Package apikey tracks API keys and counts their use.
package apikey

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned for keys that were never issued.
var ErrKeyNotFound = errors.New("api key not found")

// Key is an issued API key with its usage counter.
type Key struct {
	ID        string    `json:"id"`
	Key       string    `json:"-"`
	Premium   bool      `json:"premium"`
	Count     int64     `json:"count"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository defines API-key persistence.
type Repository interface {
	// Consume atomically increments the key's usage count and returns the updated key.
	// Returns ErrKeyNotFound for unknown keys.
	Consume(ctx context.Context, key string) (*Key, error)

	// Exists reports whether the key was issued, without counting a use.
	Exists(ctx context.Context, key string) (bool, error)
}
