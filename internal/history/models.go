// Package history persists the inputs and outputs of prediction requests per API key.
package history

import (
	"encoding/json"
	"errors"
	"time"
)

// Kind is the request type a history entry records.
type Kind string

const (
	KindFeatures      Kind = "features"
	KindInterpolation Kind = "interpolation"
	KindError         Kind = "error"
	KindRinex         Kind = "rinex"
)

// ErrInvalidEntry is returned when an entry lacks an API key or kind.
var ErrInvalidEntry = errors.New("invalid history entry")

// Entry is one recorded request.
type Entry struct {
	ID         string          `json:"id"`
	APIKey     string          `json:"apiKey"`
	Kind       Kind            `json:"kind"`
	Input      json.RawMessage `json:"input"`
	Output     json.RawMessage `json:"output"`
	AccessedAt time.Time       `json:"accessedAt"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// NewEntry marshals input and output into an entry stamped at now.
func NewEntry(apiKey string, kind Kind, input, output any, now time.Time) (*Entry, error) {
	in, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	return &Entry{
		APIKey:     apiKey,
		Kind:       kind,
		Input:      in,
		Output:     out,
		AccessedAt: now.UTC(),
		CreatedAt:  now.UTC(),
	}, nil
}

func (e *Entry) validate() error {
	if e.APIKey == "" || e.Kind == "" {
		return ErrInvalidEntry
	}
	return nil
}
