// Package persist stores the dashboard's durable client state as JSON blobs
// under fixed keys. Each blob is wrapped the same way regardless of backend:
//
//	{ "state": { ... }, "version": 0 }
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/medcampus/analytics-dashboard/internal/serviceerr"
)

const (
	KeyAuth = "auth-storage"
	KeyUI   = "ui-storage"
)

// Version of the envelope layout written by Save.
const Version = 0

// Store is a key/value store for raw JSON blobs.
// Get returns an error matching serviceerr.ErrNotFound for a missing key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type envelope[T any] struct {
	State   T   `json:"state"`
	Version int `json:"version"`
}

// Load decodes the state stored under key. A missing key yields the zero value
// of T and an error matching serviceerr.ErrNotFound.
func Load[T any](ctx context.Context, s Store, key string) (T, error) {
	var zero T

	raw, err := s.Get(ctx, key)
	if err != nil {
		return zero, err
	}

	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, errors.Join(serviceerr.ErrDecode, fmt.Errorf("decoding %s: %w", key, err))
	}

	return env.State, nil
}

// Save encodes state under key, replacing any previous value.
func Save[T any](ctx context.Context, s Store, key string, state T) error {
	raw, err := json.Marshal(envelope[T]{State: state, Version: Version})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	return s.Set(ctx, key, raw)
}
