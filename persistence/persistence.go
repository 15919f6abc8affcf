// Package persistence defines the contract for the durable record store
// backing the vector collections.
package persistence

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

type Config struct {
	URL string `yaml:"url"`
}

// Store is a typed wrapper over an external key-value store. Keys are
// namespaced per collection, e.g. "content:<id>" and "user:<id>".
type Store interface {
	// Get returns the value for a key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value under a key, overwriting any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Keys enumerates all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// MGet fetches multiple keys in one round trip. The result has one
	// element per key; absent keys yield a nil element.
	MGet(ctx context.Context, keys []string) ([][]byte, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
