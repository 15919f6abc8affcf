// Package inmem implements the record store contract in process memory.
// It backs tests and local single-node runs; nothing survives a restart.
package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"

	"vecstore/persistence"
)

var _ persistence.Store = (*store)(nil)

func NewStore() persistence.Store {
	return &store{
		data: make(map[string][]byte),
	}
}

type store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func (s *store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, persistence.ErrKeyNotFound
	}

	out := make([]byte, len(value))
	copy(out, value)

	return out, nil
}

func (s *store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	s.data[key] = stored
	return nil
}

func (s *store) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.data, key)
	}

	return nil
}

// Keys returns matching keys in lexicographic order so rebuilds enumerate
// records deterministically.
func (s *store) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0)
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *store) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make([][]byte, len(keys))
	for i, key := range keys {
		value, ok := s.data[key]
		if !ok {
			continue
		}

		out := make([]byte, len(value))
		copy(out, value)

		values[i] = out
	}

	return values, nil
}

func (s *store) Ping(ctx context.Context) error {
	return nil
}

func (s *store) Close() error {
	return nil
}
