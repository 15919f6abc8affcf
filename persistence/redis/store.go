// Package redis implements the record store contract on Redis.
package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"vecstore/persistence"
)

var _ persistence.Store = (*store)(nil)

func NewStore(cfg persistence.Config) (persistence.Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	return &store{
		client: redis.NewClient(opts),
	}, nil
}

type store struct {
	client *redis.Client
}

func (s *store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.ErrKeyNotFound
		}
		return nil, err
	}

	return data, nil
}

func (s *store) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return s.client.Del(ctx, keys...).Err()
}

func (s *store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)

	for {
		batch, next, err := s.client.Scan(ctx, cursor, prefix+"*", 1000).Result()
		if err != nil {
			return nil, err
		}

		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

func (s *store) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	values := make([][]byte, len(results))
	for i, result := range results {
		if result == nil {
			continue
		}

		str, ok := result.(string)
		if !ok {
			continue
		}

		values[i] = []byte(str)
	}

	return values, nil
}

func (s *store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *store) Close() error {
	return s.client.Close()
}
