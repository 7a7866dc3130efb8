package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the pair under two keys sharing a prefix. Writes and
// removals run inside MULTI/EXEC so the keys never diverge.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a store namespaced by prefix, e.g. "projtrack:ctl:alice:".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, user []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(KeyUser), user, 0)
		pipe.Set(ctx, s.key(KeyAuthenticated), authenticatedValue, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis put: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context) ([]byte, bool, error) {
	values, err := s.client.MGet(ctx, s.key(KeyUser), s.key(KeyAuthenticated)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("session: redis get: %w", err)
	}
	user, _ := values[0].(string)
	flag, _ := values[1].(string)
	if user == "" || flag != authenticatedValue {
		return nil, false, nil
	}
	return []byte(user), true, nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(KeyUser), s.key(KeyAuthenticated))
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis clear: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
