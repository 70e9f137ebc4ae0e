package compute

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// OnlineStore is the minimal serving-store surface the engine needs: one
// hash per feature group, keyed by primary key tuple.
type OnlineStore interface {
	HSet(ctx context.Context, key string, values map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	Del(ctx context.Context, key string) error
}

// RedisOnlineStore backs the online feature store with Redis.
type RedisOnlineStore struct {
	rdb *redis.Client
}

func NewRedisOnlineStore(rdb *redis.Client) *RedisOnlineStore {
	return &RedisOnlineStore{rdb: rdb}
}

func (s *RedisOnlineStore) HSet(ctx context.Context, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	return s.rdb.HSet(ctx, key, values).Err()
}

func (s *RedisOnlineStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, key).Result()
}

func (s *RedisOnlineStore) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return s.rdb.HDel(ctx, key, fields...).Err()
}

func (s *RedisOnlineStore) Del(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
