package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedsync/internal/observability"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces every key written by RedisStore.
const RedisKeyPrefix = "feedsync:session:"

type metricsHook struct{}

func (h metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.SessionStoreErrors.WithLabelValues("redis", cmd.Name()).Inc()
		}
		return err
	}
}

func (h metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.SessionStoreErrors.WithLabelValues("redis", "pipeline").Inc()
		}
		return err
	}
}

// RedisStore keeps session keys in Redis.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to addr, which may be host:port or a redis:// URL.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL %q: %w", addr, err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreWithClient(rdb), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(rdb *redis.Client) *RedisStore {
	rdb.AddHook(metricsHook{})
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, RedisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, RedisKeyPrefix+key, value, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, RedisKeyPrefix+key).Err()
}

func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := s.rdb.Scan(ctx, 0, RedisKeyPrefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), RedisKeyPrefix))
	}
	return out, iter.Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx, "")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, RedisKeyPrefix+k)
	}
	return s.rdb.Del(ctx, full...).Err()
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
