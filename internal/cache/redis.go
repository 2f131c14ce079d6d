package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the shared Redis cache backend. Nested under a
// field named Redis it reads REDIS_URL, REDIS_READ_TIMEOUT and so on.
type RedisConfig struct {
	URL          string `split_words:"true"`
	ReadTimeout  int    `split_words:"true" default:"3"`
	WriteTimeout int    `split_words:"true" default:"3"`
	DialTimeout  int    `split_words:"true" default:"5"`
}

// Enabled reports whether a Redis URL was configured.
func (c *RedisConfig) Enabled() bool {
	return c.URL != ""
}

// New connects to Redis and verifies the connection with PING.
func (c *RedisConfig) New() (*redis.Client, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, err
	}
	opts.ReadTimeout = time.Duration(c.ReadTimeout) * time.Second
	opts.WriteTimeout = time.Duration(c.WriteTimeout) * time.Second
	opts.DialTimeout = time.Duration(c.DialTimeout) * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Redis is a Cache shared between server replicas. Values are stored as JSON
// under "<prefix>:<key>".
type Redis[V any] struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis-backed cache namespaced by prefix.
func NewRedis[V any](rdb redis.Cmdable, prefix string, ttl time.Duration) *Redis[V] {
	return &Redis[V]{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis[V]) key(k string) string {
	return r.prefix + ":" + k
}

// Get returns the cached value. Missing keys and Redis errors are misses.
func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	raw, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Redis.Get: cache read failed", "key", r.key(key), "error", err)
		}
		return zero, false
	}
	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("Redis.Get: failed to decode cached value", "key", r.key(key), "error", err)
		return zero, false
	}
	return v, true
}

// Set stores value with the cache TTL.
func (r *Redis[V]) Set(ctx context.Context, key string, value V) {
	if r.ttl <= 0 {
		return
	}
	b, err := json.Marshal(value)
	if err != nil {
		slog.Warn("Redis.Set: failed to encode value", "key", r.key(key), "error", err)
		return
	}
	if err := r.rdb.Set(ctx, r.key(key), b, r.ttl).Err(); err != nil {
		slog.Warn("Redis.Set: cache write failed", "key", r.key(key), "error", err)
	}
}

// Invalidate deletes a single key.
func (r *Redis[V]) Invalidate(ctx context.Context, key string) {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		slog.Warn("Redis.Invalidate: delete failed", "key", r.key(key), "error", err)
	}
}

// Clear deletes every key under the cache prefix.
func (r *Redis[V]) Clear(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.prefix+":*", 100).Result()
		if err != nil {
			slog.Warn("Redis.Clear: scan failed", "prefix", r.prefix, "error", err)
			return
		}
		if len(keys) > 0 {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("Redis.Clear: delete failed", "prefix", r.prefix, "error", err)
				return
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

var _ Cache[int] = (*Redis[int])(nil)

// Factory builds caches of a given TTL, backed by Redis when a client is set.
type Factory struct {
	Client redis.Cmdable
}

// NewCache returns a cache for values of type V.
func NewCache[V any](f Factory, prefix string, ttl time.Duration) Cache[V] {
	if f.Client != nil {
		return NewRedis[V](f.Client, "botrouter:"+prefix, ttl)
	}
	return NewMemory[V](ttl)
}
