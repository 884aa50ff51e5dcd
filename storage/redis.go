package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisHash is the hash holding every entry when none is configured.
const DefaultRedisHash = "tenantauth:storage"

// Redis is a Backend kept in a single Redis hash, so records are shared by
// every process pointing at the same server.
type Redis struct {
	client redis.UniversalClient
	hash   string
}

// RedisOption customizes a Redis backend.
type RedisOption func(*Redis)

// WithRedisHash sets the hash key entries are stored under.
func WithRedisHash(hash string) RedisOption {
	return func(r *Redis) {
		if hash != "" {
			r.hash = hash
		}
	}
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, hash: DefaultRedisHash}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// NewRedisFromURL connects to the server described by a redis:// URL.
func NewRedisFromURL(rawURL string, opts ...RedisOption) (*Redis, error) {
	if rawURL == "" {
		return nil, errors.New("redis url is required")
	}
	options, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(options), opts...), nil
}

// Ping checks the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.HGet(ctx, r.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget %s: %w", key, err)
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.HSet(ctx, r.hash, key, value).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, r.hash, key).Err(); err != nil {
		return fmt.Errorf("redis hdel %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.client.HKeys(ctx, r.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hkeys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
