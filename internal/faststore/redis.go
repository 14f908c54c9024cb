package faststore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store on top of a redis/go-redis client. The client is
// injected so the caller owns connection lifecycle and can share one client
// between the fast-store and the job queue.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing Redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// NewRedisClient constructs a go-redis client for the given address. Callers
// should Ping before use and Close on shutdown.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// SetNX implements Store.
func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("faststore: setnx %s: %w", key, err)
	}
	return ok, nil
}

// Incr implements Store.
func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("faststore: incr %s: %w", key, err)
	}
	return n, nil
}

// Expire implements Store.
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("faststore: expire %s: %w", key, err)
	}
	return ok, nil
}

// TTL implements Store. Redis reports -1 for "exists, no expiry" and -2 for
// "no such key"; both come back as negative durations from go-redis.
func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("faststore: ttl %s: %w", key, err)
	}
	if d < NoTTL {
		return 0, fmt.Errorf("faststore: ttl %s: %w", key, ErrNotFound)
	}
	if d < 0 {
		return NoTTL, nil
	}
	return d, nil
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("faststore: get %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("faststore: get %s: %w", key, err)
	}
	return v, nil
}

// Del implements Store.
func (r *Redis) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("faststore: del %s: %w", key, err)
	}
	return nil
}

// Ping implements Store.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements Store.
func (r *Redis) Close() error {
	return r.client.Close()
}
