// Package faststore abstracts the low-latency shared key-value store used by
// the admission guards (idempotence markers, rate-window counters, notified
// flags). The store must offer single-key atomic primitives: set-if-absent
// with expiry and increment. Nothing here requires multi-key transactions.
//
// Two implementations are provided:
//   - Redis: the production store, backed by redis/go-redis.
//   - Memory: a mutex-guarded map with expirations, for tests and local dev.
//
// Clients are constructed explicitly and injected; there is no package-level
// singleton. Lifecycle (connect/close) belongs to the process bootstrap.
package faststore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("faststore: key not found")

// NoTTL is returned by TTL when the key exists but carries no expiry.
const NoTTL = time.Duration(-1)

// Store is the contract required by the admission guards.
//
// All operations are single-key atomic: concurrent SetNX calls on one key
// admit exactly one caller, and concurrent Incr calls never lose updates.
type Store interface {
	// SetNX sets key to value with the given TTL only if the key is absent.
	// It reports whether this call created the key.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Incr atomically increments the integer value at key (creating it at 0
	// first if absent) and returns the post-increment value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the TTL of an existing key. It reports whether a TTL was set
	// (false when the key does not exist).
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// TTL returns the remaining lifetime of key. It returns NoTTL (negative)
	// when the key has no expiry, and an error wrapping ErrNotFound when the
	// key is absent.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Get returns the string value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Del removes a key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error

	// Ping verifies connectivity. Used by readiness probes.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
