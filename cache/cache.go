// Package cache implements the read-through cache helper shared by every
// store: try the cache, fall back to the backing fetch function on a miss,
// and populate the cache with the result under a TTL.
//
// Grounded on original_source/backend/src/stores/mod.rs (read_through) and
// the teacher's cache-as-sidecar conventions; go-redis is adopted per the
// pack's manifests (wudi-gateway, BLxcwg666-mx-core-go) since the teacher
// itself has no cache layer.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// ErrTypeMismatch is returned by ReadThrough's fetch function (or detected
// internally) when a cached value can't be decoded into the requested type
// — the signal that triggers cache-reset recovery in the store layer.
var ErrTypeMismatch = errors.New("cache: stored value has unexpected shape")

// ReadThrough fetches a JSON-encoded value from key. On a cache miss it
// calls fetch, stores the JSON-encoded result under ttl, and returns it. A
// decode failure on the cached value is reported as ErrTypeMismatch so
// callers can perform cache-reset recovery (spec §4.4); ReadThrough itself
// does not retry — retry policy belongs to the caller, which is in a
// position to bound it to one attempt, per Design Notes §9.
func ReadThrough[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	cached, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if jsonErr := json.Unmarshal(cached, &v); jsonErr != nil {
			return zero, ErrTypeMismatch
		}
		return v, nil
	case errors.Is(err, redis.Nil):
		// miss, fall through to fetch
	default:
		// Cache unreachable: degrade to the backing fetch rather than
		// failing the read outright (reads never 5xx on cache/adapter
		// hiccups alone per spec §7, except true unreachability at the API
		// boundary, which is out of this package's concern).
	}

	v, err := fetch(ctx)
	if err != nil {
		return zero, err
	}

	if encoded, err := json.Marshal(v); err == nil {
		_ = c.client.Set(ctx, key, encoded, ttl).Err()
	}

	return v, nil
}

// Invalidate deletes key, used by every store after a successful write.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// Reset flushes every key matching prefix+"*", used by cache-reset recovery
// to force a subsequent ReadThrough to repopulate from the DB.
func (c *Cache) Reset(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
