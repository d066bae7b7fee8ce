// Package store is the persistence boundary: one type per entity family,
// each owning a DB handle and a cache handle, implementing bulk upsert with
// array-parameter expansion, identity remapping for client-proposed ids, and
// cache invalidation on every write.
//
// Grounded on the teacher's storage/postgres.go (array-parameter bulk
// writes over *sql.DB + github.com/lib/pq) generalized from the teacher's
// GTFS-static-feed schema to this spec's realtime/static schema, using the
// exact SQL shapes documented in original_source/backend/src/stores/*.rs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/trainstatus/ingest/cache"
)

// Bulk insert chunking bound, per spec §5 "Shared-resource policy" (stay
// within Postgres's ~65535 parameter-count limit with headroom).
const maxBatchRows = 2700

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) <= size {
		return [][]T{items}
	}
	var out [][]T
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

func marshalData(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// DB is the shared dependency every store embeds.
type DB struct {
	SQL   *sql.DB
	Cache *cache.Cache
}

func ttlFor(entity string) time.Duration {
	switch entity {
	case "routes", "stops", "route_stops":
		return 24 * time.Hour
	default:
		return 30 * time.Second
	}
}

// readThroughWithReset wraps cache.ReadThrough with the cache-reset recovery
// spec §4.4 requires: on ErrTypeMismatch (a stale or incompatible cached
// blob), flush every key under key's prefix and retry the read exactly once.
// A second mismatch is a real bug rather than a stale cache, so it's
// returned as-is instead of looping forever.
func readThroughWithReset[T any](ctx context.Context, c *cache.Cache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	v, err := cache.ReadThrough(ctx, c, key, ttl, fetch)
	if err == nil || !errors.Is(err, cache.ErrTypeMismatch) {
		return v, err
	}
	if rerr := c.Reset(ctx, key); rerr != nil {
		var zero T
		return zero, rerr
	}
	return cache.ReadThrough(ctx, c, key, ttl, fetch)
}
