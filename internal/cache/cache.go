// Package cache defines the storage contracts for cached schema data and
// the Gateway that layers get-or-compute, single-flight and invalidation
// on top of them.
//
// Backends live in sub-packages (memory, redis, postgres, minio). Each one
// implements Backend and, where the storage can do it, the optional
// Tagger, TagSetter, Locker, KeyRegistry and Purger capabilities. The Gateway detects them
// once at construction.
//
// Usage:
//
//	gw := cache.New(memory.New(), nil)
//	tbl, err := cache.GetOrCompute(ctx, gw, "app.tables.users", 24*time.Hour,
//	    []string{"app.db.table"}, loadUsers)
package cache

import (
	"context"
	"time"
)

// Backend is the minimal storage contract. A ttl <= 0 means no expiry.
// Get reports a miss as (nil, false, nil), never as an error.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Tagger is implemented by backends that can drop every entry carrying a
// tag in one call.
type Tagger interface {
	Tag(ctx context.Context, key string, tags ...string) error
	InvalidateTags(ctx context.Context, tags ...string) error
}

// Unlock releases a lock obtained from Locker.
type Unlock func(ctx context.Context) error

// Locker is implemented by backends that can serialise work on a key across
// processes. Lock blocks until the lock is held or ctx is done. The lock
// expires on its own after ttl so a crashed holder cannot wedge a key.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

// KeyRegistry remembers which keys were issued under a tag. Backends with
// native set types implement it; others get one stored through Backend.
type KeyRegistry interface {
	Track(ctx context.Context, tag, key string) error
	Keys(ctx context.Context, tag string) ([]string, error)
	Forget(ctx context.Context, tag string) error
}

// TagSetter is implemented by tag-aware backends that can write an entry
// and its tags in one atomic step. Without it a tag invalidation that runs
// between Set and Tag leaves the new entry untagged, and it survives.
type TagSetter interface {
	SetTagged(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error
}

// Purger is implemented by backends that keep expired entries until they
// are read. Purge reclaims them and reports how many were removed.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}
