// Package redis provides a cache.Backend on Redis.
//
// Redis has no tag index, so the Gateway uses key-list invalidation; the
// per-tag key lists are Redis sets, which makes tracking atomic across
// processes. Compute locks are SET NX keys holding a random token.
//
// Usage:
//
//	rdb := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	backend := redis.New(rdb, redis.DefaultConfig())
//	gw := cache.New(backend, nil)
package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/dbparser/internal/cache"
	"github.com/koustreak/dbparser/internal/errs"
	goredis "github.com/redis/go-redis/v9"
)

// Config tunes the Redis backend.
type Config struct {
	// Namespace is prepended to lock and registry keys.
	Namespace string

	// LockRetry is the polling interval while waiting for a lock.
	LockRetry time.Duration
}

// DefaultConfig returns the "dbparser" namespace and 50ms lock polling.
func DefaultConfig() *Config {
	return &Config{Namespace: "dbparser", LockRetry: 50 * time.Millisecond}
}

// releaseLock deletes the lock only if it still holds our token.
var releaseLock = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Backend is safe for concurrent use.
type Backend struct {
	rdb goredis.UniversalClient
	cfg Config
}

var (
	_ cache.Backend     = (*Backend)(nil)
	_ cache.Locker      = (*Backend)(nil)
	_ cache.KeyRegistry = (*Backend)(nil)
)

// New wraps an existing client. The caller keeps ownership of rdb.
func New(rdb goredis.UniversalClient, cfg *Config) *Backend {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	c := *cfg
	if c.LockRetry <= 0 {
		c.LockRetry = def.LockRetry
	}
	return &Backend{rdb: rdb, cfg: c}
}

// Ping verifies the server is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapError(err, "get "+key)
	}
	return data, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := b.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return mapError(err, "set "+key)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := b.rdb.Del(ctx, keys...).Err(); err != nil {
		return mapError(err, "delete keys")
	}
	return nil
}

// --- cache.KeyRegistry ---

func (b *Backend) Track(ctx context.Context, tag, key string) error {
	if err := b.rdb.SAdd(ctx, b.registryKey(tag), key).Err(); err != nil {
		return mapError(err, "track "+key)
	}
	return nil
}

func (b *Backend) Keys(ctx context.Context, tag string) ([]string, error) {
	keys, err := b.rdb.SMembers(ctx, b.registryKey(tag)).Result()
	if err != nil {
		return nil, mapError(err, "list keys of "+tag)
	}
	return keys, nil
}

func (b *Backend) Forget(ctx context.Context, tag string) error {
	return b.Delete(ctx, b.registryKey(tag))
}

// --- cache.Locker ---

// Lock polls SET NX until it wins or ctx is done.
func (b *Backend) Lock(ctx context.Context, key string, ttl time.Duration) (cache.Unlock, error) {
	lockKey := b.lockKey(key)
	token := uuid.NewString()

	ticker := time.NewTicker(b.cfg.LockRetry)
	defer ticker.Stop()

	for {
		ok, err := b.rdb.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, mapError(err, "lock "+key)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, errs.Wrap(errs.ErrKindTimeout, "waiting for lock on "+key, ctx.Err())
		}
	}

	return func(ctx context.Context) error {
		if err := releaseLock.Run(ctx, b.rdb, []string{lockKey}, token).Err(); err != nil {
			return mapError(err, "unlock "+key)
		}
		return nil
	}, nil
}

func (b *Backend) registryKey(tag string) string {
	return b.cfg.Namespace + ":registry:" + tag
}

func (b *Backend) lockKey(key string) string {
	return b.cfg.Namespace + ":lock:" + key
}

// mapError translates go-redis errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	if errors.Is(err, goredis.Nil) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}
	var redisErr goredis.Error
	if errors.As(err, &redisErr) {
		switch prefix, _, _ := strings.Cut(redisErr.Error(), " "); prefix {
		case "NOPERM", "NOAUTH", "WRONGPASS":
			return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
		}
		return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
