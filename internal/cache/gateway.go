package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/koustreak/dbparser/internal/errs"
	"github.com/koustreak/dbparser/internal/logger"
	"golang.org/x/sync/singleflight"
)

// Config tunes a Gateway.
type Config struct {
	// LockTTL bounds how long a cross-process compute lock is held before
	// it expires on its own.
	LockTTL time.Duration

	// ComputeTimeout bounds one shared compute. The compute is detached
	// from the caller that started it, so this is its only deadline.
	// Zero means LockTTL.
	ComputeTimeout time.Duration

	Logger *logger.Logger
}

// DefaultConfig returns a 30 second lock TTL and a no-op logger.
func DefaultConfig() *Config {
	return &Config{LockTTL: 30 * time.Second, Logger: logger.Nop()}
}

// Gateway is the single entry point to a Backend. It is safe for
// concurrent use and is meant to be created once by the host application
// and shared.
type Gateway struct {
	backend        Backend
	invalidation   Invalidation
	tagSetter      TagSetter
	locker         Locker
	lockTTL        time.Duration
	computeTimeout time.Duration
	group          singleflight.Group
	log            *logger.Logger
}

// New builds a Gateway over backend, choosing tag invalidation when the
// backend implements Tagger and key-list invalidation otherwise. A nil cfg
// means DefaultConfig.
func New(backend Backend, cfg *Config) *Gateway {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = DefaultConfig().LockTTL
	}
	computeTimeout := cfg.ComputeTimeout
	if computeTimeout <= 0 {
		computeTimeout = lockTTL
	}

	g := &Gateway{
		backend:        backend,
		lockTTL:        lockTTL,
		computeTimeout: computeTimeout,
	}

	if t, ok := backend.(Tagger); ok {
		g.invalidation = NewTagInvalidation(t)
		if ts, ok := backend.(TagSetter); ok {
			g.tagSetter = ts
		}
	} else {
		registry, ok := backend.(KeyRegistry)
		if !ok {
			registry = NewBackendRegistry(backend)
		}
		g.invalidation = NewKeyListInvalidation(backend, registry)
	}

	if l, ok := backend.(Locker); ok {
		g.locker = l
	}

	g.log = log.With().
		Str("component", "cache").
		Str("invalidation", g.invalidation.Name()).
		Logger()
	return g
}

// Strategy returns the invalidation strategy chosen at construction.
func (g *Gateway) Strategy() Invalidation {
	return g.invalidation
}

// Invalidate drops every entry tracked under any of tags.
func (g *Gateway) Invalidate(ctx context.Context, tags ...string) error {
	return g.invalidation.Invalidate(ctx, tags...)
}

// Delete removes individual keys.
func (g *Gateway) Delete(ctx context.Context, keys ...string) error {
	return g.backend.Delete(ctx, keys...)
}

// GetOrCompute returns the value cached under key, computing and storing
// it on a miss. At most one compute runs per key at a time: callers in this
// process share one flight, and when the backend is a Locker, flights in
// other processes wait on the backend lock and then read the stored value.
//
// The shared flight runs detached from every caller's context, bounded by
// the ComputeTimeout. A caller whose ctx ends stops waiting and gets a
// timeout error; the flight continues for the others.
//
// Values travel through the backend as JSON, so T must round-trip through
// encoding/json.
func GetOrCompute[T any](
	ctx context.Context,
	g *Gateway,
	key string,
	ttl time.Duration,
	tags []string,
	compute func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	if v, ok := lookup[T](ctx, g, key); ok {
		return v, nil
	}

	ch := g.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.computeTimeout)
		defer cancel()
		return fill(fctx, g, key, ttl, tags, compute)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Shared {
			g.log.Debugf("joined in-flight compute for %s", key)
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, errs.Wrap(errs.ErrKindTimeout, "waiting for "+key, ctx.Err())
	}
}

func fill[T any](
	ctx context.Context,
	g *Gateway,
	key string,
	ttl time.Duration,
	tags []string,
	compute func(ctx context.Context) (T, error),
) (T, error) {
	var zero T

	// A previous flight may have stored the key after our caller's miss.
	if v, ok := lookup[T](ctx, g, key); ok {
		return v, nil
	}

	if g.locker != nil {
		unlock, err := g.locker.Lock(ctx, key, g.lockTTL)
		if err != nil {
			return zero, errs.Wrap(errs.KindOf(err), "lock "+key, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				g.log.WarnWith("unlock failed", err, map[string]interface{}{"key": key})
			}
		}()

		// Another process may have filled the key while we waited.
		if v, ok := lookup[T](ctx, g, key); ok {
			return v, nil
		}
	}

	g.log.Debugf("cache miss for %s, computing", key)
	v, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return zero, errs.Wrap(errs.ErrKindInvalidInput, "encode "+key, err)
	}
	if err := g.store(ctx, key, data, ttl, tags); err != nil {
		return zero, err
	}
	return v, nil
}

// store writes data and tracks its tags, in one step when the backend can.
// With key-list invalidation the entry is still written before it is
// tracked, so an Invalidate racing a store can miss the new key; it then
// lives until its ttl.
func (g *Gateway) store(ctx context.Context, key string, data []byte, ttl time.Duration, tags []string) error {
	if g.tagSetter != nil {
		return g.tagSetter.SetTagged(ctx, key, data, ttl, tags)
	}
	if err := g.backend.Set(ctx, key, data, ttl); err != nil {
		return err
	}
	return g.invalidation.Track(ctx, key, tags)
}

// Purge removes expired entries from backends that keep them until read.
// It returns 0 for backends that expire on their own.
func (g *Gateway) Purge(ctx context.Context) (int64, error) {
	p, ok := g.backend.(Purger)
	if !ok {
		return 0, nil
	}
	n, err := p.Purge(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		g.log.DebugWith("purged expired entries", map[string]interface{}{"count": n})
	}
	return n, nil
}

// lookup reads and decodes key. Backend errors and undecodable entries are
// logged and reported as a miss so the caller recomputes.
func lookup[T any](ctx context.Context, g *Gateway, key string) (T, bool) {
	var v T
	data, ok, err := g.backend.Get(ctx, key)
	if err != nil {
		g.log.WarnWith("cache get failed", err, map[string]interface{}{"key": key})
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		g.log.WarnWith("discarding corrupt cache entry", err, map[string]interface{}{"key": key})
		var zero T
		return zero, false
	}
	return v, true
}
