// Package memory provides an in-process cache.Backend with native tags and
// per-key locks. Gateways in the same process that share one Backend get
// single-flight across all of them.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/koustreak/dbparser/internal/cache"
	"github.com/koustreak/dbparser/internal/errs"
)

type entry struct {
	value   []byte
	expires time.Time // zero means never
	tags    map[string]struct{}
}

// Backend is safe for concurrent use.
type Backend struct {
	mu      sync.Mutex
	entries map[string]*entry
	tags    map[string]map[string]struct{} // tag -> keys
	locks   map[string]chan struct{}
	now     func() time.Time
}

var (
	_ cache.Backend   = (*Backend)(nil)
	_ cache.Tagger    = (*Backend)(nil)
	_ cache.TagSetter = (*Backend)(nil)
	_ cache.Locker    = (*Backend)(nil)
	_ cache.Purger    = (*Backend)(nil)
)

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		entries: make(map[string]*entry),
		tags:    make(map[string]map[string]struct{}),
		locks:   make(map[string]chan struct{}),
		now:     time.Now,
	}
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !b.now().Before(e.expires) {
		b.remove(key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (b *Backend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.set(key, value, ttl)
	return nil
}

// SetTagged stores the entry and its tags under one lock.
func (b *Backend) SetTagged(_ context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.set(key, value, ttl)
	b.tag(key, tags)
	return nil
}

func (b *Backend) Delete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, k := range keys {
		b.remove(k)
	}
	return nil
}

// Tag attaches tags to an existing key. Tagging a missing key is a no-op.
func (b *Backend) Tag(_ context.Context, key string, tags ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tag(key, tags)
	return nil
}

func (b *Backend) tag(key string, tags []string) {
	e, ok := b.entries[key]
	if !ok {
		return
	}
	if e.tags == nil {
		e.tags = make(map[string]struct{}, len(tags))
	}
	for _, t := range tags {
		e.tags[t] = struct{}{}
		keys, ok := b.tags[t]
		if !ok {
			keys = make(map[string]struct{})
			b.tags[t] = keys
		}
		keys[key] = struct{}{}
	}
}

func (b *Backend) InvalidateTags(_ context.Context, tags ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range tags {
		for k := range b.tags[t] {
			b.remove(k)
		}
		delete(b.tags, t)
	}
	return nil
}

// Lock uses a one-slot channel per key. The ttl is not enforced: a holder
// in the same process cannot outlive it without the process dying too.
func (b *Backend) Lock(ctx context.Context, key string, _ time.Duration) (cache.Unlock, error) {
	b.mu.Lock()
	ch, ok := b.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		b.locks[key] = ch
	}
	b.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, errs.Wrap(errs.ErrKindTimeout, "waiting for lock on "+key, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}

// Purge drops expired entries that were never read after expiring.
func (b *Backend) Purge(context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	now := b.now()
	for k, e := range b.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			b.remove(k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired ones included.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// set replaces key. Caller holds b.mu.
func (b *Backend) set(key string, value []byte, ttl time.Duration) {
	b.remove(key)
	e := &entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = b.now().Add(ttl)
	}
	b.entries[key] = e
}

// remove drops key and its tag memberships. Caller holds b.mu.
func (b *Backend) remove(key string) {
	e, ok := b.entries[key]
	if !ok {
		return
	}
	for t := range e.tags {
		if keys, ok := b.tags[t]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(b.tags, t)
			}
		}
	}
	delete(b.entries, key)
}
