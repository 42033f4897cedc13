package cache

import (
	"context"

	"github.com/koustreak/dbparser/internal/errs"
)

// Invalidation records which entries belong to a tag and drops them on
// request. The Gateway picks one variant at construction.
type Invalidation interface {
	// Track associates key with tags after the key was written.
	Track(ctx context.Context, key string, tags []string) error

	// Invalidate removes every entry tracked under any of tags.
	Invalidate(ctx context.Context, tags ...string) error

	// Name identifies the strategy in logs.
	Name() string
}

// TagInvalidation delegates to a backend with native tag support, so
// invalidating a tag costs one call regardless of how many keys carry it.
type TagInvalidation struct {
	tagger Tagger
}

// NewTagInvalidation wraps a tag-aware backend.
func NewTagInvalidation(t Tagger) *TagInvalidation {
	return &TagInvalidation{tagger: t}
}

func (s *TagInvalidation) Track(ctx context.Context, key string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	return s.tagger.Tag(ctx, key, tags...)
}

func (s *TagInvalidation) Invalidate(ctx context.Context, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}
	return s.tagger.InvalidateTags(ctx, tags...)
}

func (s *TagInvalidation) Name() string { return "tag" }

// KeyListInvalidation remembers every key issued under a tag in a registry
// and deletes them one batch per tag.
type KeyListInvalidation struct {
	backend  Backend
	registry KeyRegistry
}

// NewKeyListInvalidation builds the key-tracking strategy for backend.
func NewKeyListInvalidation(backend Backend, registry KeyRegistry) *KeyListInvalidation {
	return &KeyListInvalidation{backend: backend, registry: registry}
}

func (s *KeyListInvalidation) Track(ctx context.Context, key string, tags []string) error {
	for _, tag := range tags {
		if err := s.registry.Track(ctx, tag, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *KeyListInvalidation) Invalidate(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		keys, err := s.registry.Keys(ctx, tag)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.backend.Delete(ctx, keys...); err != nil {
				return errs.Wrap(errs.KindOf(err), "delete tracked keys of "+tag, err)
			}
		}
		if err := s.registry.Forget(ctx, tag); err != nil {
			return err
		}
	}
	return nil
}

func (s *KeyListInvalidation) Name() string { return "key-list" }
