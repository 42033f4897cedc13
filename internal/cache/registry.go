package cache

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/koustreak/dbparser/internal/errs"
)

const registrySuffix = ".keys"

// backendRegistry stores each tag's key list as a JSON array in the backend
// itself under "<tag>.keys", without expiry. Updates are read-modify-write,
// serialised within the process only.
type backendRegistry struct {
	backend Backend
	mu      sync.Mutex
}

// NewBackendRegistry returns a KeyRegistry persisted through backend.
func NewBackendRegistry(backend Backend) KeyRegistry {
	return &backendRegistry{backend: backend}
}

func (r *backendRegistry) Track(ctx context.Context, tag, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, err := r.load(ctx, tag)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	keys = append(keys, key)

	data, err := json.Marshal(keys)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "encode key registry", err)
	}
	return r.backend.Set(ctx, tag+registrySuffix, data, 0)
}

func (r *backendRegistry) Keys(ctx context.Context, tag string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx, tag)
}

func (r *backendRegistry) Forget(ctx context.Context, tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.Delete(ctx, tag+registrySuffix)
}

func (r *backendRegistry) load(ctx context.Context, tag string) ([]string, error) {
	data, ok, err := r.backend.Get(ctx, tag+registrySuffix)
	if err != nil || !ok {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		// An unreadable registry cannot be trusted; start over.
		return nil, nil
	}
	return keys, nil
}
