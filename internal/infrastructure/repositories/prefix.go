package repositories

import (
	"context"

	"worldview/internal/core/ports"
)

// PrefixStore scopes every key of an underlying store to one namespace,
// giving each hosted device profile its own storage partition.
type PrefixStore struct {
	inner  ports.KeyValueStore
	prefix string
}

var _ ports.KeyValueStore = (*PrefixStore)(nil)

// WithPrefix returns a view of store whose keys are prefix+key.
func WithPrefix(store ports.KeyValueStore, prefix string) *PrefixStore {
	return &PrefixStore{inner: store, prefix: prefix}
}

func (p *PrefixStore) GetOrCreate(ctx context.Context, key string, generate func() ([]byte, error)) ([]byte, error) {
	return p.inner.GetOrCreate(ctx, p.prefix+key, generate)
}

func (p *PrefixStore) Save(ctx context.Context, key string, value []byte) error {
	return p.inner.Save(ctx, p.prefix+key, value)
}

func (p *PrefixStore) Load(ctx context.Context, key string) ([]byte, error) {
	return p.inner.Load(ctx, p.prefix+key)
}

func (p *PrefixStore) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.prefix+key)
}
