package ports

import (
	"context"
)

// KeyValueStore is the durable store each device uses for its identity and,
// on the Director path, its last canonical session snapshot.
// Load of a missing key returns domain.ErrKeyNotFound; Delete of a missing
// key succeeds.
type KeyValueStore interface {
	GetOrCreate(ctx context.Context, key string, generate func() ([]byte, error)) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// StoreBackend is a KeyValueStore that owns a connection or file handle.
type StoreBackend interface {
	KeyValueStore
	Ping(ctx context.Context) error
	Close() error
}
