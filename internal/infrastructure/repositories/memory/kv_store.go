package memory

import (
	"context"
	"sync"

	"worldview/internal/core/domain"
	"worldview/internal/core/ports"
)

// KVStore keeps values in process memory. It backs tests and the
// ephemeral storage backend.
type KVStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

var _ ports.StoreBackend = (*KVStore)(nil)

func NewKVStore() *KVStore {
	return &KVStore{
		values: make(map[string][]byte),
	}
}

func (s *KVStore) GetOrCreate(ctx context.Context, key string, generate func() ([]byte, error)) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.values[key]; ok {
		return clone(v), nil
	}
	v, err := generate()
	if err != nil {
		return nil, err
	}
	s.values[key] = clone(v)
	return clone(v), nil
}

func (s *KVStore) Save(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = clone(value)
	return nil
}

func (s *KVStore) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	return clone(v), nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return nil
}

func (s *KVStore) Close() error {
	return nil
}

// Keys lists stored keys; used by tests and diagnostics.
func (s *KVStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
