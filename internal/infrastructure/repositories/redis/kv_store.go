package redis

import (
	"context"
	"errors"
	"fmt"

	"worldview/internal/core/domain"
	"worldview/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "worldview:kv:"

// KVStore keeps values as plain Redis strings under keyPrefix.
type KVStore struct {
	client *redis.Client
}

var _ ports.StoreBackend = (*KVStore)(nil)

func NewKVStore(client *redis.Client) *KVStore {
	return &KVStore{client: client}
}

func (s *KVStore) GetOrCreate(ctx context.Context, key string, generate func() ([]byte, error)) ([]byte, error) {
	value, err := s.Load(ctx, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, domain.ErrKeyNotFound) {
		return nil, err
	}

	value, err = generate()
	if err != nil {
		return nil, err
	}
	created, err := s.client.SetNX(ctx, keyPrefix+key, value, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx %s: %w", key, err)
	}
	if created {
		return value, nil
	}
	return s.Load(ctx, key)
}

func (s *KVStore) Save(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Load(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *KVStore) Close() error {
	return CloseRedisClient(s.client)
}
