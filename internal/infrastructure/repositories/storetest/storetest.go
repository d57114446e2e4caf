// Package storetest holds the behavior every ports.KeyValueStore backend
// must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"worldview/internal/core/domain"
	"worldview/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store against the key-value contract. Keys are prefixed
// with t.Name() so a shared backend can be reused.
func Run(t *testing.T, store ports.KeyValueStore) {
	ctx := context.Background()
	key := func(k string) string { return t.Name() + ":" + k }

	t.Run("load missing", func(t *testing.T) {
		_, err := store.Load(ctx, key("missing"))
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	})

	t.Run("save load overwrite", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, key("session"), []byte(`{"id":"A"}`)))
		v, err := store.Load(ctx, key("session"))
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"id":"A"}`), v)

		require.NoError(t, store.Save(ctx, key("session"), []byte(`{"id":"B"}`)))
		v, err = store.Load(ctx, key("session"))
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"id":"B"}`), v)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, key("gone"), []byte("x")))
		require.NoError(t, store.Delete(ctx, key("gone")))
		_, err := store.Load(ctx, key("gone"))
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)

		assert.NoError(t, store.Delete(ctx, key("never-existed")))
	})

	t.Run("get or create is stable", func(t *testing.T) {
		calls := 0
		gen := func() ([]byte, error) {
			calls++
			return []byte("first"), nil
		}
		v1, err := store.GetOrCreate(ctx, key("id"), gen)
		require.NoError(t, err)
		v2, err := store.GetOrCreate(ctx, key("id"), func() ([]byte, error) {
			return []byte("second"), nil
		})
		require.NoError(t, err)

		assert.Equal(t, []byte("first"), v1)
		assert.Equal(t, v1, v2)
		assert.Equal(t, 1, calls)
	})

	t.Run("get or create generator error", func(t *testing.T) {
		boom := errors.New("no entropy")
		_, err := store.GetOrCreate(ctx, key("broken"), func() ([]byte, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
		_, err = store.Load(ctx, key("broken"))
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	})

	t.Run("get or create concurrent callers agree", func(t *testing.T) {
		var wg sync.WaitGroup
		results := make([][]byte, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, err := store.GetOrCreate(ctx, key("race"), func() ([]byte, error) {
					return []byte{byte('a' + i)}, nil
				})
				assert.NoError(t, err)
				results[i] = v
			}(i)
		}
		wg.Wait()
		for _, v := range results {
			assert.Equal(t, results[0], v)
		}
	})
}
