package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"worldview/internal/infrastructure/repositories/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestKVStore_Contract(t *testing.T) {
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "kv.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer store.Close()

	storetest.Run(t, store)
}

func TestKVStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	logger := zaptest.NewLogger(t).Sugar()
	ctx := context.Background()

	store, err := Open(ctx, path, logger)
	require.NoError(t, err)
	id, err := store.GetOrCreate(ctx, "worldview_device_id", func() ([]byte, error) {
		return []byte("3f9a1c2b4d5e6f70"), nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path, logger)
	require.NoError(t, err)
	defer reopened.Close()

	again, err := reopened.GetOrCreate(ctx, "worldview_device_id", func() ([]byte, error) {
		return []byte("different"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, id, again)
}
