package badgerstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacelab/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_PutGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "models/a", []byte(`{"format":"x"}`)))

	data, err := store.Get(ctx, "models/a")
	require.NoError(t, err)
	assert.Equal(t, `{"format":"x"}`, string(data))

	require.NoError(t, store.Put(ctx, "models/a", []byte("v2")))
	data, err = store.Get(ctx, "models/a")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	require.NoError(t, store.Delete(ctx, "models/a"))
	_, err = store.Get(ctx, "models/a")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestStore_DeleteMissing(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Delete(context.Background(), "models/missing"))
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestOpen_OnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(Config{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "models/b", []byte("payload")))
	require.NoError(t, store.Close())

	reopened, err := Open(Config{Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	data, err := reopened.Get(ctx, "models/b")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
