package redisstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacelab/internal/testsupport"
	"pacelab/pkg/errors"
)

func TestStore_Integration(t *testing.T) {
	cfgs := testsupport.RequireIntegration(t, testsupport.Redis)
	store := New(testsupport.NewRedisClient(t, cfgs.Redis))
	ctx := context.Background()

	key := testsupport.UniqueName("models/test")
	require.NoError(t, store.Put(ctx, key, []byte("artifact")))

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "artifact", string(data))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
