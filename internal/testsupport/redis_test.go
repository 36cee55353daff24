package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacelab/internal/adapters/redis"
)

func TestRedisClient_RetrainLock(t *testing.T) {
	cfgs := RequireIntegration(t, Redis)
	client := NewRedisClient(t, cfgs.Redis)
	ctx := context.Background()
	key := UniqueName("retrain")

	acquired, err := client.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = client.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired, "second holder must wait")

	require.NoError(t, client.ReleaseLock(ctx, key))
	acquired, err = client.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestRedisClient_ReleaseKeepsForeignLock(t *testing.T) {
	cfgs := RequireIntegration(t, Redis)
	owner := NewRedisClient(t, cfgs.Redis)
	ctx := context.Background()
	key := UniqueName("retrain")

	other, err := redis.NewClient(cfgs.Redis)
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })

	acquired, err := owner.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, other.ReleaseLock(ctx, key))
	acquired, err = other.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired, "lock belongs to the first client")
}
