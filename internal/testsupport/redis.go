package testsupport

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"pacelab/internal/adapters/config"
	"pacelab/internal/adapters/redis"
)

// NewRedisClient returns the application's redis adapter on a flushed
// database, flushed again when the test ends.
func NewRedisClient(t *testing.T, cfg config.RedisConfig) *redis.Client {
	t.Helper()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("failed to flush redis before test: %v", err)
	}

	t.Cleanup(func() {
		_ = rdb.FlushDB(context.Background()).Err()
		_ = rdb.Close()
	})

	return redis.NewFromClient(rdb)
}
