package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pacelab/internal/adapters/config"
	"pacelab/pkg/errors"
)

const lockPrefix = "pacelab:lock:"

// releaseScript deletes a lock only while it still carries our token, so a
// holder whose TTL lapsed cannot release a lock another process now owns.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client serves the retrain lock and the redis artifact backend
type Client struct {
	rdb   *redis.Client
	token string
}

// NewClient connects and pings the server
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(errors.ErrUnavailable, "redis %s: %v", cfg.Addr(), err)
	}

	return NewFromClient(rdb), nil
}

// NewFromClient wraps an existing go-redis client
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, token: uuid.NewString()}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetBytes stores raw bytes. A zero ttl keeps the key forever.
func (c *Client) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// GetBytes returns errors.ErrNotFound for a missing key
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrapf(errors.ErrNotFound, "redis key %s", key)
	}
	return data, err
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// AcquireLock takes key for ttl. False means another holder has it.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, lockPrefix+key, c.token, ttl).Result()
}

// ReleaseLock gives key back if this client still holds it
func (c *Client) ReleaseLock(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, c.rdb, []string{lockPrefix + key}, c.token).Err()
}
