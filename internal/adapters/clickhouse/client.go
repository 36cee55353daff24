package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pacelab/internal/adapters/config"
	"pacelab/pkg/errors"
)

const dialTimeout = 5 * time.Second

// Client holds the connection used by the audit mirror
type Client struct {
	conn     driver.Conn
	database string
}

// NewClient connects with LZ4 compression and verifies the server answers
func NewClient(cfg config.ClickHouseConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open clickhouse")
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(errors.ErrUnavailable, "clickhouse %s: %v", addr, err)
	}

	return &Client{conn: conn, database: cfg.Database}, nil
}

func (c *Client) Conn() driver.Conn {
	return c.conn
}

// Database is the database the connection defaults to
func (c *Client) Database() string {
	return c.database
}

// Exec runs a statement that returns no rows
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	if err := c.conn.Exec(ctx, query, args...); err != nil {
		return errors.Wrap(err, "clickhouse exec")
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Health(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		return errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	return nil
}
