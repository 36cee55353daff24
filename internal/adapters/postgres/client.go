package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"pacelab/internal/adapters/config"
	"pacelab/pkg/errors"
)

// Client owns the registry database pool
type Client struct {
	db *sqlx.DB
}

// NewClient opens the pool and pings it within cfg.ConnectTimeout.
// An unreachable server is reported as ErrUnavailable.
func NewClient(cfg config.PostgresConfig) (*Client, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(max(1, maxConns/2))
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(errors.ErrUnavailable, "postgres %s:%d: %v", cfg.Host, cfg.Port, err)
	}

	return &Client{db: db}, nil
}

func (c *Client) DB() *sqlx.DB {
	return c.db
}

func (c *Client) Close() error {
	return c.db.Close()
}

// Health pings the database; used by the serve health endpoint
func (c *Client) Health(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	return nil
}
