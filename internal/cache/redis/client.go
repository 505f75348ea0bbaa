// Package redis backs the engine's optional shared state with go-redis/v9:
// the latest-quote mirror, the event bus and the single-engine lock.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	clientName   = "studiobot"
	dialTimeout  = 5 * time.Second
	readTimeout  = 3 * time.Second
	pingAttempts = 3
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

func (cfg ClientConfig) options() *redis.Options {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		ClientName:  clientName,
		DialTimeout: dialTimeout,
		ReadTimeout: readTimeout,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Client owns the connection pool shared by the cache, bus and lock.
type Client struct {
	rdb *redis.Client
}

// New connects and pings, retrying briefly so a Redis that is still
// starting next to the bot does not fail the launch.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	rdb := redis.NewClient(cfg.options())

	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			return &Client{rdb: rdb}, nil
		}
		if attempt == pingAttempts {
			break
		}
		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	_ = rdb.Close()
	return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
