// Package cache holds the per-user study state kept in Redis: the study
// queue, daily review counters and cached deck settings. Every read and
// write here is best effort; callers always have a durable path to fall
// back on.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures a Client.
type Options struct {
	URL         string
	DialTimeout time.Duration
	QueueTTL    time.Duration
	CounterTTL  time.Duration
	SettingsTTL time.Duration
}

// DefaultOptions returns the expiry times used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		URL:         "redis://localhost:6379/0",
		DialTimeout: 2 * time.Second,
		QueueTTL:    time.Hour,
		CounterTTL:  24 * time.Hour,
		SettingsTTL: 24 * time.Hour,
	}
}

// Client is a shared handle on the Redis connection pool.
type Client struct {
	rdb     redis.UniversalClient
	log     *slog.Logger
	opts    Options
	healthy atomic.Bool
}

// New builds a Client from opts. No connection is made until Connect.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if opts.DialTimeout > 0 {
		ro.DialTimeout = opts.DialTimeout
	}
	return NewWithRedis(redis.NewClient(ro), opts, logger), nil
}

// NewWithRedis wraps an existing redis client.
func NewWithRedis(rdb redis.UniversalClient, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.QueueTTL <= 0 {
		opts.QueueTTL = def.QueueTTL
	}
	if opts.CounterTTL <= 0 {
		opts.CounterTTL = def.CounterTTL
	}
	if opts.SettingsTTL <= 0 {
		opts.SettingsTTL = def.SettingsTTL
	}
	c := &Client{rdb: rdb, log: logger.With("component", "cache"), opts: opts}
	c.healthy.Store(true)
	return c
}

// Connect pings the server and records the result as the current health.
func (c *Client) Connect(ctx context.Context) error {
	err := c.rdb.Ping(ctx).Err()
	c.healthy.Store(err == nil)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.log.Info("Connected to redis")
	return nil
}

// Healthy reports the result of the most recent health check.
func (c *Client) Healthy() bool {
	return c.healthy.Load()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Queue returns the study queue for a user and deck.
func (c *Client) Queue(userID, deckID string) *Queue {
	return &Queue{c: c, key: queueKey(userID, deckID)}
}

func (c *Client) warn(msg string, err error, args ...any) {
	c.log.Warn(msg, append(args, "error", err)...)
}
