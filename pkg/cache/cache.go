package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventgatehq/eventgate-backend/pkg/config"
	"github.com/eventgatehq/eventgate-backend/pkg/logger"
)

const (
	responsePrefix = "api"
	scanBatchSize  = 100
)

// ErrUnavailable is returned by every operation on a client without a backing
// store. Callers treat caching as best-effort and fall through on it.
var ErrUnavailable = errors.New("cache unavailable")

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = redis.Nil

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Del(context.Context, ...string) *redis.IntCmd
	Scan(context.Context, uint64, string, int64) *redis.ScanCmd
}

// Client wraps the Redis connection helpers needed for response caching.
type Client struct {
	store cmdable
	raw   *redis.Client
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// Store exposes the minimal operations used by middleware and services.
type Store interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	Del(context.Context, ...string) error
	DeleteByPattern(context.Context, string) (int64, error)
	IsConnected() bool
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_db", opts.DB), "redis connected")
	}
	return &Client{store: raw, raw: raw}, nil
}

// Disabled returns a client with no backing store. It satisfies the same
// surface, reporting ErrUnavailable everywhere, so handlers stay cache-agnostic
// when Redis is not configured.
func Disabled() *Client {
	return &Client{}
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Set stores a string value with an optional TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.store == nil {
		return ErrUnavailable
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// Get returns the string value stored at key, or ErrMiss when absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", ErrUnavailable
	}
	return c.store.Get(ctx, key).Result()
}

// Del removes the provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return ErrUnavailable
	}
	return c.store.Del(ctx, keys...).Err()
}

// DeleteByPattern walks the keyspace with SCAN and deletes every key matching
// the glob pattern. It returns the number of keys removed.
func (c *Client) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	if c.store == nil {
		return 0, ErrUnavailable
	}
	var deleted int64
	var cursor uint64
	for {
		keys, next, err := c.store.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := c.store.Del(ctx, keys...).Err(); err != nil {
				return deleted, err
			}
			deleted += int64(len(keys))
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return ErrUnavailable
	}
	return c.store.Ping(ctx).Err()
}

// IsConnected reports whether the client has a backing store.
func (c *Client) IsConnected() bool {
	return c.store != nil
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// ResponseKey builds the cache key for a GET response: "api:<path>" with the
// raw query appended when present.
func ResponseKey(path, rawQuery string) string {
	key := responsePrefix + ":" + path
	if rawQuery != "" {
		key += "?" + rawQuery
	}
	return key
}

// ResponseKeyPattern builds the glob used to sweep every cached variant of a
// resource path, query strings included.
func ResponseKeyPattern(path string) string {
	return responsePrefix + ":" + path + "*"
}
