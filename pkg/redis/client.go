package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainclock/chainclock/pkg/retry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options configures NewClient.
type Options struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix is prepended to every key.
	KeyPrefix string
	// Retry overrides the connection retry policy.
	Retry *retry.Config
}

// connectRetry is short: the cache is optional and must not hold up startup.
var connectRetry = retry.Config{
	MaxRetries:    3,
	InitialDelay:  500 * time.Millisecond,
	MaxDelay:      2 * time.Second,
	Multiplier:    2,
	JitterEnabled: true,
}

// Client wraps the Redis client used as the shared query result cache.
type Client struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
}

// NewClient connects to Redis and verifies the connection with a ping, retrying briefly.
func NewClient(ctx context.Context, logger *zap.Logger, opts Options) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,

		// Connection pool
		PoolSize:     10,
		MinIdleConns: 2,

		// Timeouts
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	retryConfig := connectRetry
	if opts.Retry != nil {
		retryConfig = *opts.Retry
	}

	err := retry.WithBackoff(ctx, retryConfig, logger, "redis_connection", func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.String("key_prefix", opts.KeyPrefix))

	return &Client{client: rdb, logger: logger, prefix: opts.KeyPrefix}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Get returns the value stored at key. A missing key is not an error.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set stores value at key for ttl.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

// Health checks if Redis is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
