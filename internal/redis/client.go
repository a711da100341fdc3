// Package redis wraps go-redis for the pieces of the engine that share state across replicas:
// execution windows for hourly throttling, the redis event backend and redsync locks.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb    *redis.Client
	config *Config
}

type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

func NewClient(ctx context.Context, config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		rdb:    rdb,
		config: config,
	}, nil
}

// Raw exposes the underlying client for libraries that take a go-redis client directly
func (c *Client) Raw() *redis.Client {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// reserveScript trims entries older than the window, then adds the member only while
// the set holds fewer than the limit. KEYS[1] set; ARGV score, cutoff, member, limit, ttl ms.
var reserveScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[2])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[4]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// ReserveInWindow atomically adds member to the sorted set at key, scored by at, unless
// limit members already fall inside the window ending at at. It reports whether member was added.
func (c *Client) ReserveInWindow(ctx context.Context, key, member string, at time.Time, window time.Duration, limit int) (bool, error) {
	added, err := reserveScript.Run(ctx, c.rdb, []string{key},
		at.UnixMilli(),
		at.Add(-window).UnixMilli(),
		member,
		limit,
		// Keep data a bit longer than the window
		(window * 2).Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to reserve window entry: %w", err)
	}
	return added == 1, nil
}

// RemoveFromWindow gives back a slot taken by ReserveInWindow
func (c *Client) RemoveFromWindow(ctx context.Context, key, member string) error {
	if err := c.rdb.ZRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("failed to remove window entry: %w", err)
	}
	return nil
}

// Publish sends message on channel; non-string values are JSON encoded
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) error {
	var data []byte
	var err error

	switch v := message.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		data, err = json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
	}

	return c.rdb.Publish(ctx, channel, data).Err()
}

func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

// AppendToStream adds values to stream, trimming it to roughly maxLen entries when maxLen is positive
func (c *Client) AppendToStream(ctx context.Context, stream string, values map[string]interface{}, maxLen int64) (string, error) {
	args := &redis.XAddArgs{Stream: stream, Values: values}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	id, err := c.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append to stream %s: %w", stream, err)
	}
	return id, nil
}
