// Package redis wraps go-redis with the handful of operations the token
// cache and the distributed thread lock need.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"ragchat/internal/config"

	redis "github.com/redis/go-redis/v9"
)

const pingTimeout = 3 * time.Second

// ErrCacheMiss is returned by Get for absent keys.
var ErrCacheMiss = redis.Nil

var errNotInitialized = errors.New("redis client not initialized")

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// compareAndExpire resets the expiry of KEYS[1] to ARGV[2] ms only while it still holds ARGV[1].
var compareAndExpire = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Client is safe to use as a nil pointer; every operation then reports errNotInitialized.
type Client struct {
	rdb *redis.Client
}

// Enabled reports whether redis is configured.
func Enabled(cfg *config.Config) bool {
	return cfg != nil && cfg.Redis.Host != ""
}

// NewRedisClient connects to the configured server and pings it.
func NewRedisClient(cfg *config.Config) (*Client, error) {
	if !Enabled(cfg) {
		return nil, errors.New("redis is not configured")
	}
	port := cfg.Redis.Port
	if port <= 0 {
		port = 6379
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Redis.Host, strconv.Itoa(port)),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", rdb.Options().Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) ready() bool {
	return c != nil && c.rdb != nil
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.ready() {
		return errNotInitialized
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// SetNX stores the key only when it does not exist yet.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if !c.ready() {
		return false, errNotInitialized
	}
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if !c.ready() {
		return "", errNotInitialized
	}
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if !c.ready() {
		return errNotInitialized
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// DelIfValue deletes key when its value still equals value.
func (c *Client) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	if !c.ready() {
		return false, errNotInitialized
	}
	n, err := compareAndDelete.Run(ctx, c.rdb, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExpireIfValue resets the expiry of key to ttl when its value still equals value.
func (c *Client) ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if !c.ready() {
		return false, errNotInitialized
	}
	n, err := compareAndExpire.Run(ctx, c.rdb, []string{key}, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddMember adds member to the set at key and refreshes the set's expiry.
func (c *Client) AddMember(ctx context.Context, key, member string, ttl time.Duration) error {
	if !c.ready() {
		return errNotInitialized
	}
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, key, member)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Members lists the set at key; an absent key yields no members.
func (c *Client) Members(ctx context.Context, key string) ([]string, error) {
	if !c.ready() {
		return nil, errNotInitialized
	}
	return c.rdb.SMembers(ctx, key).Result()
}

func (c *Client) Close() error {
	if !c.ready() {
		return nil
	}
	return c.rdb.Close()
}
