package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisCacheConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Capacity int
}

// RedisCache shares the FIFO response cache between processes. Values live
// in a hash and insertion order in a list; a Lua script keeps the two in step.
type RedisCache struct {
	client   *redis.Client
	values   string
	order    string
	capacity int
}

// KEYS[1] hash, KEYS[2] order list, ARGV key, value, capacity.
// Returns the number of evicted entries.
var putScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
  return 0
end
local evicted = 0
local capacity = tonumber(ARGV[3])
while redis.call('LLEN', KEYS[2]) >= capacity do
  local oldest = redis.call('LPOP', KEYS[2])
  redis.call('HDEL', KEYS[1], oldest)
  evicted = evicted + 1
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('RPUSH', KEYS[2], ARGV[1])
return evicted
`)

func NewRedisCache(ctx context.Context, config RedisCacheConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}
	return newRedisCache(client, config), nil
}

func newRedisCache(client *redis.Client, config RedisCacheConfig) *RedisCache {
	if config.Prefix == "" {
		config.Prefix = "ai:cache"
	}
	if config.Capacity <= 0 {
		config.Capacity = 100
	}
	return &RedisCache{
		client:   client,
		values:   config.Prefix + ":values",
		order:    config.Prefix + ":order",
		capacity: config.Capacity,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.HGet(ctx, c.values, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key, value string) error {
	_, err := c.put(ctx, key, value)
	return err
}

func (c *RedisCache) put(ctx context.Context, key, value string) (int64, error) {
	return putScript.Run(ctx, c.client, []string{c.values, c.order}, key, value, c.capacity).Int64()
}

func (c *RedisCache) Len(ctx context.Context) (int, error) {
	n, err := c.client.HLen(ctx, c.values).Result()
	return int(n), err
}

func (c *RedisCache) Clear(ctx context.Context) error {
	return c.client.Del(ctx, c.values, c.order).Err()
}

func (c *RedisCache) Capacity() int {
	return c.capacity
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
