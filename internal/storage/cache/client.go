package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// CacheClient defines the subset of cache commands the token store needs.
type CacheClient interface {
	// Get returns the value or ErrMiss if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// RedisClient wraps go-redis to satisfy CacheClient.
type RedisClient struct {
	rdb *redis.Client
}

func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Fail fast if connection is bad
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{rdb: rdb}, nil
}

func (c *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(val, dest)
}

func (c *RedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	bytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, bytes, ttl).Err()
}

func (c *RedisClient) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

// MemoryClient is an in-process CacheClient for single-instance deployments
// where running Redis is not worth the operational cost.
type MemoryClient struct {
	store *gocache.Cache
}

func NewMemoryClient(defaultTTL time.Duration) *MemoryClient {
	return &MemoryClient{store: gocache.New(defaultTTL, 2*defaultTTL)}
}

// Get round-trips through JSON so both clients have identical copy semantics.
func (c *MemoryClient) Get(_ context.Context, key string, dest interface{}) error {
	val, found := c.store.Get(key)
	if !found {
		return ErrMiss
	}
	bytes, ok := val.([]byte)
	if !ok {
		return ErrMiss
	}
	return json.Unmarshal(bytes, dest)
}

func (c *MemoryClient) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	bytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.store.Set(key, bytes, ttl)
	return nil
}

func (c *MemoryClient) Del(_ context.Context, key string) error {
	c.store.Delete(key)
	return nil
}
