// Package cache provides Redis-based caching for quick learned-response reads.
// The database stays the source of truth; the cache only fronts it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dewwy/petbot/internal/domain/memory"
	"github.com/dewwy/petbot/internal/infra/storage"
	"github.com/dewwy/petbot/internal/platform/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned by RedisClient.Get for absent keys.
var ErrCacheMiss = errors.New("cache: miss")

// RedisClient is the subset of Redis the cache needs.
// Tests swap in an in-memory map.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// goRedisClient adapts *redis.Client to RedisClient.
type goRedisClient struct {
	rdb *redis.Client
}

// NewGoRedisClient wraps a go-redis client.
func NewGoRedisClient(rdb *redis.Client) RedisClient {
	return &goRedisClient{rdb: rdb}
}

// Dial connects to addr and pings it once.
func Dial(ctx context.Context, addr string) (RedisClient, func() error, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	c := NewGoRedisClient(rdb)
	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return c, rdb.Close, nil
}

func (c *goRedisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (c *goRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

func (c *goRedisClient) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *goRedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// LearnedCache is a read-through cache in front of a learned-response repository.
// Writes go to the repository first and then refresh the cached entry.
type LearnedCache struct {
	client     RedisClient
	next       storage.LearnedResponseRepository
	expiration time.Duration
	log        *logger.Logger
}

// NewLearnedCache creates the cache. A zero ttl defaults to 15 minutes.
func NewLearnedCache(client RedisClient, next storage.LearnedResponseRepository, ttl time.Duration, log *logger.Logger) *LearnedCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &LearnedCache{
		client:     client,
		next:       next,
		expiration: ttl,
		log:        log,
	}
}

// Get serves from Redis and falls back to the repository. Redis failures are
// logged and never surface to the caller.
func (c *LearnedCache) Get(ctx context.Context, keyword string) (*memory.LearnedResponse, error) {
	key := c.learnedKey(keyword)

	data, err := c.client.Get(ctx, key)
	if err == nil {
		var r memory.LearnedResponse
		if jerr := json.Unmarshal([]byte(data), &r); jerr == nil {
			return &r, nil
		}
		c.log.Warn("dropping corrupt cache entry", zap.String("key", key))
		_ = c.client.Del(ctx, key)
	} else if !errors.Is(err, ErrCacheMiss) {
		c.log.Warn("redis read failed", zap.String("key", key), zap.Error(err))
	}

	r, err := c.next.Get(ctx, keyword)
	if err != nil {
		return nil, err
	}
	c.store(ctx, *r)
	return r, nil
}

// Upsert writes through to the repository and refreshes the cache.
func (c *LearnedCache) Upsert(ctx context.Context, r memory.LearnedResponse) error {
	if err := c.next.Upsert(ctx, r); err != nil {
		return err
	}
	c.store(ctx, r)
	return nil
}

// List always reads the repository.
func (c *LearnedCache) List(ctx context.Context) ([]memory.LearnedResponse, error) {
	return c.next.List(ctx)
}

// Invalidate drops the cached entry for keyword.
func (c *LearnedCache) Invalidate(ctx context.Context, keyword string) error {
	return c.client.Del(ctx, c.learnedKey(keyword))
}

func (c *LearnedCache) store(ctx context.Context, r memory.LearnedResponse) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.learnedKey(r.Keyword), data, c.expiration); err != nil {
		c.log.Warn("redis write failed", zap.String("keyword", r.Keyword), zap.Error(err))
	}
}

func (c *LearnedCache) learnedKey(keyword string) string {
	return fmt.Sprintf("petbot:learned:%s", memory.NormalizeKeyword(keyword))
}
