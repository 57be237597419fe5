package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"dailytrade/internal/model"
	"dailytrade/internal/store"
)

// Cache memoises the total post count of a subreddit for a date. Entries never change once
// written.
type Cache interface {
	Name() string
	Get(ctx context.Context, subreddit string, date time.Time) (int, bool, error)
	Put(ctx context.Context, subreddit string, date time.Time, posts int) error
}

func cacheKey(subreddit string, date time.Time) string {
	return strings.ToLower(subreddit) + "|" + model.DayKey(date)
}

// MemoryCache is the in-process tier.
type MemoryCache struct {
	mu     sync.RWMutex
	counts map[string]int
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{counts: make(map[string]int)}
}

func (c *MemoryCache) Name() string { return "memory" }

func (c *MemoryCache) Get(_ context.Context, subreddit string, date time.Time) (int, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.counts[cacheKey(subreddit, date)]
	return n, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, subreddit string, date time.Time, posts int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[cacheKey(subreddit, date)] = posts
	return nil
}

// StoreCache keeps counts in the post_counts table so a rerun of a failed cycle does not
// query the source again.
type StoreCache struct {
	st store.PostCountStore
}

func NewStoreCache(st store.PostCountStore) *StoreCache {
	return &StoreCache{st: st}
}

func (c *StoreCache) Name() string { return "store" }

func (c *StoreCache) Get(ctx context.Context, subreddit string, date time.Time) (int, bool, error) {
	n, err := c.st.PostCount(ctx, subreddit, date)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (c *StoreCache) Put(ctx context.Context, subreddit string, date time.Time, posts int) error {
	return c.st.PutPostCount(ctx, subreddit, date, posts)
}

// RedisCache shares counts between the worker and the API.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "dailytrade:posts:"}
}

func (c *RedisCache) Name() string { return "redis" }

func (c *RedisCache) key(subreddit string, date time.Time) string {
	return c.prefix + strings.ToLower(subreddit) + ":" + model.DayKey(date)
}

func (c *RedisCache) Get(ctx context.Context, subreddit string, date time.Time) (int, bool, error) {
	n, err := c.rdb.Get(ctx, c.key(subreddit, date)).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get: %w", err)
	}
	return n, true, nil
}

func (c *RedisCache) Put(ctx context.Context, subreddit string, date time.Time, posts int) error {
	return c.rdb.SetNX(ctx, c.key(subreddit, date), posts, 0).Err()
}
