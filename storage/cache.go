package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"taskboard-api/domain"
)

type readBackend interface {
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
	FetchDependencies(ctx context.Context, userID string) ([]domain.Dependency, error)
	FetchCategories(ctx context.Context, userID string) ([]domain.Category, error)
}

// Cache wraps the store with Redis-backed caching for the hot list reads.
// Writers call Evict after every successful mutation so readers never see
// a stale snapshot longer than one round trip.
type Cache struct {
	base  readBackend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching read wrapper using the provided Redis client
// and TTL.
func NewCache(base readBackend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

// FetchTasks returns the cached task list when present, falling back to
// the backing store.
func (c *Cache) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	var tasks []domain.Task
	if c.loadCached(ctx, tasksCacheKey(userID), &tasks) {
		return tasks, nil
	}
	tasks, err := c.base.FetchTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.storeCached(ctx, tasksCacheKey(userID), tasks)
	return tasks, nil
}

// FetchDependencies returns the cached edge set when present.
func (c *Cache) FetchDependencies(ctx context.Context, userID string) ([]domain.Dependency, error) {
	var edges []domain.Dependency
	if c.loadCached(ctx, depsCacheKey(userID), &edges) {
		return edges, nil
	}
	edges, err := c.base.FetchDependencies(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.storeCached(ctx, depsCacheKey(userID), edges)
	return edges, nil
}

// FetchCategories returns the cached category list when present.
func (c *Cache) FetchCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	var categories []domain.Category
	if c.loadCached(ctx, categoriesCacheKey(userID), &categories) {
		return categories, nil
	}
	categories, err := c.base.FetchCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.storeCached(ctx, categoriesCacheKey(userID), categories)
	return categories, nil
}

// Evict drops every cached read for the user.
func (c *Cache) Evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(userID), depsCacheKey(userID), categoriesCacheKey(userID)).Result()
}

func (c *Cache) loadCached(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) storeCached(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}

func depsCacheKey(userID string) string {
	return "deps:" + userID
}

func categoriesCacheKey(userID string) string {
	return "categories:" + userID
}
