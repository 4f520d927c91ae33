// Package rediscache provides a TTL-keyed cache over redis/go-redis/v9 for
// market and quote lookups, with hit/miss accounting. Backed by Redis rather
// than a local map so multiple engine instances can share it.
package rediscache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a redis client with JSON marshaling and hit/miss counters.
type Cache struct {
	client *redis.Client
	prefix string

	hits   int64
	misses int64
}

// New constructs a Cache against the given Redis address.
func New(addr, prefix string) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

// Set stores value under key with the given TTL, JSON-encoded.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

// Get decodes the cached value for key into dest, reporting whether it was
// present and unexpired.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		atomic.AddInt64(&c.misses, 1)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	atomic.AddInt64(&c.hits, 1)
	return true, json.Unmarshal(data, dest)
}

// Invalidate removes a cached key, e.g. when a market resolves.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// Stats is a point-in-time hit-ratio snapshot for the dashboard.
type Stats struct {
	Hits     int64
	Misses   int64
	HitRatio float64
}

// Stats returns the cache's cumulative hit/miss counters.
func (c *Cache) Stats() Stats {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	ratio := 0.0
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return Stats{Hits: hits, Misses: misses, HitRatio: ratio}
}

// Ping verifies Redis connectivity, used at startup.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}
