// Package flagcache keeps resolved feature flag values in redis.
package flagcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores one boolean per (company, key). A nil *Cache is valid and
// never hits.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func entryKey(companyID, key string) string {
	return fmt.Sprintf("flags:%s:%s", companyID, key)
}

func companyPattern(companyID string) string {
	return fmt.Sprintf("flags:%s:*", companyID)
}

// Get returns (value, true) on a hit.
func (c *Cache) Get(ctx context.Context, companyID, key string) (bool, bool) {
	if c == nil {
		return false, false
	}
	v, err := c.client.Get(ctx, entryKey(companyID, key)).Result()
	if err != nil {
		return false, false
	}
	return v == "1", true
}

func (c *Cache) Set(ctx context.Context, companyID, key string, enabled bool) error {
	if c == nil {
		return nil
	}
	v := "0"
	if enabled {
		v = "1"
	}
	return c.client.Set(ctx, entryKey(companyID, key), v, c.ttl).Err()
}

// Invalidate drops one tenant entry.
func (c *Cache) Invalidate(ctx context.Context, companyID, key string) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, entryKey(companyID, key)).Err()
}

// InvalidateCompany drops every entry of a tenant.
func (c *Cache) InvalidateCompany(ctx context.Context, companyID string) error {
	return c.deletePattern(ctx, companyPattern(companyID))
}

// InvalidateKey drops key for every tenant; used when a global row changes.
func (c *Cache) InvalidateKey(ctx context.Context, key string) error {
	return c.deletePattern(ctx, fmt.Sprintf("flags:*:%s", key))
}

func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if c == nil {
		return nil
	}
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
