package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyBrandList caches the full brand listing.
const KeyBrandList = "catalog:brands"

// KeyBrand returns the cache key of a single brand.
func KeyBrand(id string) string {
	return "catalog:brand:" + id
}

// Cache keeps brand configuration in Redis for ttl. A nil client yields a
// cache that always misses and silently drops writes.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Brand returns the cached configuration of brand id.
func (c *Cache) Brand(ctx context.Context, id string) (Brand, bool, error) {
	var b Brand
	hit, err := c.load(ctx, KeyBrand(id), &b)
	return b, hit, err
}

// PutBrand caches b under its id.
func (c *Cache) PutBrand(ctx context.Context, b Brand) error {
	if b.ID == "" {
		return nil
	}
	return c.store(ctx, KeyBrand(b.ID), b)
}

// Brands returns the cached brand listing.
func (c *Cache) Brands(ctx context.Context) ([]Brand, bool, error) {
	var brands []Brand
	hit, err := c.load(ctx, KeyBrandList, &brands)
	return brands, hit, err
}

// PutBrands caches the brand listing.
func (c *Cache) PutBrands(ctx context.Context, brands []Brand) error {
	return c.store(ctx, KeyBrandList, brands)
}

// Invalidate drops brand id and the listing, which may embed it.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, KeyBrand(id), KeyBrandList).Err(); err != nil {
		return fmt.Errorf("brand cache invalidate %s: %w", id, err)
	}
	return nil
}

// load reports a miss for absent keys. Entries that no longer decode are
// dropped and reported as a miss.
func (c *Cache) load(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("brand cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

func (c *Cache) store(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("brand cache encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("brand cache set %s: %w", key, err)
	}
	return nil
}
