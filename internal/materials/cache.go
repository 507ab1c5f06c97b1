package materials

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cacheTTL = 5 * time.Minute

// Cache stores per-year material listings in Redis. Misses and Redis
// failures both read as a miss; the database stays authoritative.
type Cache struct {
	client *redis.Client
}

// NewCache constructs a Cache.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func cacheKey(yearID uuid.UUID) string {
	return "materials:year:" + yearID.String()
}

// Get returns the cached listing for a year, if present.
func (c *Cache) Get(ctx context.Context, yearID uuid.UUID) ([]Material, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, cacheKey(yearID)).Bytes()
	if err != nil {
		return nil, false
	}
	var out []Material
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Set stores the listing for a year.
func (c *Cache) Set(ctx context.Context, yearID uuid.UUID, entries []Material) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(yearID), payload, cacheTTL).Err()
}

// Invalidate drops the cached listing for a year.
func (c *Cache) Invalidate(ctx context.Context, yearID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	err := c.client.Del(ctx, cacheKey(yearID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
