// Package cache provides a short-TTL Redis-backed cache for
// user-by-id lookups, grounded on core/internal/cache/redis.go.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix = "identity:user:"
	// TTL balances avoiding a DB round trip on hot token-verify paths
	// against staleness after a role promotion.
	TTL = 2 * time.Minute
)

// UserCache wraps a Redis client for caching marshalled user records.
type UserCache struct {
	client *redis.Client
}

// New builds a UserCache against addr, pinging once to fail fast.
func New(addr string) (*UserCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &UserCache{client: client}, nil
}

// Get unmarshals a cached user into dest; redis.Nil is returned verbatim
// so callers can distinguish a miss from a failure.
func (c *UserCache) Get(ctx context.Context, userID string, dest any) error {
	data, err := c.client.Get(ctx, userKeyPrefix+userID).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Set caches value under userID for TTL.
func (c *UserCache) Set(ctx context.Context, userID string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, userKeyPrefix+userID, data, TTL).Err()
}

// Invalidate drops the cached entry for userID. identity's cmd/main.go
// does not construct a UserCache, so no code path calls it.
func (c *UserCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, userKeyPrefix+userID).Err()
}

// Close releases the underlying connection pool.
func (c *UserCache) Close() error {
	return c.client.Close()
}
