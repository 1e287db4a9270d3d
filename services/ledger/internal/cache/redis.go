// Package cache caches the market-store name list and per-user
// purchase summaries, grounded on core/internal/cache/redis.go.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	namesKey       = "ledger:marketstore:names"
	namesTTL       = 1 * time.Minute
	summaryPrefix  = "ledger:summary:"
	summaryTTL     = 30 * time.Second
)

// Redis wraps a go-redis client with the two cache roles ledger needs.
type Redis struct {
	client *redis.Client
}

// New builds a Redis cache against addr, pinging once to fail fast.
func New(addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client}, nil
}

// GetNames implements marketstore.NameCache.
func (c *Redis) GetNames(ctx context.Context) ([]string, bool) {
	data, err := c.client.Get(ctx, namesKey).Bytes()
	if err != nil {
		return nil, false
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, false
	}
	return names, true
}

// SetNames implements marketstore.NameCache.
func (c *Redis) SetNames(ctx context.Context, names []string) {
	data, err := json.Marshal(names)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, namesKey, data, namesTTL).Err()
}

// Invalidate implements marketstore.NameCache.
func (c *Redis) Invalidate(ctx context.Context) {
	_ = c.client.Del(ctx, namesKey).Err()
}

// GetSummary returns a cached purchase summary for userID, if present.
func (c *Redis) GetSummary(ctx context.Context, userID string, dest any) bool {
	data, err := c.client.Get(ctx, summaryPrefix+userID).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

// SetSummary caches a purchase summary for userID.
func (c *Redis) SetSummary(ctx context.Context, userID string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, summaryPrefix+userID, data, summaryTTL).Err()
}

// InvalidateSummary drops the cached summary for userID. The purchase
// service does not use the summary cache, so nothing in ledger calls
// GetSummary, SetSummary or InvalidateSummary.
func (c *Redis) InvalidateSummary(ctx context.Context, userID string) {
	_ = c.client.Del(ctx, summaryPrefix+userID).Err()
}

// Close releases the underlying connection pool.
func (c *Redis) Close() error {
	return c.client.Close()
}
