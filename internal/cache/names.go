package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trogers1052/stock-alert-system/internal/metrics"
)

const nameKeyPrefix = "company_name:"

// NameCache stores company profile names keyed by symbol
type NameCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewNameCache creates a cache whose entries expire after ttl
func NewNameCache(client *redis.Client, ttl time.Duration, m *metrics.Metrics) *NameCache {
	return &NameCache{client: client, ttl: ttl, metrics: m}
}

// GetName returns the cached name, or "" on a miss
func (c *NameCache) GetName(ctx context.Context, symbol string) (string, error) {
	val, err := c.client.Get(ctx, nameKeyPrefix+symbol).Result()
	if errors.Is(err, redis.Nil) {
		c.observe("miss")
		return "", nil
	}
	if err != nil {
		c.observe("error")
		return "", err
	}
	c.observe("hit")
	return val, nil
}

// SetName stores a name
func (c *NameCache) SetName(ctx context.Context, symbol, name string) error {
	return c.client.Set(ctx, nameKeyPrefix+symbol, name, c.ttl).Err()
}

func (c *NameCache) observe(result string) {
	if c.metrics != nil {
		c.metrics.NameCacheRequests.WithLabelValues(result).Inc()
	}
}
