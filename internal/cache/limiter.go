package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RateLimiter shares a per-minute request budget across instances
type RateLimiter struct {
	limiter *redis_rate.Limiter
	key     string
	limit   redis_rate.Limit
}

// NewRateLimiter allows perMinute requests under key
func NewRateLimiter(client *redis.Client, key string, perMinute int) *RateLimiter {
	return &RateLimiter{
		limiter: redis_rate.NewLimiter(client),
		key:     key,
		limit:   redis_rate.PerMinute(perMinute),
	}
}

// Wait blocks until a request slot is free or ctx is done
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		res, err := r.limiter.Allow(ctx, r.key, r.limit)
		if err != nil {
			return fmt.Errorf("rate limit check failed: %w", err)
		}
		if res.Allowed > 0 {
			return nil
		}

		wait := res.RetryAfter
		if wait <= 0 {
			wait = 100 * time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
