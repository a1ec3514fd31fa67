package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another instance holds the pass lock
var ErrLockHeld = errors.New("pass lock held by another instance")

// releaseScript deletes the key only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// PassLock serializes evaluation passes across instances
type PassLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewPassLock creates a lock stored under key. The TTL bounds how long a
// crashed holder can block other instances.
func NewPassLock(client *redis.Client, key string, ttl time.Duration) *PassLock {
	return &PassLock{client: client, key: key, ttl: ttl}
}

// Acquire takes the lock and returns the function that releases it
func (l *PassLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire pass lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release pass lock: %w", err)
		}
		return nil
	}
	return release, nil
}
