package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/trogers1052/stock-alert-system/internal/metrics"
)

// setupRedis starts a disposable Redis container
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}

	client, err := NewClient(ctx, endpoint, "", 0)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPassLock(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	lock := NewPassLock(client, "test:pass-lock", time.Minute)
	other := NewPassLock(client, "test:pass-lock", time.Minute)

	release, err := lock.Acquire(ctx)
	require.NoError(t, err)

	_, err = other.Acquire(ctx)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))

	releaseOther, err := other.Acquire(ctx)
	require.NoError(t, err)

	t.Run("stale release does not drop a newer holder", func(t *testing.T) {
		require.NoError(t, release(ctx))
		_, err := lock.Acquire(ctx)
		assert.ErrorIs(t, err, ErrLockHeld)
	})

	require.NoError(t, releaseOther(ctx))
}

func TestPassLock_Expires(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	lock := NewPassLock(client, "test:short-lock", 200*time.Millisecond)

	_, err := lock.Acquire(ctx)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		release, err := lock.Acquire(ctx)
		if err != nil {
			return false
		}
		return release(ctx) == nil
	}, 2*time.Second, 50*time.Millisecond)
}

func TestNameCache(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	m := metrics.New()
	names := NewNameCache(client, time.Hour, m)

	name, err := names.GetName(ctx, "AAPL")
	require.NoError(t, err)
	assert.Empty(t, name)

	require.NoError(t, names.SetName(ctx, "AAPL", "Apple Inc"))
	name, err = names.GetName(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", name)

	ttl, err := client.TTL(ctx, nameKeyPrefix+"AAPL").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NameCacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NameCacheRequests.WithLabelValues("hit")))
}

func TestRateLimiter(t *testing.T) {
	client := setupRedis(t)
	limiter := NewRateLimiter(client, "test:finnhub", 2)

	ctx := context.Background()
	require.NoError(t, limiter.Wait(ctx))
	require.NoError(t, limiter.Wait(ctx))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, limiter.Wait(ctx), context.DeadlineExceeded)
}
