package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xhad/campusconnect/pkg/cache"
)

func exerciseClient(t *testing.T, c cache.Client) {
	t.Helper()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v1"), time.Hour))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, c.Set(ctx, "k", []byte("v2"), 0))
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestMemoryClient(t *testing.T) {
	exerciseClient(t, cache.NewMemoryClient(10))
}

func TestMemoryClientExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := cache.NewMemoryClient(10)
	c.SetClock(func() time.Time { return now })

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	now = now.Add(30 * time.Second)
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestMemoryClientEvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryClient(2)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	for _, k := range []string{"b", "c"} {
		_, err := c.Get(ctx, k)
		assert.NoError(t, err, k)
	}
}

func TestMemoryClientCopiesValues(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryClient(2)

	v := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", v, 0))
	v[0] = 'x'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestRedisClient(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()

	var container *tcredis.RedisContainer
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Skipf("docker unavailable: %v", r)
			}
		}()
		var err error
		container, err = tcredis.Run(ctx, "redis:7.4-alpine",
			testcontainers.WithWaitStrategy(
				wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
			),
		)
		if err != nil {
			t.Skipf("redis container: %v", err)
		}
	}()
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, err := cache.NewRedisClient(ctx, cache.RedisConfig{Addr: host + ":" + port.Port(), Prefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	exerciseClient(t, c)

	require.NoError(t, c.Set(ctx, "scoped", []byte("x"), time.Minute))
	n, err := c.Raw().Exists(ctx, "test:scoped").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
