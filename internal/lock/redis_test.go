package lock

import (
	"context"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client)
	key := "test:" + t.Name()
	t.Cleanup(func() { client.Del(ctx, key) })

	token, ok, err := locker.TryLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, key, "other"))
	exists, err := client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, exists)

	require.NoError(t, locker.Release(ctx, key, token))
	exists, err = client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, exists)
}
