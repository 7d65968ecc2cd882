package lock

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/suavescribe/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerExclusive(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryLocker(clock.NewFakeClock(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)))

	token, ok, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "k", "someone-else"))
	_, ok, _ = locker.TryLock(ctx, "k", time.Minute)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "k", token))
	_, ok, _ = locker.TryLock(ctx, "k", time.Minute)
	assert.True(t, ok)
}

func TestMemoryLockerExpires(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	locker := NewMemoryLocker(clk)

	_, ok, err := locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	clk.Advance(61 * time.Second)
	_, ok, err = locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryLockValidates(t *testing.T) {
	locker := NewMemoryLocker(nil)
	_, _, err := locker.TryLock(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, _, err = locker.TryLock(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "billing:contract:acme.myshopify.com:gid-1", ContractKey(" acme.myshopify.com", "gid-1 "))
	day := time.Date(2024, time.March, 5, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "billing:sweep:acme.myshopify.com:2024-03-05", SweepKey("acme.myshopify.com", day))
	assert.Equal(t, "billing:resync:acme.myshopify.com:2024-03-05", ResyncKey("acme.myshopify.com", day))
}
