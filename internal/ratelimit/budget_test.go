package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedBucket struct {
	mu      sync.Mutex
	results []Result
	err     error
	keys    []string
}

func (b *scriptedBucket) Allow(_ context.Context, key string, _ float64, _ int) (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	if b.err != nil {
		return Result{}, b.err
	}
	if len(b.results) == 0 {
		return Result{Allowed: true}, nil
	}
	res := b.results[0]
	b.results = b.results[1:]
	return res, nil
}

type countingWaiter struct {
	calls int
}

func (w *countingWaiter) Wait(context.Context) error {
	w.calls++
	return nil
}

func TestShopBudgetWaitsUntilAllowed(t *testing.T) {
	bucket := &scriptedBucket{results: []Result{
		{Allowed: false, RetryAfter: time.Millisecond},
		{Allowed: false},
		{Allowed: true},
	}}
	fallback := &countingWaiter{}
	budget := newShopBudget(bucket, "acme.myshopify.com", 2, 4, fallback, nil)

	require.NoError(t, budget.Wait(context.Background()))
	assert.Len(t, bucket.keys, 3)
	assert.Equal(t, "shopify:budget:acme.myshopify.com", bucket.keys[0])
	assert.Zero(t, fallback.calls)
}

func TestShopBudgetFallsBackWhenRedisFails(t *testing.T) {
	bucket := &scriptedBucket{err: errors.New("connection refused")}
	fallback := &countingWaiter{}
	budget := newShopBudget(bucket, "acme.myshopify.com", 2, 4, fallback, nil)

	require.NoError(t, budget.Wait(context.Background()))
	assert.Equal(t, 1, fallback.calls)
}

func TestShopBudgetHonorsCancellation(t *testing.T) {
	bucket := &scriptedBucket{results: []Result{{Allowed: false, RetryAfter: time.Hour}}}
	budget := newShopBudget(bucket, "acme.myshopify.com", 2, 4, &countingWaiter{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, budget.Wait(ctx), context.DeadlineExceeded)
}

func TestResultRetryAfter(t *testing.T) {
	res := result(false, 0.5, 2)
	assert.Equal(t, 250*time.Millisecond, res.RetryAfter)

	res = result(true, 3, 2)
	assert.Zero(t, res.RetryAfter)
}

func TestValidate(t *testing.T) {
	assert.Error(t, validate("", 1, 1))
	assert.Error(t, validate("k", 0, 1))
	assert.Error(t, validate("k", 1, 0))
	assert.NoError(t, validate("k", 1, 1))
	assert.Equal(t, 4*time.Second, bucketTTL(2, 4))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}
