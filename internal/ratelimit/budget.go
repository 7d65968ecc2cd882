package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	keyShopifyBudget = "shopify:budget:%s"

	minRetryWait = 50 * time.Millisecond
)

// Waiter blocks until one call may proceed. *rate.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context) error
}

type allower interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (Result, error)
}

// ShopBudget spends tokens from the shop's bucket in redis, shared by every replica calling
// the same shop. When redis fails the call falls back to the local waiter.
type ShopBudget struct {
	bucket   allower
	key      string
	rate     float64
	burst    int
	fallback Waiter
	log      *zap.Logger
}

func ShopifyBudgetKey(shop string) string {
	return fmt.Sprintf(keyShopifyBudget, shop)
}

func NewShopBudget(bucket *TokenBucket, shop string, rate float64, burst int, fallback Waiter, log *zap.Logger) *ShopBudget {
	return newShopBudget(bucket, shop, rate, burst, fallback, log)
}

func newShopBudget(bucket allower, shop string, rate float64, burst int, fallback Waiter, log *zap.Logger) *ShopBudget {
	if log == nil {
		log = zap.NewNop()
	}
	return &ShopBudget{
		bucket:   bucket,
		key:      ShopifyBudgetKey(shop),
		rate:     rate,
		burst:    burst,
		fallback: fallback,
		log:      log,
	}
}

func (b *ShopBudget) Wait(ctx context.Context) error {
	for {
		res, err := b.bucket.Allow(ctx, b.key, b.rate, b.burst)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			b.log.Warn("shared rate limit unavailable, using local limiter", zap.String("key", b.key), zap.Error(err))
			return b.fallback.Wait(ctx)
		}
		if res.Allowed {
			return nil
		}

		delay := res.RetryAfter
		if delay < minRetryWait {
			delay = minRetryWait
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
