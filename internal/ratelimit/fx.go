package ratelimit

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/suavescribe/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewShopifyBucket),
)

// NewShopifyBucket returns nil without REDIS_ADDR. Callers then limit in-process only.
func NewShopifyBucket(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *TokenBucket {
	if !cfg.Redis.Enabled() {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Named("rate.limit").Info("shopify call budget shared through redis", zap.String("addr", cfg.Redis.Addr))
	return NewTokenBucket(client)
}
