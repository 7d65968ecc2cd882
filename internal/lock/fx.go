package lock

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/suavescribe/internal/clock"
	"github.com/smallbiznis/suavescribe/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(NewLocker),
)

// NewLocker uses redis when REDIS_ADDR is set so every replica shares the same leases.
func NewLocker(lc fx.Lifecycle, cfg config.Config, clk clock.Clock, log *zap.Logger) Locker {
	log = log.Named("lock")
	if !cfg.Redis.Enabled() {
		log.Info("redis not configured, using in-process locks")
		return NewMemoryLocker(clk)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Info("using redis locks", zap.String("addr", cfg.Redis.Addr))
	return NewRedisLocker(client)
}
