package scheduler

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/suavescribe/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(RegisterSnowflake),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func NewScheduler(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if !cfg.Scheduler.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
