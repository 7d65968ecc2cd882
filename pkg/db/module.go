package db

import (
	"context"
	"fmt"

	"github.com/smallbiznis/suavescribe/internal/config"
	"github.com/smallbiznis/suavescribe/internal/observability"
	obslogger "github.com/smallbiznis/suavescribe/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(ConfigFromApp),
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lc     fx.Lifecycle
	Cfg    Config
	AppCfg config.Config
	ObsCfg observability.Config
	Log    *zap.Logger
}

// New opens the pooled gorm handle with tracing, pool metrics and zap query logging.
func New(p Params) (*gorm.DB, error) {
	dialector, err := Dialect(p.Cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         obslogger.NewGormLogger(p.Log, obslogger.DefaultGormLoggerConfig(p.ObsCfg.Debug())),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(p.Cfg.Name))); err != nil {
		return nil, fmt.Errorf("register otelgorm: %w", err)
	}
	if err := conn.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          p.Cfg.Name,
		RefreshInterval: 15,
		StartServer:     false,
		Labels:          map[string]string{"service": p.AppCfg.AppName},
	})); err != nil {
		return nil, fmt.Errorf("register gorm prometheus: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if p.Cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(p.Cfg.MaxIdleConn)
	}
	if p.Cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(p.Cfg.MaxOpenConn)
	}
	if p.Cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(p.Cfg.ConnMaxLifetime)
	}
	if p.Cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(p.Cfg.ConnMaxIdleTime)
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		OnStop: func(context.Context) error {
			return sqlDB.Close()
		},
	})

	return conn, nil
}
