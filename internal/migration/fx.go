package migration

import (
	"github.com/smallbiznis/suavescribe/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module migrates on startup when DB_AUTO_MIGRATE is set.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			return nil
		}
		return Apply(conn, cfg.DBType, log)
	}),
)
