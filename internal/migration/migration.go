package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	contractdomain "github.com/smallbiznis/suavescribe/internal/contract/domain"
	shopdomain "github.com/smallbiznis/suavescribe/internal/shop/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var sqlFiles embed.FS

// models is the schema for dialects without versioned SQL files.
var models = []any{&shopdomain.ShopAccount{}, &contractdomain.Contract{}}

// Apply brings the schema up to date. Postgres runs the versioned SQL files; other
// dialects (local sqlite, mysql) get the gorm model schema.
func Apply(conn *gorm.DB, dbType string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("migration").With(zap.String("db_type", dbType))

	if dbType != "postgres" {
		log.Info("auto-migrating models", zap.Int("models", len(models)))
		return conn.AutoMigrate(models...)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	version, err := upPostgres(sqlDB)
	if err != nil {
		return err
	}
	log.Info("migrations applied", zap.Uint("version", version))
	return nil
}

// upPostgres leaves db open; closing the migrator would close the shared pool.
func upPostgres(db *sql.DB) (uint, error) {
	source, err := iofs.New(sqlFiles, "migrations")
	if err != nil {
		return 0, fmt.Errorf("open migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return 0, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("migration %d left the schema dirty", version)
	}
	return version, nil
}
