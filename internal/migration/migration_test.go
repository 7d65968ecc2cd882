package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyAutoMigratesNonPostgres(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Apply(db, "sqlite", zap.NewNop()))
	assert.True(t, db.Migrator().HasTable("shops"))
	assert.True(t, db.Migrator().HasTable("subscription_contracts"))

	// idempotent
	require.NoError(t, Apply(db, "sqlite", nil))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(sqlFiles, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)
}
