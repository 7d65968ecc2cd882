package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/suavescribe/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type widget struct {
	Code  string `gorm:"primaryKey"`
	Label string
	Owner string
}

func openStore(t *testing.T) Repository[widget] {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&widget{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return ProvideKeyedStore[widget](db, "code")
}

func TestStoreUpsertAndFind(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Create(ctx, &widget{Code: "a", Label: "first", Owner: "acme"}))
	require.NoError(t, s.Upsert(ctx, &widget{Code: "a", Label: "second", Owner: "other"}, "label"))
	require.NoError(t, s.Upsert(ctx, &widget{Code: "b", Label: "bee", Owner: "acme"}))

	got, err := s.FindOne(ctx, &widget{Code: "a"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", got.Label)
	assert.Equal(t, "acme", got.Owner)

	rows, err := s.Find(ctx, &widget{Owner: "acme"}, option.WithOrder("code", true))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].Code)

	n, err := s.Count(ctx, &widget{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestStoreMissingAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	got, err := s.FindOne(ctx, &widget{Code: "missing"})
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Create(ctx, &widget{Code: "a"}))
	removed, err := s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	removed, err = s.Delete(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, removed)
}
