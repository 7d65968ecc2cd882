package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/suavescribe/internal/clock"
	"github.com/smallbiznis/suavescribe/internal/shop/domain"
	"github.com/smallbiznis/suavescribe/internal/shop/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.ShopAccount{}))

	clk := clock.NewFakeClock(time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, clk
}

func TestInstallUpsertsCredentials(t *testing.T) {
	svc, clk := setupService(t)
	ctx := context.Background()

	first, err := svc.Install(ctx, domain.InstallRequest{
		Shop:        "https://Acme.myshopify.com/",
		AccessToken: "shpat_one",
		Scope:       "read_own_subscription_contracts",
	})
	require.NoError(t, err)
	assert.Equal(t, "acme.myshopify.com", first.Shop)

	clk.Advance(time.Hour)
	second, err := svc.Install(ctx, domain.InstallRequest{
		Shop:        "acme.myshopify.com",
		AccessToken: "shpat_two",
		Scope:       "write_own_subscription_contracts",
	})
	require.NoError(t, err)
	assert.Equal(t, "shpat_two", second.AccessToken)
	assert.Equal(t, "write_own_subscription_contracts", second.Scope)

	shops, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, shops, 1)
}

func TestInstallValidation(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Install(ctx, domain.InstallRequest{Shop: "acme.example.com", AccessToken: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidShop)

	_, err = svc.Install(ctx, domain.InstallRequest{Shop: "acme.myshopify.com", AccessToken: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidAccessToken)
}

func TestUninstall(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Install(ctx, domain.InstallRequest{Shop: "acme.myshopify.com", AccessToken: "shpat"})
	require.NoError(t, err)

	require.NoError(t, svc.Uninstall(ctx, "acme.myshopify.com"))

	_, err = svc.Get(ctx, "acme.myshopify.com")
	assert.ErrorIs(t, err, domain.ErrShopNotFound)

	assert.ErrorIs(t, svc.Uninstall(ctx, "acme.myshopify.com"), domain.ErrShopNotFound)
}
