package contracttest

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/suavescribe/internal/billingdate"
	"github.com/smallbiznis/suavescribe/internal/contract/domain"
	shopdomain "github.com/smallbiznis/suavescribe/internal/shop/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OpenDB returns an isolated in-memory database with the billing tables.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&shopdomain.ShopAccount{}, &domain.Contract{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// single writer, so concurrent sweeps queue on the pool
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Snapshot builds an ACTIVE monthly contract due on next.
func Snapshot(id string, next time.Time) domain.ContractSnapshot {
	return domain.ContractSnapshot{
		ID:              id,
		Status:          domain.StatusActive,
		NextBillingDate: next,
		BillingPolicy: domain.BillingPolicy{
			Interval:      billingdate.IntervalMonth,
			IntervalCount: 1,
		},
		Customer: domain.Customer{
			ID:        "customer-" + id,
			Email:     id + "@example.com",
			FirstName: "Ada",
		},
		Raw: datatypes.JSON(`{"id":"` + id + `"}`),
	}
}
