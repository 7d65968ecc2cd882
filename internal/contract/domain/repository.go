package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type FailureAdjustment int

const (
	FailureIncrement FailureAdjustment = iota + 1
	FailureReset
)

// DueFilter selects contracts billed on Day that are not suspended.
type DueFilter struct {
	Shop               string
	Day                time.Time
	Status             ContractStatus
	MaxPaymentFailures int
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Contract, error)
	// InsertIfAbsent reports whether a new row was written.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, contract *Contract) (bool, error)
	UpdateFromRemote(ctx context.Context, db *gorm.DB, contract *Contract) (int64, error)
	AdjustFailureCount(ctx context.Context, db *gorm.DB, shop, id string, adj FailureAdjustment) (int, error)
	SetNextBillingDate(ctx context.Context, db *gorm.DB, shop, id string, date time.Time) error
	ListDue(ctx context.Context, db *gorm.DB, filter DueFilter) ([]*Contract, error)
	ListByShop(ctx context.Context, db *gorm.DB, shop, afterID string, limit int) ([]*Contract, error)
}
