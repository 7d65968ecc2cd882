package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/suavescribe/internal/contract/domain"
	"github.com/smallbiznis/suavescribe/pkg/db/option"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const contractColumns = `id, shop, status, next_billing_date, billing_interval, interval_count,
	payment_failure_count, contract, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Contract, error) {
	var contract domain.Contract
	err := db.WithContext(ctx).Raw(
		`SELECT `+contractColumns+` FROM subscription_contracts WHERE id = ?`,
		id,
	).Scan(&contract).Error
	if err != nil {
		return nil, err
	}
	if contract.ID == "" {
		return nil, nil
	}
	return &contract, nil
}

// InsertIfAbsent never touches an existing row; concurrent first-sightings of the same id
// leave exactly one row behind.
func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, contract *domain.Contract) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(contract)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateFromRemote copies the remote-owned fields. The failure counter is reset in the same
// statement when a cancelled contract comes back active; the CASE reads the pre-update status.
// The counter assignment comes first because MySQL evaluates SET left to right.
func (r *repo) UpdateFromRemote(ctx context.Context, db *gorm.DB, contract *domain.Contract) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscription_contracts SET
			payment_failure_count = CASE WHEN status = ? AND ? THEN 0 ELSE payment_failure_count END,
			status = ?,
			next_billing_date = ?,
			billing_interval = ?,
			interval_count = ?,
			contract = ?,
			updated_at = ?
		 WHERE id = ? AND shop = ?`,
		domain.StatusCancelled,
		contract.Status == domain.StatusActive,
		contract.Status,
		contract.NextBillingDate,
		contract.Interval,
		contract.IntervalCount,
		contract.Raw,
		contract.UpdatedAt,
		contract.ID,
		contract.Shop,
	)
	return res.RowsAffected, res.Error
}

// AdjustFailureCount changes the counter in a single statement and returns the value read back.
func (r *repo) AdjustFailureCount(ctx context.Context, db *gorm.DB, shop, id string, adj domain.FailureAdjustment) (int, error) {
	var expr string
	switch adj {
	case domain.FailureIncrement:
		expr = "payment_failure_count + 1"
	case domain.FailureReset:
		expr = "0"
	default:
		return 0, domain.ErrInvalidContract
	}

	res := db.WithContext(ctx).Exec(
		`UPDATE subscription_contracts SET payment_failure_count = `+expr+`, updated_at = ?
		 WHERE id = ? AND shop = ?`,
		time.Now().UTC(),
		id,
		shop,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, domain.ErrContractNotFound
	}

	var count int
	err := db.WithContext(ctx).Raw(
		`SELECT payment_failure_count FROM subscription_contracts WHERE id = ? AND shop = ?`,
		id,
		shop,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) SetNextBillingDate(ctx context.Context, db *gorm.DB, shop, id string, date time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscription_contracts SET next_billing_date = ?, updated_at = ?
		 WHERE id = ? AND shop = ?`,
		date,
		time.Now().UTC(),
		id,
		shop,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrContractNotFound
	}
	return nil
}

// ListDue matches the whole UTC day so stored timestamps need not be exactly midnight.
func (r *repo) ListDue(ctx context.Context, db *gorm.DB, filter domain.DueFilter) ([]*domain.Contract, error) {
	dayStart := filter.Day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	var contracts []*domain.Contract
	err := db.WithContext(ctx).Raw(
		`SELECT `+contractColumns+` FROM subscription_contracts
		 WHERE shop = ?
		   AND status = ?
		   AND payment_failure_count < ?
		   AND next_billing_date >= ?
		   AND next_billing_date < ?
		 ORDER BY id`,
		filter.Shop,
		filter.Status,
		filter.MaxPaymentFailures,
		dayStart,
		dayEnd,
	).Scan(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *repo) ListByShop(ctx context.Context, db *gorm.DB, shop, afterID string, limit int) ([]*domain.Contract, error) {
	var contracts []*domain.Contract
	stmt := db.WithContext(ctx).
		Model(&domain.Contract{}).
		Where("shop = ?", shop)
	for _, opt := range []option.QueryOption{
		option.WithIDAfter(afterID),
		option.WithOrder("id", false),
		option.WithLimit(limit),
	} {
		stmt = opt.Apply(stmt)
	}
	if err := stmt.Find(&contracts).Error; err != nil {
		return nil, err
	}
	return contracts, nil
}
