package domain

import (
	"time"

	"github.com/smallbiznis/suavescribe/internal/billingdate"
	"github.com/smallbiznis/suavescribe/pkg/db/pagination"
	"gorm.io/datatypes"
)

type ContractStatus string

const (
	StatusActive    ContractStatus = "ACTIVE"
	StatusPaused    ContractStatus = "PAUSED"
	StatusCancelled ContractStatus = "CANCELLED"
	StatusExpired   ContractStatus = "EXPIRED"
	StatusFailed    ContractStatus = "FAILED"
)

// Contract is the local mirror of a remote subscription contract.
// PaymentFailureCount is owned locally; everything else follows the remote.
type Contract struct {
	ID                  string               `gorm:"primaryKey" json:"id"`
	Shop                string               `gorm:"not null;index" json:"shop"`
	Status              ContractStatus       `gorm:"not null" json:"status"`
	NextBillingDate     time.Time            `gorm:"not null" json:"next_billing_date"`
	Interval            billingdate.Interval `gorm:"column:billing_interval;not null" json:"interval"`
	IntervalCount       int                  `gorm:"not null" json:"interval_count"`
	PaymentFailureCount int                  `gorm:"not null;default:0" json:"payment_failure_count"`
	Raw                 datatypes.JSON       `gorm:"column:contract" json:"contract,omitempty"`
	CreatedAt           time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt           time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Contract) TableName() string { return "subscription_contracts" }

type BillingPolicy struct {
	Interval      billingdate.Interval `json:"interval"`
	IntervalCount int                  `json:"interval_count"`
}

type Customer struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

// ContractSnapshot is the remote's current view of a contract.
type ContractSnapshot struct {
	ID              string
	Status          ContractStatus
	NextBillingDate time.Time
	BillingPolicy   BillingPolicy
	Customer        Customer
	Raw             datatypes.JSON
}

type ContractPage struct {
	pagination.PageInfo
	Contracts []ContractSnapshot
}

// CommitResult is what the remote reports after a draft commit.
type CommitResult struct {
	ContractID string
	Status     ContractStatus
	Customer   Customer
}

type BillingAttempt struct {
	ID             string
	IdempotencyKey string
	Ready          bool
}
