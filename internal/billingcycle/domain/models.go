package domain

import (
	"time"

	contractdomain "github.com/smallbiznis/suavescribe/internal/contract/domain"
)

// Result names the path a billing-cycle pass took.
type Result string

const (
	ResultSucceeded Result = "SUCCEEDED"
	ResultFailed    Result = "FAILED"
)

type BillingAttemptRequest struct {
	Shop       string
	ContractID string
	// UpdatePaymentMethod refreshes the contract's payment method before rescheduling a failed charge.
	UpdatePaymentMethod bool
}

// Outcome is the result of one pass over a contract. It is not persisted.
type Outcome struct {
	Result              Result                        `json:"result"`
	Shop                string                        `json:"shop"`
	ContractID          string                        `json:"contract_id"`
	RemoteStatus        contractdomain.ContractStatus `json:"remote_status,omitempty"`
	NextBillingDate     time.Time                     `json:"next_billing_date,omitempty"`
	PaymentFailureCount int                           `json:"payment_failure_count"`
	Suspended           bool                          `json:"suspended"`
	Customer            contractdomain.Customer       `json:"customer"`
	NoticeSent          bool                          `json:"notice_sent"`
}

// SweepResult counts what one daily sweep of a shop did.
type SweepResult struct {
	Shop      string    `json:"shop"`
	Day       time.Time `json:"day"`
	Due       int       `json:"due"`
	Attempted int       `json:"attempted"`
	Failed    int       `json:"failed"`
}

// Suspended is derived, never stored: a contract stops being swept once its failures reach
// the threshold, until a successful charge or a reactivation resets the count.
func Suspended(failureCount, threshold int) bool {
	return failureCount >= threshold
}
