package domain

import (
	"context"
	"time"
)

// Gateway is one shop's view of the remote contract API. Implementations bound every call
// with a timeout and report failures as *TransportError or *UserErrors.
type Gateway interface {
	FetchContract(ctx context.Context, contractID string) (ContractSnapshot, error)
	FetchContractsPage(ctx context.Context, pageSize int, cursor string) (ContractPage, error)
	OpenEditDraft(ctx context.Context, contractID string) (draftID string, err error)
	SetDraftBillingDate(ctx context.Context, draftID string, date time.Time) error
	CommitDraft(ctx context.Context, draftID string) (CommitResult, error)
	// UpdatePaymentMethod copies the customer's current payment method onto the contract
	// and returns the customer id.
	UpdatePaymentMethod(ctx context.Context, contractID string) (customerID string, err error)
	CreateBillingAttempt(ctx context.Context, contractID, idempotencyKey string) (BillingAttempt, error)
}

type GatewayProvider interface {
	ForShop(ctx context.Context, shop string) (Gateway, error)
}
