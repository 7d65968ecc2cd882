package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/suavescribe/pkg/db/pagination"
)

type ListContractsRequest struct {
	Shop string
	pagination.Pagination
}

type ListContractsResponse struct {
	pagination.PageInfo
	Contracts []Contract `json:"contracts"`
}

// Service reconciles remote contracts into the local store and exposes the store
// operations the billing cycle needs.
type Service interface {
	Reconcile(ctx context.Context, shop string, snapshot ContractSnapshot) (Contract, error)
	HandleContractWebhook(ctx context.Context, shop, contractID string) (Contract, error)
	// EnsureLocal returns the local contract, fetching and reconciling it first when missing.
	EnsureLocal(ctx context.Context, shop, contractID string) (Contract, error)
	Get(ctx context.Context, shop, id string) (Contract, error)
	List(context.Context, ListContractsRequest) (ListContractsResponse, error)
	ListDue(ctx context.Context, shop string, day time.Time, maxFailures int) ([]Contract, error)
	AdjustFailureCount(ctx context.Context, shop, id string, adj FailureAdjustment) (int, error)
	SetNextBillingDate(ctx context.Context, shop, id string, date time.Time) error
}
