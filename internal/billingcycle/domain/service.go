package domain

import (
	"context"
	"errors"
)

type Service interface {
	HandleSuccess(context.Context, BillingAttemptRequest) (Outcome, error)
	HandleFailure(context.Context, BillingAttemptRequest) (Outcome, error)
	// Sweep requests a remote charge for every contract of shop that is due today.
	Sweep(ctx context.Context, shop string) (SweepResult, error)
}

var (
	ErrCycleInProgress = errors.New("billing_cycle_in_progress")
	ErrInvalidRequest  = errors.New("invalid_billing_request")
)
