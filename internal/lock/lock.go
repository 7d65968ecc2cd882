// Package lock provides short-lived named leases shared by webhook handlers and the scheduler.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	keyContractCycle = "billing:contract:%s:%s"
	keyShopSweep     = "billing:sweep:%s:%s"
	keyShopResync    = "billing:resync:%s:%s"
)

var (
	ErrEmptyKey   = errors.New("lock key is empty")
	ErrInvalidTTL = errors.New("lock ttl must be positive")
)

// Locker hands out leases that expire on their own after ttl. Release only succeeds for
// the token returned by TryLock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

func ContractKey(shop, contractID string) string {
	return fmt.Sprintf(keyContractCycle, strings.TrimSpace(shop), strings.TrimSpace(contractID))
}

// SweepKey guards one billing sweep per shop per UTC day.
func SweepKey(shop string, day time.Time) string {
	return fmt.Sprintf(keyShopSweep, strings.TrimSpace(shop), day.UTC().Format("2006-01-02"))
}

// ResyncKey guards one scheduled contract crawl per shop per UTC day.
func ResyncKey(shop string, day time.Time) string {
	return fmt.Sprintf(keyShopResync, strings.TrimSpace(shop), day.UTC().Format("2006-01-02"))
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
