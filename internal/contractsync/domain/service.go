package domain

import (
	"context"
	"errors"
)

// Task is a handle to a crawl running in the background.
type Task interface {
	Done() <-chan struct{}
	Wait(ctx context.Context) (Result, error)
	Status() TaskStatus
}

type Service interface {
	SyncAll(ctx context.Context, shop string) (Result, error)
	// Start returns the running crawl for shop or launches a new one.
	Start(shop string) Task
	Latest(shop string) (Task, bool)
}

var (
	ErrInvalidShop = errors.New("invalid_shop")
	ErrNoSync      = errors.New("sync_not_found")
)
