package service

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/suavescribe/internal/contractsync/domain"
)

type task struct {
	done chan struct{}

	mu     sync.RWMutex
	status domain.TaskStatus
	err    error
}

func newTask(shop string, startedAt time.Time) *task {
	return &task{
		done: make(chan struct{}),
		status: domain.TaskStatus{
			Result: domain.Result{Shop: shop, StartedAt: startedAt},
			State:  domain.TaskStateRunning,
		},
	}
}

func (t *task) Done() <-chan struct{} { return t.done }

func (t *task) Wait(ctx context.Context) (domain.Result, error) {
	select {
	case <-ctx.Done():
		return domain.Result{}, ctx.Err()
	case <-t.done:
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status.Result, t.err
}

func (t *task) Status() domain.TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *task) finish(result domain.Result, err error) {
	t.mu.Lock()
	t.status.Result = result
	t.err = err
	if err != nil {
		t.status.State = domain.TaskStateFailed
		t.status.Error = err.Error()
	} else {
		t.status.State = domain.TaskStateSucceeded
	}
	t.mu.Unlock()
	close(t.done)
}

func (t *task) running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}
