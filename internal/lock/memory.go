package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/suavescribe/internal/clock"
)

type lease struct {
	token   string
	expires time.Time
}

// MemoryLocker is a process-local Locker for single-instance deployments and tests.
type MemoryLocker struct {
	clock clock.Clock

	mu     sync.Mutex
	leases map[string]lease
}

func NewMemoryLocker(clk clock.Clock) *MemoryLocker {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &MemoryLocker{clock: clk, leases: make(map[string]lease)}
}

func (l *MemoryLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := validate(key, ttl); err != nil {
		return "", false, err
	}

	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if current, ok := l.leases[key]; ok && now.Before(current.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.leases[key] = lease{token: token, expires: now.Add(ttl)}
	l.sweepLocked(now)
	return token, true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if current, ok := l.leases[key]; ok && current.token == token {
		delete(l.leases, key)
	}
	return nil
}

func (l *MemoryLocker) sweepLocked(now time.Time) {
	for key, current := range l.leases {
		if !now.Before(current.expires) {
			delete(l.leases, key)
		}
	}
}
