package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/dom/pack-minter/internal/domain"
)

// Lease is a lock held through a Locker. Backends call Lose when they can no
// longer guarantee exclusivity; holders check Held between units of work.
type Lease struct {
	release func(ctx context.Context) error

	releaseOnce sync.Once
	releaseErr  error

	mu   sync.Mutex
	lost error
}

func NewLease(release func(ctx context.Context) error) *Lease {
	return &Lease{release: release}
}

// Held returns nil while the lock is still exclusive, and an error wrapping
// domain.ErrMintLockLost after the backend lost it.
func (l *Lease) Held() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lost
}

// Lose marks the lease as no longer exclusive. Only the first cause is kept.
func (l *Lease) Lose(cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lost == nil {
		l.lost = fmt.Errorf("%w: %v", domain.ErrMintLockLost, cause)
	}
}

// Release gives the lock up. Later calls return the first call's result.
func (l *Lease) Release(ctx context.Context) error {
	l.releaseOnce.Do(func() {
		l.releaseErr = l.release(ctx)
	})
	return l.releaseErr
}
