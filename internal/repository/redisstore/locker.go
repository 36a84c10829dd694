package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/dom/pack-minter/internal/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker hands out redislock leases and keeps them refreshed until released,
// so a long chain confirmation does not let another instance in. A failed
// refresh marks the lease lost.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

func NewLocker(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{
		client: redislock.New(client),
		ttl:    ttl,
		retry:  100 * time.Millisecond,
		logger: logger.Named("lock"),
	}
}

func (l *Locker) Lock(ctx context.Context, key string) (*repository.Lease, error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.retry),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("lock %s is held elsewhere: %w", key, err)
		}
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	lease := repository.NewLease(func(ctx context.Context) error {
		close(stop)
		wg.Wait()
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("lock expired before release", zap.String("key", key))
			return nil
		}
		return err
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := lock.Refresh(context.Background(), l.ttl, nil); err != nil {
					l.logger.Error("lock refresh failed", zap.String("key", key), zap.Error(err))
					lease.Lose(err)
					return
				}
			}
		}
	}()

	return lease, nil
}
