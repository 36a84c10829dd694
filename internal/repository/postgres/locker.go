package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/dom/pack-minter/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdvisoryLocker holds a session-level pg_advisory_lock on a dedicated pooled
// connection for as long as the lease is held, so every instance sharing the
// database is serialized. Postgres drops the lock when that session ends; the
// holder pings it and marks the lease lost if the ping fails.
type AdvisoryLocker struct {
	db     *gorm.DB
	retry  time.Duration
	ping   time.Duration
	logger *zap.Logger
}

func NewAdvisoryLocker(db *gorm.DB, logger *zap.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{
		db:     db,
		retry:  100 * time.Millisecond,
		ping:   5 * time.Second,
		logger: logger.Named("lock.postgres"),
	}
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (*repository.Lease, error) {
	id := advisoryKey(key)
	acquired := make(chan error, 1)
	release := make(chan struct{})
	finished := make(chan error, 1)

	lease := repository.NewLease(func(ctx context.Context) error {
		close(release)
		select {
		case err := <-finished:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go func() {
		finished <- l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
			if err := l.acquire(ctx, conn, id); err != nil {
				acquired <- err
				return nil
			}
			acquired <- nil
			return l.hold(conn, id, key, lease, release)
		})
	}()

	select {
	case err := <-acquired:
		if err != nil {
			return nil, fmt.Errorf("obtain lock %s: %w", key, err)
		}
		return lease, nil
	case err := <-finished:
		return nil, fmt.Errorf("reserve connection for lock %s: %w", key, err)
	}
}

func (l *AdvisoryLocker) acquire(ctx context.Context, conn *gorm.DB, id int64) error {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		var ok bool
		if err := conn.WithContext(ctx).Raw("SELECT pg_try_advisory_lock(?)", id).Scan(&ok).Error; err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *AdvisoryLocker) hold(conn *gorm.DB, id int64, key string, lease *repository.Lease, release <-chan struct{}) error {
	ticker := time.NewTicker(l.ping)
	defer ticker.Stop()
	session := conn.WithContext(context.Background())

	for {
		select {
		case <-release:
			var ok bool
			if err := session.Raw("SELECT pg_advisory_unlock(?)", id).Scan(&ok).Error; err != nil {
				return fmt.Errorf("release lock %s: %w", key, err)
			}
			if !ok {
				l.logger.Warn("lock was not held at release", zap.String("key", key))
			}
			return nil
		case <-ticker.C:
			if err := session.Exec("SELECT 1").Error; err != nil {
				l.logger.Error("lock session lost", zap.String("key", key), zap.Error(err))
				lease.Lose(err)
				<-release
				return nil
			}
		}
	}
}
