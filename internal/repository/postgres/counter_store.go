package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/dom/pack-minter/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// counterStore keeps one row per named sequence in token_counters.
type counterStore struct {
	db   *gorm.DB
	name string
}

func NewCounterStore(db *gorm.DB, name string) *counterStore {
	return &counterStore{db: db, name: name}
}

func (s *counterStore) Peek(ctx context.Context) (uint64, error) {
	var counter domain.TokenCounter
	err := s.db.WithContext(ctx).First(&counter, "name = ?", s.name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return counter.Current, nil
}

// Advance upserts GREATEST(current, value) so it is monotonic and idempotent.
func (s *counterStore) Advance(ctx context.Context, value uint64) error {
	counter := &domain.TokenCounter{Name: s.name, Current: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"current":    gorm.Expr("GREATEST(token_counters.current, EXCLUDED.current)"),
			"updated_at": counter.UpdatedAt,
		}),
	}).Create(counter).Error
}
